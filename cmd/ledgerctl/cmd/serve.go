package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/spf13/cobra"

	"github.com/buildwithgrove/ledgerclient/client"
	"github.com/buildwithgrove/ledgerclient/health"
	"github.com/buildwithgrove/ledgerclient/metrics"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the client running with metrics, pprof and health endpoints",
		Long: `Builds the client and keeps it running until interrupted: the endpoint pool is
periodically re-admitted, and the Prometheus metrics, pprof and /healthz endpoints are
served on their configured addresses. /healthz answers 503 until the pool holds an
admitted endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, cfg, logger, err := opts.newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logNotifications(ctx, logger, c.Notifications)

			metrics.ServeMetrics(ctx, logger, cfg.Metrics.PrometheusAddr)
			metrics.ServePprof(ctx, logger, cfg.Metrics.PprofAddr)

			if err := c.StartHydrator(ctx); err != nil {
				return err
			}

			// Until every component is ready, `/healthz` answers 503 Service Unavailable.
			healthChecker := &health.Checker{
				Logger:     logger,
				Components: c.HealthChecks(),
				Pool:       c.Pool,
			}
			healthzMux := http.NewServeMux()
			healthzMux.HandleFunc("/healthz", healthChecker.HealthzHandler)
			metrics.Serve(ctx, logger, "healthz", cfg.Metrics.HealthzAddr, healthzMux)

			if resume {
				go resumeInBackground(ctx, logger, c)
			}

			logger.Info().
				Uint64("chain_id", cfg.Chain.ChainID).
				Int("admitted_endpoints", c.Pool.Size()).
				Msg("ledger client started")

			<-ctx.Done()
			logger.Info().Msg("ledger client stopping")
			return nil
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", true, "resume monitoring of journaled writes on start")

	return cmd
}

func resumeInBackground(ctx context.Context, logger polylog.Logger, c *client.Client) {
	outputs, err := resumePending(ctx, c, 0)
	if err != nil {
		logger.Warn().Err(err).Msg("could not resume journaled writes")
		return
	}
	if len(outputs) > 0 {
		logger.Info().
			Int("resumed", len(outputs)).
			Int("unconfirmed", countFailed(outputs)).
			Msg("finished resuming journaled writes")
	}
}
