package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	endpointMetrics = "/metrics"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ServeMetrics serves the Prometheus metrics of the client on addr until ctx is done.
func ServeMetrics(ctx context.Context, logger polylog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle(endpointMetrics, promhttp.Handler())

	Serve(ctx, logger, "prometheus_metrics", addr, mux)
}

// Serve runs an HTTP server for handler on addr in the background, and shuts it
// down once ctx is done. A server that fails to listen is logged, not fatal:
// the client keeps working without its observability endpoints.
func Serve(ctx context.Context, logger polylog.Logger, name, addr string, handler http.Handler) {
	logger = logger.With("server", name, "endpoint_addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		logger.Info().Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
