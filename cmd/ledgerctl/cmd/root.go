// Package cmd implements the ledgerctl command-line interface.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/buildwithgrove/ledgerclient/client"
	"github.com/buildwithgrove/ledgerclient/config"
	"github.com/buildwithgrove/ledgerclient/notify"
)

const (
	defaultConfigPath = "config/.config.yaml"
	defaultEnvFile    = ".env"

	// notificationBuffer is the number of lifecycle notifications held for the logging
	// subscriber before the broadcaster starts dropping them.
	notificationBuffer = 64
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

// NewRootCmd builds the ledgerctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Ledger client CLI",
		Long: `ledgerctl reads from and writes to an EVM ledger through a pool of JSON-RPC endpoints.
Endpoints that are unreachable, stale or on the wrong chain are left out of the pool,
and failed reads are retried on the next admitted endpoint.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.loadEnv(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to the client config file")
	flags.StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file loaded before the config is read")
	flags.StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "override the configured log format (console, json)")

	rootCmd.AddCommand(
		newEndpointsCmd(opts),
		newBalanceCmd(opts),
		newRecordsCmd(opts),
		newSendCmd(opts),
		newResumeCmd(opts),
		newServeCmd(opts),
	)

	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnv loads the dotenv file, so that the config file can reference secrets as ${VAR}.
// A missing file is only an error if the flag was set explicitly.
func (o *rootOptions) loadEnv(cmd *cobra.Command) error {
	if o.envFile == "" {
		return nil
	}

	err := godotenv.Load(o.envFile)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading env file %s: %w", o.envFile, err)
	}
	return nil
}

func (o *rootOptions) loadConfig() (config.ClientConfig, error) {
	cfg, err := config.LoadClientConfigFromYAML(o.configPath)
	if err != nil {
		return config.ClientConfig{}, fmt.Errorf("loading config %s: %w", o.configPath, err)
	}

	if o.logLevel != "" {
		cfg.Logger.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logger.Format = o.logFormat
	}
	if err := cfg.Logger.Validate(); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}

// newLogger writes logs to stderr, keeping stdout for command output.
func newLogger(cmd *cobra.Command, loggerConfig config.LoggerConfig) polylog.Logger {
	var output io.Writer = cmd.ErrOrStderr()
	if loggerConfig.Format == config.LogFormatConsole {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	return polyzero.NewLogger(
		polyzero.WithLevel(polyzero.ParseLevel(loggerConfig.Level)),
		polyzero.WithOutput(output),
	)
}

// newClient loads the config and builds a client from it.
// The caller must close the returned client.
func (o *rootOptions) newClient(cmd *cobra.Command) (*client.Client, config.ClientConfig, polylog.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, config.ClientConfig{}, nil, err
	}

	logger := newLogger(cmd, cfg.Logger)
	logger.Debug().Msgf("using config file %s", o.configPath)

	c, err := client.New(cmd.Context(), logger, cfg)
	if err != nil {
		return nil, config.ClientConfig{}, nil, err
	}
	return c, cfg, logger, nil
}

// logNotifications logs every write lifecycle notification until ctx is done.
func logNotifications(ctx context.Context, logger polylog.Logger, broadcaster *notify.Broadcaster) {
	notifications, unsubscribe := broadcaster.Subscribe(notificationBuffer)

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case notification := <-notifications:
				event := logger.Info()
				if notification.Phase == notify.PhaseFailed {
					event = logger.Warn().Str("error_kind", notification.ErrorKind).Str("error", notification.Error)
				}
				event.
					Str("operation", notification.OperationName).
					Str("handle", notification.Handle).
					Dur("elapsed", notification.Elapsed).
					Msgf("write %s", notification.Phase)
			}
		}
	}()
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
