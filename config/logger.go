package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = LogFormatConsole
)

const (
	// LogFormatConsole writes colorized, human-readable lines.
	LogFormatConsole = "console"
	// LogFormatJSON writes one JSON object per line.
	LogFormatJSON = "json"
)

// LoggerConfig sets the verbosity and output format of the client's logs.
type LoggerConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *LoggerConfig) hydrateLoggerDefaults() {
	if c.Level == "" {
		c.Level = defaultLogLevel
	}
	if c.Format == "" {
		c.Format = defaultLogFormat
	}
}

// Validate rejects levels the logger cannot be set to, and unknown formats.
func (c LoggerConfig) Validate() error {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	switch level {
	case zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel, zerolog.ErrorLevel:
	default:
		return fmt.Errorf("invalid log level %q: expected one of debug, info, warn, error", c.Level)
	}

	switch c.Format {
	case LogFormatConsole, LogFormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid log format %q: expected %q or %q", c.Format, LogFormatConsole, LogFormatJSON)
	}
}
