package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/buildwithgrove/ledgerclient/multicall"
	"github.com/buildwithgrove/ledgerclient/pool"
	"github.com/buildwithgrove/ledgerclient/retry"
	"github.com/buildwithgrove/ledgerclient/txn"
)

/* ---------------------------------  Client Config Struct -------------------------------- */

// ClientConfig is the top level struct that contains configuration details
// parsed from a YAML config file. It contains everything needed to build
// a ledger client: the chain and its endpoints, and the tuning of every component.
type ClientConfig struct {
	Chain ChainConfig `yaml:"chain"`

	Pool  pool.Config      `yaml:"pool"`
	Retry retry.Config     `yaml:"retry"`
	Batch multicall.Config `yaml:"batch"`

	// Pagination is optional and only used to page through a record contract.
	Pagination *PaginationConfig `yaml:"pagination"`

	Transactions  txn.Config          `yaml:"transactions"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Journal       JournalConfig       `yaml:"journal"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logger        LoggerConfig        `yaml:"logger"`
}

// LoadClientConfigFromYAML reads a YAML configuration file from the specified path
// and unmarshals its content into a ClientConfig instance.
//
// Environment variables referenced as ${VAR} in the file are expanded before parsing,
// so that secrets such as API keys and the journal DSN can stay out of the file.
func LoadClientConfigFromYAML(path string) (ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ClientConfig{}, err
	}

	var config ClientConfig
	if err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return ClientConfig{}, err
	}

	// hydrate required fields and set defaults for optional fields
	config.hydrateDefaults()

	return config, config.validate()
}

/* --------------------------------- Client Config Methods -------------------------------- */

// PaginationEnabled returns true if a record contract is configured.
func (c ClientConfig) PaginationEnabled() bool {
	return c.Pagination != nil
}

/* --------------------------------- Client Config Hydration Helpers -------------------------------- */

func (c *ClientConfig) hydrateDefaults() {
	c.Pool.HydrateDefaults()
	c.Retry.HydrateDefaults()
	c.Batch.HydrateDefaults()
	c.Transactions.HydrateDefaults()
	c.Journal.hydrateJournalDefaults()
	c.Metrics.hydrateMetricsDefaults()
	c.Logger.hydrateLoggerDefaults()
	if c.Pagination != nil {
		c.Pagination.hydratePaginationDefaults()
	}
}

/* --------------------------------- Client Config Validation Helpers -------------------------------- */

func (c ClientConfig) validate() error {
	if err := c.Chain.validate(); err != nil {
		return fmt.Errorf("invalid chain config: %w", err)
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch config: %w", err)
	}
	if c.Pagination != nil {
		if err := c.Pagination.validate(); err != nil {
			return fmt.Errorf("invalid pagination config: %w", err)
		}
	}
	if err := c.Notifications.validate(); err != nil {
		return fmt.Errorf("invalid notifications config: %w", err)
	}
	if err := c.Journal.validate(); err != nil {
		return fmt.Errorf("invalid journal config: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if c.Pool.MaxConsecutiveFailures < 1 {
		return errors.New("invalid pool config: max_consecutive_failures must be positive")
	}

	return nil
}
