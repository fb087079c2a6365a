package config

import (
	"errors"
	"fmt"

	"github.com/buildwithgrove/ledgerclient/config/utils"
)

/* --------------------------------- Journal Config Defaults -------------------------------- */

const (
	JournalDriverMemory   = "memory"
	JournalDriverPostgres = "postgres"
)

/* --------------------------------- Journal Config Struct -------------------------------- */

// JournalConfig selects where submitted writes are journaled until their outcome is known.
type JournalConfig struct {
	// Driver is "memory" (the default) or "postgres".
	Driver string `yaml:"driver"`

	// DBConnectionString is the PostgreSQL connection string, required by the postgres driver.
	// Typically set as ${JOURNAL_DB_CONNECTION_STRING} and loaded from the environment.
	DBConnectionString string `yaml:"db_connection_string"`
}

/* --------------------------------- Journal Config Private Helpers -------------------------------- */

func (c *JournalConfig) hydrateJournalDefaults() {
	if c.Driver == "" {
		c.Driver = JournalDriverMemory
	}
}

func (c JournalConfig) validate() error {
	switch c.Driver {
	case JournalDriverMemory:
		return nil
	case JournalDriverPostgres:
		if c.DBConnectionString == "" {
			return errors.New("db_connection_string must be set for the postgres driver")
		}
		if !utils.IsValidDBConnectionString(c.DBConnectionString) {
			return errors.New("invalid db_connection_string: must be a postgres:// URL")
		}
		return nil
	default:
		return fmt.Errorf("unknown journal driver %q", c.Driver)
	}
}
