package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/buildwithgrove/ledgerclient/paginator"
)

/* --------------------------------- Pagination Config Defaults -------------------------------- */

const (
	defaultCountMethod  = "count"
	defaultRecordMethod = "records"
)

/* --------------------------------- Pagination Config Struct -------------------------------- */

// PaginationConfig describes a contract storing records under dense ids 0..count-1.
// The ABI and method names are consumed as-is: the contract is owned elsewhere.
type PaginationConfig struct {
	// RecordContract is the address of the record contract.
	RecordContract string `yaml:"record_contract"`

	// ABI is the JSON ABI of the record contract. Only the count and record methods are used.
	ABI string `yaml:"abi"`

	// CountMethod takes no argument and returns the number of records.
	CountMethod string `yaml:"count_method"`

	// RecordMethod takes a record id and returns the record's fields.
	RecordMethod string `yaml:"record_method"`

	// StatusField is the record output holding the record's status.
	// If empty, every record is considered terminal and is cached until evicted.
	StatusField string `yaml:"status_field"`

	// TerminalStatuses are the status values after which a record can no longer change.
	TerminalStatuses []uint64 `yaml:"terminal_statuses"`

	paginator.Config `yaml:",inline"`

	parsedABI abi.ABI
}

// Address returns the record contract's address.
func (c *PaginationConfig) Address() common.Address {
	return common.HexToAddress(c.RecordContract)
}

// ContractABI returns the parsed ABI. It is only set on a validated config.
func (c *PaginationConfig) ContractABI() abi.ABI {
	return c.parsedABI
}

// IsTerminalStatus returns true if records with the given status can no longer change.
func (c *PaginationConfig) IsTerminalStatus(status uint64) bool {
	return slices.Contains(c.TerminalStatuses, status)
}

/* --------------------------------- Pagination Config Private Helpers -------------------------------- */

func (c *PaginationConfig) hydratePaginationDefaults() {
	if c.CountMethod == "" {
		c.CountMethod = defaultCountMethod
	}
	if c.RecordMethod == "" {
		c.RecordMethod = defaultRecordMethod
	}
	c.Config.HydrateDefaults()
}

func (c *PaginationConfig) validate() error {
	if !common.IsHexAddress(c.RecordContract) {
		return fmt.Errorf("invalid record contract address %q", c.RecordContract)
	}
	if c.ABI == "" {
		return errors.New("abi must be set")
	}

	parsed, err := abi.JSON(strings.NewReader(c.ABI))
	if err != nil {
		return fmt.Errorf("invalid abi: %w", err)
	}

	countMethod, ok := parsed.Methods[c.CountMethod]
	if !ok {
		return fmt.Errorf("count method %q is not in the abi", c.CountMethod)
	}
	if len(countMethod.Inputs) != 0 || len(countMethod.Outputs) != 1 {
		return fmt.Errorf("count method %q must take no argument and return one value", c.CountMethod)
	}

	recordMethod, ok := parsed.Methods[c.RecordMethod]
	if !ok {
		return fmt.Errorf("record method %q is not in the abi", c.RecordMethod)
	}
	if len(recordMethod.Inputs) != 1 {
		return fmt.Errorf("record method %q must take the record id as its only argument", c.RecordMethod)
	}

	if c.StatusField != "" {
		found := slices.ContainsFunc(recordMethod.Outputs, func(output abi.Argument) bool {
			return output.Name == c.StatusField
		})
		if !found {
			return fmt.Errorf("status field %q is not an output of %q", c.StatusField, c.RecordMethod)
		}
		if len(c.TerminalStatuses) == 0 {
			return errors.New("terminal_statuses must be set when status_field is set")
		}
	}

	c.parsedABI = parsed
	return nil
}
