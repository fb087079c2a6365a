package pool

import (
	"time"
)

const (
	defaultLocalAdmissionTimeout  = 2 * time.Second
	defaultRemoteAdmissionTimeout = 8 * time.Second
	defaultSyncAllowance          = 5
	defaultMaxConsecutiveFailures = 3
	defaultSanctionDuration       = time.Minute
)

// Config holds the admission and demotion settings of a pool.
type Config struct {
	// LocalAdmissionTimeout bounds the admission checks of an endpoint on a loopback or private address.
	LocalAdmissionTimeout time.Duration `yaml:"local_admission_timeout"`
	// RemoteAdmissionTimeout bounds the admission checks of every other endpoint.
	RemoteAdmissionTimeout time.Duration `yaml:"remote_admission_timeout"`
	// SyncAllowance is the number of blocks an endpoint may lag the highest observed height
	// and still be admitted.
	SyncAllowance uint64 `yaml:"sync_allowance"`
	// MaxConsecutiveFailures is the number of consecutive failures that demotes an endpoint.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
	// SanctionDuration is how long a demoted endpoint is skipped by rotation.
	SanctionDuration time.Duration `yaml:"sanction_duration"`
	// RehydrateInterval, if set, re-runs admission periodically via the Hydrator.
	RehydrateInterval time.Duration `yaml:"rehydrate_interval"`
}

// HydrateDefaults fills in every unset field.
func (c *Config) HydrateDefaults() {
	if c.LocalAdmissionTimeout == 0 {
		c.LocalAdmissionTimeout = defaultLocalAdmissionTimeout
	}
	if c.RemoteAdmissionTimeout == 0 {
		c.RemoteAdmissionTimeout = defaultRemoteAdmissionTimeout
	}
	if c.SyncAllowance == 0 {
		c.SyncAllowance = defaultSyncAllowance
	}
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	if c.SanctionDuration == 0 {
		c.SanctionDuration = defaultSanctionDuration
	}
}
