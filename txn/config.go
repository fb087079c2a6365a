package txn

import "time"

const (
	defaultTimeout             = 60 * time.Second
	defaultPollInitialInterval = 500 * time.Millisecond
	defaultPollMaxInterval     = 4 * time.Second
	defaultProgressInterval    = 5 * time.Second
	defaultSubmitTimeout       = 15 * time.Second
	defaultFinalCheckTimeout   = 2 * time.Second
)

// Config of the orchestrator. Unset fields are hydrated with defaults.
type Config struct {
	// DefaultTimeout is the monitoring deadline of a write submitted without an explicit timeout.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// PollInitialInterval and PollMaxInterval bound the exponential backoff between receipt polls.
	PollInitialInterval time.Duration `yaml:"poll_initial_interval"`
	PollMaxInterval     time.Duration `yaml:"poll_max_interval"`
	// ProgressInterval is the period of the processing notifications emitted while a write is pending.
	ProgressInterval time.Duration `yaml:"progress_interval"`
	// SubmitTimeout bounds each submission try, and the replay of a reverted call.
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	// FinalCheckTimeout bounds the last receipt lookup made once the deadline has passed.
	FinalCheckTimeout time.Duration `yaml:"final_check_timeout"`
}

func (c *Config) HydrateDefaults() {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultTimeout
	}
	if c.PollInitialInterval <= 0 {
		c.PollInitialInterval = defaultPollInitialInterval
	}
	if c.PollMaxInterval <= 0 {
		c.PollMaxInterval = defaultPollMaxInterval
	}
	if c.PollMaxInterval < c.PollInitialInterval {
		c.PollMaxInterval = c.PollInitialInterval
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = defaultProgressInterval
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = defaultSubmitTimeout
	}
	if c.FinalCheckTimeout <= 0 {
		c.FinalCheckTimeout = defaultFinalCheckTimeout
	}
}
