package retry

import (
	"time"

	"github.com/buildwithgrove/ledgerclient/protocol"
)

const (
	defaultMaxAttempts    = 3
	defaultBaseDelay      = 250 * time.Millisecond
	defaultMaxDelay       = 30 * time.Second
	defaultAttemptTimeout = 10 * time.Second
)

// Config bounds the retries of one read.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelay is the delay before the second attempt. Each further delay doubles it.
	BaseDelay time.Duration `yaml:"base_delay"`
	// MaxDelay caps the delay between two attempts.
	MaxDelay time.Duration `yaml:"max_delay"`
	// AttemptTimeout bounds each single attempt.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// retryIf marks failures outside the network class as retryable for one read.
	retryIf func(error) bool
}

// retryable reports whether err is retried on the next endpoint.
func (c *Config) retryable(err error) bool {
	return protocol.IsNetworkError(err) || (c.retryIf != nil && c.retryIf(err))
}

func (c *Config) HydrateDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaultAttemptTimeout
	}
}

// Option overrides the executor's Config for a single read.
type Option func(*Config)

// WithMaxAttempts sets the total number of attempts. Values below 1 are treated as 1.
func WithMaxAttempts(maxAttempts int) Option {
	return func(c *Config) {
		c.MaxAttempts = max(maxAttempts, 1)
	}
}

// WithBaseDelay sets the delay before the second attempt.
func WithBaseDelay(baseDelay time.Duration) Option {
	return func(c *Config) {
		c.BaseDelay = baseDelay
	}
}

// WithRetryIf also retries, on the next endpoint, the failures for which retryIf returns true.
// It suits reads whose answer depends on the endpoint's state, e.g. a call at a past block
// that a pruned or lagging node answers with an error.
func WithRetryIf(retryIf func(error) bool) Option {
	return func(c *Config) {
		c.retryIf = retryIf
	}
}

// WithAttemptTimeout sets the timeout of each single attempt.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.AttemptTimeout = timeout
	}
}
