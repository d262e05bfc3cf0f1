package runtime

import "time"

// Config holds dispatch loop and caching configuration.
type Config struct {
	// MaxCachedMessageAge is how many script runs (generations) a session's
	// cache reference may go unused before it is evicted at the session's
	// next run boundary.
	MaxCachedMessageAge uint64 `env:"RUNTIME_MAX_CACHED_MESSAGE_AGE" envDefault:"2"`

	// MinCachedMessageSize is the minimum approximate message size, in
	// bytes, for a message to be worth caching under the default policy.
	MinCachedMessageSize int `env:"RUNTIME_MIN_CACHED_MESSAGE_SIZE" envDefault:"10240"`

	// FlushInterval is the cooperative pause between queue-flush passes so
	// that flushing large backlogs cannot starve stop/connect signals.
	FlushInterval time.Duration `env:"RUNTIME_FLUSH_INTERVAL" envDefault:"10ms"`

	// ShutdownTimeout bounds how long Stop waits for the dispatch loop to
	// drain and tear down sessions.
	ShutdownTimeout time.Duration `env:"RUNTIME_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// normalize fills in defaults for zero-valued fields that have no meaningful
// zero semantics. MaxCachedMessageAge is left alone: zero is a valid policy
// (evict everything not referenced in the current run).
func (c Config) normalize() Config {
	if c.MinCachedMessageSize <= 0 {
		c.MinCachedMessageSize = 10 * 1024
	}
	if c.FlushInterval < 0 {
		c.FlushInterval = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}
