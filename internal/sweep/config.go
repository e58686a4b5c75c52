package sweep

import "time"

type Config struct {
	// BatchSize caps how many expired subscriptions one run processes.
	BatchSize int
	// Timeout bounds a single run.
	Timeout time.Duration
	// LockTTL is the single-flight lock lease. It must exceed Timeout so the
	// lock cannot lapse mid-run.
	LockTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.LockTTL <= c.Timeout {
		c.LockTTL = c.Timeout + time.Minute
	}
	return c
}
