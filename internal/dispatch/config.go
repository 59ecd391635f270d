package dispatch

import (
	"time"
)

// Config controls the worker's polling cadence and per-command timeout.
type Config struct {
	IdleSleep      time.Duration
	FailureSleep   time.Duration
	CommandTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		IdleSleep:      time.Second,
		FailureSleep:   5 * time.Second,
		CommandTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.IdleSleep <= 0 {
		c.IdleSleep = defaults.IdleSleep
	}
	if c.FailureSleep <= 0 {
		c.FailureSleep = defaults.FailureSleep
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = defaults.CommandTimeout
	}
	return c
}

func ProvideConfig() Config {
	return DefaultConfig()
}
