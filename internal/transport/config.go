package transport

import (
	"time"

	"github.com/danmuck/meshd/internal/transport/frame"
)

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines socket timeouts and retry policy. Zero timeouts disable
// the matching deadline.
type Config struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxAttempts  int
	Backoff      BackoffConfig
	Limits       frame.Limits
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		MaxAttempts:  3,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
		Limits: frame.DefaultLimits(),
	}
}
