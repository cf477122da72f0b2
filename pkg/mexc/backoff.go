package mexc

import (
	"math"
	"time"
)

// BackoffConfig controls the reconnect delay curve.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// BackoffDelay returns the reconnect delay for a zero-indexed attempt count:
// min(initial * multiplier^attempt, max). Sequence with defaults:
// 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
func BackoffDelay(attempt int, cfg BackoffConfig) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(delay)
}
