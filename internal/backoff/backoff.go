// Package backoff computes the delay between retries of a failed status query.
package backoff

import (
	"math"
	"time"
)

const (
	defaultInitial = 250 * time.Millisecond
	defaultMax     = 5 * time.Second
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 250ms
	Max     time.Duration // default: 5s
}

// Exponential calculates the delay before retry number attempt.
// Attempt 1 returns Initial, attempt 2 returns Initial*2, and so on up to Max.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := defaultInitial
	maxDelay := defaultMax
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxDelay = cfg.Max
		}
	}
	if initial > maxDelay {
		return maxDelay
	}

	if attempt < 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}
