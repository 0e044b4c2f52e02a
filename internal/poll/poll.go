// Package poll waits for an asynchronous provider task to become ready, using bounded
// exponential backoff between readiness checks.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrTimeout is returned when the task did not become ready within MaxWait
var ErrTimeout = errors.New("timed out waiting for task to become ready")

// Config bounds the polling loop. The delay starts at InitialDelay and is multiplied
// by BackoffMultiplier every ChecksPerStage checks, capped at MaxDelay. Polling stops
// with ErrTimeout once MaxWait has elapsed.
type Config struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	ChecksPerStage    int
	MaxWait           time.Duration
}

func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 5 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = time.Minute
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2
	}
	if c.ChecksPerStage <= 0 {
		c.ChecksPerStage = 3
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 10 * time.Minute
	}
	return c
}

// CheckFunc reports whether the external task is ready. An error aborts the wait
type CheckFunc func(ctx context.Context) (bool, error)

// WaitUntilReady sleeps then checks until check reports ready. The early checks come
// quickly, when tasks are most likely to have finished; later checks back off so a
// slow task does not burn through the provider's rate limit.
func WaitUntilReady(ctx context.Context, cfg Config, check CheckFunc) error {
	cfg = cfg.withDefaults()

	delay := cfg.InitialDelay
	deadline := time.Now().Add(cfg.MaxWait)

	for checks := 0; ; checks++ {
		if checks > 0 && checks%cfg.ChecksPerStage == 0 {
			delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		if time.Now().Add(delay).After(deadline) {
			log.Warn().
				Dur("max_wait", cfg.MaxWait).
				Int("checks", checks).
				Msg("Gave up waiting for task")
			return ErrTimeout
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		ready, err := check(ctx)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
	}
}
