package pipeline

import (
	"context"
	"time"

	"repostreach/pkg/logger"
	"repostreach/pkg/metrics"
	"repostreach/pkg/retry"
)

// DefaultCooldown matches the rate-limit window of the public APIs
const DefaultCooldown = 15 * time.Minute

// DefaultCheckpointEvery is the number of items between progress snapshots
const DefaultCheckpointEvery = 100

// policy is the per-item failure policy shared by both phases
type policy struct {
	phase    string
	cooldown time.Duration
	attempts int
	log      logger.Logger
	metrics  *metrics.Metrics
	// onCooldown is told about each wait before it starts
	onCooldown func(item string, wait time.Duration)
}

// fetchItem runs fetch under the cooldown policy. A nil error means the
// value is good. When ctx is done the context error is returned and the
// item must be left untouched; any other error means the item is missed.
func fetchItem[T any](ctx context.Context, p policy, id string, fetch func(context.Context, string) (T, error)) (T, error) {
	cfg := retry.CooldownConfig(ctx, p.cooldown, p.log)
	if p.attempts > 0 {
		cfg.MaxAttempts = p.attempts
	}
	// Backends may surface their own timeouts as deadline errors; only a
	// done run context stops the retry.
	cfg.RetryIf = func(error) bool { return ctx.Err() == nil }

	retried := false
	cfg.OnRetry = func(_ int, err error, delay time.Duration) {
		retried = true
		logger.LogCooldown(p.log, p.phase, id, delay, err)
		p.metrics.ObserveCooldown(p.phase)
		if p.onCooldown != nil {
			p.onCooldown(id, delay)
		}
	}

	v, err := retry.DoWithResult(func() (T, error) {
		return fetch(ctx, id)
	}, cfg)

	if cerr := ctx.Err(); cerr != nil {
		var zero T
		return zero, cerr
	}
	switch {
	case err != nil:
		p.metrics.ObserveFetch(p.phase, metrics.OutcomeMissed)
	case retried:
		p.metrics.ObserveFetch(p.phase, metrics.OutcomeRetriedOK)
	default:
		p.metrics.ObserveFetch(p.phase, metrics.OutcomeOK)
	}
	return v, err
}

// cadence decides when a phase hands its state to the checkpoint callback
type cadence struct {
	every     int
	processed int
}

func newCadence(every int) *cadence {
	if every <= 0 {
		every = DefaultCheckpointEvery
	}
	return &cadence{every: every}
}

// tick records one processed item and reports whether a checkpoint is due
func (c *cadence) tick() bool {
	c.processed++
	return c.processed%c.every == 0
}
