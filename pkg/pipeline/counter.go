package pipeline

import (
	"context"
	"time"

	"repostreach/pkg/logger"
	"repostreach/pkg/metrics"
	"repostreach/pkg/models"
	"repostreach/pkg/social"
)

// Counter runs the count phase
type Counter struct {
	Client          social.Client
	Cooldown        time.Duration
	Attempts        int
	CheckpointEvery int
	OnCheckpoint    func(state *CountState)
	OnMiss          func(misses models.MissList)
	OnCooldown      func(item string, wait time.Duration)
	Logger          logger.Logger
	Metrics         *metrics.Metrics
}

// Count looks up the follower count of every account in sorted order,
// skipping accounts that state already holds as counted or missed. Each
// account is fetched at most once per run however many posts it reposted.
// Cancellation behaves as in Collector.Collect.
func (c *Counter) Count(ctx context.Context, accounts models.AccountSet, state *CountState) error {
	log := c.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("phase", PhaseCount)

	if state.Followers == nil {
		state.Followers = models.FollowerIndex{}
	}

	members := accounts.Members()
	settled := state.settled()
	pending := make([]string, 0, len(members))
	for _, id := range members {
		if _, ok := settled[id]; !ok {
			pending = append(pending, id)
		}
	}
	total := len(members)
	remaining := func() int { return total - len(state.Followers) - len(state.Misses) }

	p := policy{
		phase:    PhaseCount,
		cooldown: c.cooldown(),
		attempts: c.Attempts,
		log:      log,
		metrics:  c.Metrics,

		onCooldown: c.OnCooldown,
	}
	every := newCadence(c.CheckpointEvery)

	c.checkpoint(log, state, total-remaining(), total)
	for _, accountID := range pending {
		followers, err := fetchItem(ctx, p, accountID, c.Client.FollowerCount)
		if ctx.Err() != nil {
			log.WithField("account_id", accountID).Info("Count interrupted, saving progress")
			c.checkpoint(log, state, total-remaining(), total)
			return ctx.Err()
		}

		if err != nil {
			state.Misses = append(state.Misses, accountID)
			log.WithError(err).WithField("account_id", accountID).Error("Account missed")
			if c.OnMiss != nil {
				c.OnMiss(state.Misses)
			}
		} else {
			state.Followers[accountID] = followers
		}

		if every.tick() {
			c.checkpoint(log, state, total-remaining(), total)
		}
	}

	state.Done = true
	c.checkpoint(log, state, total, total)
	logger.LogMisses(log, PhaseCount, state.Misses)
	return nil
}

func (c *Counter) cooldown() time.Duration {
	if c.Cooldown <= 0 {
		return DefaultCooldown
	}
	return c.Cooldown
}

func (c *Counter) checkpoint(log logger.Logger, state *CountState, done, total int) {
	logger.LogPhaseProgress(log, PhaseCount, done, total)
	c.Metrics.SetRemaining(PhaseCount, total-done)
	if c.OnCheckpoint != nil {
		c.OnCheckpoint(state)
	}
}
