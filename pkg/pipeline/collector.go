package pipeline

import (
	"context"
	"time"

	"repostreach/pkg/logger"
	"repostreach/pkg/metrics"
	"repostreach/pkg/models"
	"repostreach/pkg/social"
)

// Collector runs the collect phase
type Collector struct {
	Client          social.Client
	Cooldown        time.Duration
	Attempts        int
	CheckpointEvery int
	// OnCheckpoint receives the state before the first post, every
	// CheckpointEvery posts and at the end. It must not retain the state.
	OnCheckpoint func(state *CollectState)
	// OnMiss is called each time the miss list grows
	OnMiss func(misses models.MissList)
	// OnCooldown is called before each cooldown wait
	OnCooldown func(item string, wait time.Duration)
	Logger     logger.Logger
	Metrics    *metrics.Metrics
}

// Collect fetches the reposters of every post from state.Next onward.
//
// Each post yields one table row and contributes its reposters to
// state.Accounts, or lands on state.Misses after the retry also fails.
// When ctx is cancelled the current post is neither recorded nor missed,
// a final checkpoint is handed out and the context error is returned.
func (c *Collector) Collect(ctx context.Context, postIDs []string, state *CollectState) error {
	log := c.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("phase", PhaseCollect)

	if state.Table == nil {
		state.Table = models.PostTable{}
	}
	if state.Accounts == nil {
		state.Accounts = models.AccountSetFromTable(state.Table)
	}

	p := policy{
		phase:    PhaseCollect,
		cooldown: c.cooldown(),
		attempts: c.Attempts,
		log:      log,
		metrics:  c.Metrics,

		onCooldown: c.OnCooldown,
	}
	every := newCadence(c.CheckpointEvery)

	c.checkpoint(log, state, len(postIDs))
	for state.Next < len(postIDs) {
		postID := postIDs[state.Next]

		reposters, err := fetchItem(ctx, p, postID, c.Client.ListReposters)
		if ctx.Err() != nil {
			log.WithField("post_id", postID).Info("Collect interrupted, saving progress")
			c.checkpoint(log, state, len(postIDs))
			return ctx.Err()
		}

		if err != nil {
			state.Misses = append(state.Misses, postID)
			log.WithError(err).WithField("post_id", postID).Error("Post missed")
			if c.OnMiss != nil {
				c.OnMiss(state.Misses)
			}
		} else {
			record := models.NewPostRecord(postID, reposters)
			state.Table = append(state.Table, record)
			state.Accounts.Add(record.ReposterIDs...)
			log.DebugWithFields("Post collected", map[string]interface{}{
				"post_id":        postID,
				"reposter_count": record.ReposterCount,
			})
		}
		state.Next++

		if every.tick() {
			c.checkpoint(log, state, len(postIDs))
		}
	}

	state.Done = true
	c.checkpoint(log, state, len(postIDs))
	logger.LogMisses(log, PhaseCollect, state.Misses)
	return nil
}

func (c *Collector) cooldown() time.Duration {
	if c.Cooldown <= 0 {
		return DefaultCooldown
	}
	return c.Cooldown
}

func (c *Collector) checkpoint(log logger.Logger, state *CollectState, total int) {
	logger.LogPhaseProgress(log, PhaseCollect, state.Next, total)
	c.Metrics.SetRemaining(PhaseCollect, total-state.Next)
	if c.OnCheckpoint != nil {
		c.OnCheckpoint(state)
	}
}
