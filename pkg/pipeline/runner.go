package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"repostreach/pkg/checkpoint"
	errs "repostreach/pkg/errors"
	"repostreach/pkg/logger"
	"repostreach/pkg/metrics"
	"repostreach/pkg/models"
	"repostreach/pkg/social"
	"repostreach/pkg/storage"
)

// Notice titles passed to RunnerConfig.Notify
const (
	NoticeCooldown    = "Cooling down"
	NoticeCollectDone = "Collect complete"
	NoticeCountDone   = "Count complete"
	NoticeRunDone     = "Run complete"
)

// RunnerConfig wires a Runner
type RunnerConfig struct {
	Client  social.Client
	Store   checkpoint.Store
	Results *storage.Manager

	Cooldown        time.Duration
	Attempts        int
	CheckpointEvery int

	// RunID tags checkpoint envelopes and log lines. Generated when empty.
	RunID   string
	Logger  logger.Logger
	Metrics *metrics.Metrics
	// Notify, when set, is told about cooldowns and phase completion
	Notify func(title, message string)
}

// Runner drives collect, count and aggregate over one input list and
// keeps the checkpoint store and result file in step with them
type Runner struct {
	cfg RunnerConfig
	log logger.Logger
}

// Report summarises a finished run
type Report struct {
	RunID         string
	Resumed       bool
	Posts         int
	Collected     int
	PostMisses    models.MissList
	Accounts      int
	Counted       int
	AccountMisses models.MissList
	Table         models.PostTable
	Duration      time.Duration
}

// NewRunner validates cfg and returns a Runner
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("runner requires a social client")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("runner requires a checkpoint store")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("runner requires a result file")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		cfg: cfg,
		log: log.WithField("run_id", cfg.RunID),
	}, nil
}

// RunID returns the id this runner tags its work with
func (r *Runner) RunID() string { return r.cfg.RunID }

// HasCheckpoint reports whether store holds progress of an unfinished run
func HasCheckpoint(ctx context.Context, store checkpoint.Store) bool {
	return store.Exists(ctx, checkpoint.CollectorProgress) || store.Exists(ctx, checkpoint.FollowerProgress)
}

// Reset removes every checkpoint, miss lists included
func Reset(ctx context.Context, store checkpoint.Store) error {
	for _, name := range []string{
		checkpoint.CollectorProgress,
		checkpoint.FollowerProgress,
		checkpoint.PostMisses,
		checkpoint.AccountMisses,
	} {
		if err := store.Delete(ctx, name); err != nil {
			return fmt.Errorf("failed to reset checkpoint %s: %w", name, err)
		}
	}
	return nil
}

// Run executes the whole pipeline over postIDs. With resume set, progress
// saved by an earlier run is loaded and only the remaining work is done.
//
// On cancellation the latest progress is checkpointed and the context
// error is returned; the result file then holds whatever the last
// completed step wrote.
func (r *Runner) Run(ctx context.Context, postIDs []string, resume bool) (*Report, error) {
	start := time.Now()
	// Checkpoints must still land after ctx is cancelled
	persist := context.WithoutCancel(ctx)

	report := &Report{RunID: r.cfg.RunID, Posts: len(postIDs)}

	logger.LogComponentStart(r.log, "pipeline", map[string]interface{}{
		"posts":            len(postIDs),
		"resume":           resume,
		"cooldown":         r.cfg.Cooldown,
		"checkpoint_every": r.cfg.CheckpointEvery,
		"results":          r.cfg.Results.Path(),
	})

	collectState := &CollectState{}
	countState := &CountState{}
	if resume {
		loaded, err := r.load(ctx, postIDs, collectState, countState)
		if err != nil {
			return nil, err
		}
		report.Resumed = loaded
	}
	if !report.Resumed {
		if err := Reset(ctx, r.cfg.Store); err != nil {
			return nil, err
		}
		if err := r.cfg.Results.Init(); err != nil {
			return nil, errs.New(errs.ErrorTypeCheckpoint, "failed to initialise result file: %v", err)
		}
		collectState.Input = FingerprintOf(postIDs)
	}

	if err := r.collect(ctx, persist, postIDs, collectState); err != nil {
		return nil, err
	}
	report.Collected = len(collectState.Table)
	report.PostMisses = collectState.Misses

	accounts := models.AccountSetFromTable(collectState.Table)
	report.Accounts = accounts.Len()
	if err := r.count(ctx, persist, accounts, countState); err != nil {
		return nil, err
	}
	report.Counted = len(countState.Followers)
	report.AccountMisses = countState.Misses

	r.log.Info("Social API no longer needed, aggregating exposure")
	report.Table = Aggregate(collectState.Table, countState.Followers)
	if err := r.cfg.Results.Rewrite(report.Table); err != nil {
		return nil, fmt.Errorf("failed to write results: %w", err)
	}

	// Miss lists stay behind for inspection
	for _, name := range []string{checkpoint.CollectorProgress, checkpoint.FollowerProgress} {
		if err := r.cfg.Store.Delete(persist, name); err != nil {
			r.log.WithError(err).WithField("checkpoint", name).Warn("Failed to clear checkpoint")
		}
	}

	report.Duration = time.Since(start)
	r.log.WithFields(map[string]interface{}{
		"posts":          report.Posts,
		"collected":      report.Collected,
		"post_misses":    len(report.PostMisses),
		"accounts":       report.Accounts,
		"counted":        report.Counted,
		"account_misses": len(report.AccountMisses),
		"duration":       report.Duration,
	}).Info("Run complete")
	r.notify(NoticeRunDone, fmt.Sprintf("%d posts, %d post misses, %d account misses",
		report.Posts, len(report.PostMisses), len(report.AccountMisses)))

	return report, nil
}

// load restores both phase states. It reports false when no progress was found.
func (r *Runner) load(ctx context.Context, postIDs []string, collectState *CollectState, countState *CountState) (bool, error) {
	found, err := r.cfg.Store.Load(ctx, checkpoint.CollectorProgress, collectState)
	if err != nil {
		return false, err
	}
	if !found {
		r.log.Info("No checkpoint found, starting fresh")
		return false, nil
	}
	if collectState.Next > len(postIDs) {
		return false, errs.New(errs.ErrorTypeCheckpoint,
			"checkpoint has visited %d posts but the input only has %d", collectState.Next, len(postIDs))
	}
	if current := FingerprintOf(postIDs); collectState.Input != current {
		return false, errs.New(errs.ErrorTypeCheckpoint,
			"checkpoint belongs to a different input (%d rows, digest %.12s) than the current one (%d rows, digest %.12s)",
			collectState.Input.Rows, collectState.Input.Digest, current.Rows, current.Digest)
	}
	collectState.Accounts = models.AccountSetFromTable(collectState.Table)

	if _, err := r.cfg.Store.Load(ctx, checkpoint.FollowerProgress, countState); err != nil {
		return false, err
	}

	r.log.WithFields(map[string]interface{}{
		"next_post":      collectState.Next,
		"collect_done":   collectState.Done,
		"counted":        len(countState.Followers),
		"account_misses": len(countState.Misses),
	}).Info("Resuming from checkpoint")

	if !r.cfg.Results.Exists() {
		if err := r.cfg.Results.Init(); err != nil {
			return false, errs.New(errs.ErrorTypeCheckpoint, "failed to initialise result file: %v", err)
		}
	}
	return true, nil
}

func (r *Runner) collect(ctx, persist context.Context, postIDs []string, state *CollectState) error {
	if state.Done {
		// Rows may or may not have been appended before the previous run stopped
		if err := r.cfg.Results.Rewrite(state.Table); err != nil {
			return fmt.Errorf("failed to write collected rows: %w", err)
		}
		r.log.WithField("phase", PhaseCollect).Info("Phase already complete, skipping")
		return nil
	}

	collector := &Collector{
		Client:          r.cfg.Client,
		Cooldown:        r.cfg.Cooldown,
		Attempts:        r.cfg.Attempts,
		CheckpointEvery: r.cfg.CheckpointEvery,
		OnCheckpoint: func(s *CollectState) {
			r.save(persist, checkpoint.CollectorProgress, s)
		},
		OnMiss: func(m models.MissList) {
			r.save(persist, checkpoint.PostMisses, m)
		},
		OnCooldown: r.cooldownNotice(PhaseCollect),
		Logger:     r.log,
		Metrics:    r.cfg.Metrics,
	}
	r.log.Info("Collect: beginning job")
	if err := collector.Collect(ctx, postIDs, state); err != nil {
		return err
	}

	if err := r.cfg.Results.Append(state.Table); err != nil {
		return fmt.Errorf("failed to append collected rows: %w", err)
	}
	r.save(persist, checkpoint.PostMisses, state.Misses)
	r.log.WithField("results", r.cfg.Results.Path()).Info("Collect: job complete")
	r.notify(NoticeCollectDone, fmt.Sprintf("%d posts collected, %d missed", len(state.Table), len(state.Misses)))
	return nil
}

func (r *Runner) count(ctx, persist context.Context, accounts models.AccountSet, state *CountState) error {
	if state.Done {
		r.log.WithField("phase", PhaseCount).Info("Phase already complete, skipping")
		return nil
	}

	counter := &Counter{
		Client:          r.cfg.Client,
		Cooldown:        r.cfg.Cooldown,
		Attempts:        r.cfg.Attempts,
		CheckpointEvery: r.cfg.CheckpointEvery,
		OnCheckpoint: func(s *CountState) {
			r.save(persist, checkpoint.FollowerProgress, s)
		},
		OnMiss: func(m models.MissList) {
			r.save(persist, checkpoint.AccountMisses, m)
		},
		OnCooldown: r.cooldownNotice(PhaseCount),
		Logger:     r.log,
		Metrics:    r.cfg.Metrics,
	}
	r.log.Info("Count: beginning job")
	if err := counter.Count(ctx, accounts, state); err != nil {
		return err
	}

	r.save(persist, checkpoint.AccountMisses, state.Misses)
	r.log.Info("Count: job complete")
	r.notify(NoticeCountDone, fmt.Sprintf("%d accounts counted, %d missed", len(state.Followers), len(state.Misses)))
	return nil
}

// save writes a snapshot. A failed write is logged and the run goes on;
// the next checkpoint gets another chance.
func (r *Runner) save(ctx context.Context, name string, v any) {
	err := r.cfg.Store.Save(ctx, name, v)
	r.cfg.Metrics.ObserveCheckpoint(checkpoint.PhaseOf(name), err)
	if err != nil {
		r.log.WithError(err).WithField("checkpoint", name).Warn("Checkpoint write failed")
	}
}

func (r *Runner) cooldownNotice(phase string) func(string, time.Duration) {
	return func(item string, wait time.Duration) {
		r.notify(NoticeCooldown, fmt.Sprintf("%s: %s failed, retrying in %s", phase, item, wait))
	}
}

func (r *Runner) notify(title, message string) {
	if r.cfg.Notify != nil {
		r.cfg.Notify(title, message)
	}
}
