package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repostreach/pkg/checkpoint"
	errs "repostreach/pkg/errors"
	"repostreach/pkg/logger"
	"repostreach/pkg/models"
	"repostreach/pkg/social"
	"repostreach/pkg/storage"
)

type runnerFixture struct {
	store   *checkpoint.FileStore
	results *storage.Manager
	log     *logger.TestLogger
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	dir := t.TempDir()
	store, err := checkpoint.NewFileStore(filepath.Join(dir, "checkpoints"), "run-test", logger.NewNopLogger())
	require.NoError(t, err)
	results, err := storage.NewManager(filepath.Join(dir, "reach.csv"))
	require.NoError(t, err)
	return &runnerFixture{store: store, results: results, log: logger.NewTestLogger()}
}

func (fx *runnerFixture) runner(t *testing.T, client social.Client, store checkpoint.Store) *Runner {
	t.Helper()
	if store == nil {
		store = fx.store
	}
	r, err := NewRunner(RunnerConfig{
		Client:          client,
		Store:           store,
		Results:         fx.results,
		Cooldown:        testCooldown,
		CheckpointEvery: 1,
		RunID:           "run-test",
		Logger:          fx.log,
	})
	require.NoError(t, err)
	return r
}

func exampleClient() *social.FakeClient {
	f := social.NewFakeClient()
	f.Reposters["P1"] = []string{"A", "B"}
	f.Reposters["P2"] = []string{}
	f.Followers["A"] = 5
	f.Followers["B"] = 7
	return f
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)

	var notes []string
	r := fx.runner(t, exampleClient(), nil)
	r.cfg.Notify = func(title, _ string) { notes = append(notes, title) }

	report, err := r.Run(ctx, []string{"P1", "P2"}, false)
	require.NoError(t, err)

	assert.Equal(t, "run-test", report.RunID)
	assert.False(t, report.Resumed)
	assert.Equal(t, 2, report.Collected)
	assert.Equal(t, 2, report.Accounts)
	assert.Equal(t, 2, report.Counted)
	assert.Empty(t, report.PostMisses)
	assert.Empty(t, report.AccountMisses)

	table, err := storage.ReadResults(fx.results.Path())
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "P1", table[0].PostID)
	assert.Equal(t, 2, table[0].ReposterCount)
	assert.Equal(t, int64(12), *table[0].Exposure)
	assert.Equal(t, "P2", table[1].PostID)
	assert.Equal(t, 0, table[1].ReposterCount)
	assert.Equal(t, int64(0), *table[1].Exposure)

	assert.False(t, HasCheckpoint(ctx, fx.store))
	assert.True(t, fx.store.Exists(ctx, checkpoint.PostMisses))
	assert.True(t, fx.store.Exists(ctx, checkpoint.AccountMisses))
	assert.Equal(t, []string{"Collect complete", "Count complete", "Run complete"}, notes)
	assert.True(t, fx.log.HasMessage("Run complete"))
}

func TestRunPersistsMissLists(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)

	f := exampleClient()
	f.Reposters["P3"] = []string{"C"}
	f.Failures["P2"] = -1

	report, err := fx.runner(t, f, nil).Run(ctx, []string{"P1", "P2", "P3"}, false)
	require.NoError(t, err)
	assert.Equal(t, models.MissList{"P2"}, report.PostMisses)
	assert.Equal(t, models.MissList{"C"}, report.AccountMisses)

	var postMisses, accountMisses models.MissList
	_, err = fx.store.Load(ctx, checkpoint.PostMisses, &postMisses)
	require.NoError(t, err)
	_, err = fx.store.Load(ctx, checkpoint.AccountMisses, &accountMisses)
	require.NoError(t, err)
	assert.Equal(t, models.MissList{"P2"}, postMisses)
	assert.Equal(t, models.MissList{"C"}, accountMisses)

	table, err := storage.ReadResults(fx.results.Path())
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, int64(0), *table[1].Exposure, "missed account contributes nothing")
}

func TestRunResumeAfterInterruptDuringCount(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	posts := []string{"P1", "P2"}

	first := exampleClient()
	runCtx, cancel := context.WithCancel(ctx)
	first.BeforeCall = func(id string) {
		if id == "B" {
			cancel()
		}
	}
	_, err := fx.runner(t, first, nil).Run(runCtx, posts, false)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, HasCheckpoint(ctx, fx.store))

	// Collected rows were appended before counting began
	partial, err := storage.ReadResults(fx.results.Path())
	require.NoError(t, err)
	require.Len(t, partial, 2)
	assert.Nil(t, partial[0].Exposure)

	second := exampleClient()
	report, err := fx.runner(t, second, nil).Run(ctx, posts, true)
	require.NoError(t, err)
	assert.True(t, report.Resumed)

	assert.Zero(t, second.Calls("P1"), "collect phase is not repeated")
	assert.Zero(t, second.Calls("A"), "counted accounts are not refetched")
	assert.Equal(t, 1, second.Calls("B"))

	table, err := storage.ReadResults(fx.results.Path())
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, int64(12), *table[0].Exposure)
	assert.False(t, HasCheckpoint(ctx, fx.store))
}

func TestRunResumeWithoutCheckpointStartsFresh(t *testing.T) {
	fx := newRunnerFixture(t)

	report, err := fx.runner(t, exampleClient(), nil).Run(context.Background(), []string{"P1"}, true)
	require.NoError(t, err)
	assert.False(t, report.Resumed)
	assert.True(t, fx.log.HasMessage("No checkpoint found, starting fresh"))
}

func TestRunResumeRejectsShorterInput(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	require.NoError(t, fx.store.Save(ctx, checkpoint.CollectorProgress, &CollectState{Next: 5}))

	_, err := fx.runner(t, exampleClient(), nil).Run(ctx, []string{"P1"}, true)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeCheckpoint, errs.TypeOf(err))
}

func TestRunResumeRejectsDifferentInput(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	original := []string{"P1", "P2", "P3"}

	// Stop after the first post so collect progress stays behind
	client := exampleClient()
	runCtx, cancel := context.WithCancel(ctx)
	client.BeforeCall = func(id string) {
		if id == "P2" {
			cancel()
		}
	}
	_, err := fx.runner(t, client, nil).Run(runCtx, original, false)
	require.ErrorIs(t, err, context.Canceled)

	var saved CollectState
	found, err := fx.store.Load(ctx, checkpoint.CollectorProgress, &saved)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, FingerprintOf(original), saved.Input)

	tests := []struct {
		name  string
		posts []string
	}{
		{name: "same length, other ids", posts: []string{"P1", "P9", "P3"}},
		{name: "reordered", posts: []string{"P3", "P2", "P1"}},
		{name: "longer", posts: []string{"P1", "P2", "P3", "P4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.runner(t, exampleClient(), nil).Run(ctx, tt.posts, true)
			require.Error(t, err)
			assert.Equal(t, errs.ErrorTypeCheckpoint, errs.TypeOf(err))
		})
	}

	// The matching input still resumes
	report, err := fx.runner(t, exampleClient(), nil).Run(ctx, original, true)
	require.NoError(t, err)
	assert.True(t, report.Resumed)
}

func TestFingerprintOf(t *testing.T) {
	a := FingerprintOf([]string{"1", "23"})
	assert.Equal(t, 2, a.Rows)
	assert.Len(t, a.Digest, 64)
	assert.Equal(t, a, FingerprintOf([]string{"1", "23"}))
	assert.NotEqual(t, a.Digest, FingerprintOf([]string{"12", "3"}).Digest)
	assert.NotEqual(t, a.Digest, FingerprintOf([]string{"23", "1"}).Digest)
}

func TestRunFreshStartClearsOldCheckpoints(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	require.NoError(t, fx.store.Save(ctx, checkpoint.PostMisses, models.MissList{"OLD"}))

	report, err := fx.runner(t, exampleClient(), nil).Run(ctx, []string{"P1"}, false)
	require.NoError(t, err)
	assert.Empty(t, report.PostMisses)

	var misses models.MissList
	_, err = fx.store.Load(ctx, checkpoint.PostMisses, &misses)
	require.NoError(t, err)
	assert.Empty(t, misses)
}

type failingStore struct {
	*checkpoint.FileStore
}

func (s failingStore) Save(context.Context, string, any) error {
	return errors.New("disk full")
}

func TestRunSurvivesCheckpointFailures(t *testing.T) {
	fx := newRunnerFixture(t)

	report, err := fx.runner(t, exampleClient(), failingStore{fx.store}).Run(context.Background(), []string{"P1", "P2"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Collected)
	assert.True(t, fx.log.HasMessage("Checkpoint write failed"))

	_, err = os.Stat(fx.results.Path())
	assert.NoError(t, err)
}

func TestNewRunnerValidation(t *testing.T) {
	fx := newRunnerFixture(t)

	_, err := NewRunner(RunnerConfig{Store: fx.store, Results: fx.results})
	assert.Error(t, err)
	_, err = NewRunner(RunnerConfig{Client: social.NewFakeClient(), Results: fx.results})
	assert.Error(t, err)
	_, err = NewRunner(RunnerConfig{Client: social.NewFakeClient(), Store: fx.store})
	assert.Error(t, err)

	r, err := NewRunner(RunnerConfig{Client: social.NewFakeClient(), Store: fx.store, Results: fx.results})
	require.NoError(t, err)
	assert.NotEmpty(t, r.RunID())
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t)
	require.NoError(t, fx.store.Save(ctx, checkpoint.FollowerProgress, &CountState{}))
	require.NoError(t, fx.store.Save(ctx, checkpoint.AccountMisses, models.MissList{"A"}))

	require.NoError(t, Reset(ctx, fx.store))
	assert.False(t, HasCheckpoint(ctx, fx.store))
	assert.False(t, fx.store.Exists(ctx, checkpoint.AccountMisses))
}
