package pipeline

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repostreach/pkg/logger"
	"repostreach/pkg/metrics"
	"repostreach/pkg/models"
	"repostreach/pkg/social"
)

const testCooldown = time.Millisecond

func newCollector(client social.Client) *Collector {
	return &Collector{
		Client:          client,
		Cooldown:        testCooldown,
		CheckpointEvery: 100,
		Logger:          logger.NewNopLogger(),
	}
}

func TestCollectRecordsEveryPost(t *testing.T) {
	f := social.NewFakeClient()
	f.Reposters["P1"] = []string{"A", "B"}
	f.Reposters["P2"] = []string{"B", "C"}
	f.Reposters["P3"] = []string{}

	state := &CollectState{}
	require.NoError(t, newCollector(f).Collect(context.Background(), []string{"P1", "P2", "P3"}, state))

	require.Len(t, state.Table, 3)
	assert.Equal(t, "P1", state.Table[0].PostID)
	assert.Equal(t, 2, state.Table[0].ReposterCount)
	assert.Equal(t, 0, state.Table[2].ReposterCount)
	assert.Nil(t, state.Table[0].Exposure)
	assert.Empty(t, state.Misses)
	assert.Equal(t, 3, state.Next)
	assert.True(t, state.Done)

	assert.Equal(t, []string{"A", "B", "C"}, state.Accounts.Members())
	assert.Equal(t, models.AccountSetFromTable(state.Table), state.Accounts)
}

func TestCollectRetryAfterCooldownIsNotAMiss(t *testing.T) {
	f := social.NewFakeClient()
	f.Reposters["P1"] = []string{"A"}
	f.Failures["P1"] = 1

	log := logger.NewTestLogger()
	c := newCollector(f)
	c.Logger = log
	var waits []time.Duration
	c.OnCooldown = func(item string, wait time.Duration) {
		assert.Equal(t, "P1", item)
		waits = append(waits, wait)
	}

	state := &CollectState{}
	require.NoError(t, c.Collect(context.Background(), []string{"P1"}, state))

	require.Len(t, state.Table, 1)
	assert.Empty(t, state.Misses)
	assert.Equal(t, 2, f.Calls("P1"))
	assert.Equal(t, []time.Duration{testCooldown}, waits)
	assert.True(t, log.HasMessage("Fetch failed, cooling down before retry"))
}

func TestCollectTwoFailuresIsAMiss(t *testing.T) {
	f := social.NewFakeClient()
	f.Reposters["P1"] = []string{"A"}
	f.Reposters["P2"] = []string{"B"}
	f.Failures["P1"] = -1

	var missed []models.MissList
	c := newCollector(f)
	c.OnMiss = func(m models.MissList) {
		missed = append(missed, append(models.MissList{}, m...))
	}

	state := &CollectState{}
	require.NoError(t, c.Collect(context.Background(), []string{"P1", "P2"}, state))

	assert.Equal(t, 2, f.Calls("P1"), "original attempt plus exactly one retry")
	assert.Equal(t, models.MissList{"P1"}, state.Misses)
	require.Len(t, state.Table, 1)
	assert.Equal(t, "P2", state.Table[0].PostID)
	assert.False(t, state.Accounts.Has("A"))
	assert.Equal(t, []models.MissList{{"P1"}}, missed)
}

func TestCollectEveryPostRecordedOrMissed(t *testing.T) {
	f := social.NewFakeClient()
	posts := []string{"P1", "P2", "P3", "P4", "P5"}
	for _, id := range posts {
		f.Reposters[id] = []string{id + "-fan"}
	}
	f.Failures["P2"] = -1
	f.Failures["P4"] = 1

	state := &CollectState{}
	require.NoError(t, newCollector(f).Collect(context.Background(), posts, state))

	for _, id := range posts {
		recorded := false
		for _, r := range state.Table {
			if r.PostID == id {
				recorded = true
			}
		}
		assert.NotEqual(t, recorded, slices.Contains(state.Misses, id), "post %s must be recorded or missed, not both", id)
	}
}

func TestCollectCheckpointCadence(t *testing.T) {
	f := social.NewFakeClient()
	posts := []string{"P1", "P2", "P3", "P4", "P5"}

	var seen []int
	c := newCollector(f)
	c.CheckpointEvery = 2
	c.OnCheckpoint = func(s *CollectState) { seen = append(seen, s.Next) }

	require.NoError(t, c.Collect(context.Background(), posts, &CollectState{}))
	assert.Equal(t, []int{0, 2, 4, 5}, seen)
}

func TestCollectResumeMatchesUninterruptedRun(t *testing.T) {
	posts := []string{"P1", "P2", "P3", "P4", "P5", "P6"}
	newFake := func() *social.FakeClient {
		f := social.NewFakeClient()
		for i, id := range posts {
			f.Reposters[id] = []string{"A", string(rune('B' + i))}
		}
		f.Failures["P3"] = -1
		return f
	}

	full := &CollectState{}
	require.NoError(t, newCollector(newFake()).Collect(context.Background(), posts, full))

	// Stop right after the second batch boundary
	f := newFake()
	ctx, cancel := context.WithCancel(context.Background())
	var snapshot CollectState
	c := newCollector(f)
	c.CheckpointEvery = 2
	c.OnCheckpoint = func(s *CollectState) {
		snapshot = CollectState{
			Table:  append(models.PostTable{}, s.Table...),
			Misses: append(models.MissList{}, s.Misses...),
			Next:   s.Next,
		}
		if s.Next == 4 {
			cancel()
		}
	}
	err := c.Collect(ctx, posts, &CollectState{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 4, snapshot.Next)
	assert.Zero(t, f.Calls("P5"))

	resumed := snapshot
	require.NoError(t, newCollector(newFake()).Collect(context.Background(), posts, &resumed))

	assert.Equal(t, full.Table, resumed.Table)
	assert.Equal(t, full.Misses, resumed.Misses)
	assert.Equal(t, full.Accounts, resumed.Accounts)
}

func TestCollectCancelledMidItemLeavesItemUntouched(t *testing.T) {
	f := social.NewFakeClient()
	f.Reposters["P1"] = []string{"A"}
	f.Reposters["P2"] = []string{"B"}

	ctx, cancel := context.WithCancel(context.Background())
	f.BeforeCall = func(id string) {
		if id == "P2" {
			cancel()
		}
	}

	var last *CollectState
	c := newCollector(f)
	c.OnCheckpoint = func(s *CollectState) { last = s }

	state := &CollectState{}
	err := c.Collect(ctx, []string{"P1", "P2"}, state)
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, state.Table, 1)
	assert.Empty(t, state.Misses)
	assert.Equal(t, 1, state.Next)
	assert.False(t, state.Done)
	require.NotNil(t, last)
	assert.Equal(t, 1, last.Next)
}

func TestCollectCancelledDuringCooldown(t *testing.T) {
	f := social.NewFakeClient()
	f.Failures["P1"] = -1

	ctx, cancel := context.WithCancel(context.Background())
	c := newCollector(f)
	c.Cooldown = time.Hour
	c.OnCooldown = func(string, time.Duration) { cancel() }

	state := &CollectState{}
	err := c.Collect(ctx, []string{"P1"}, state)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, state.Misses)
	assert.Equal(t, 0, state.Next)
	assert.Equal(t, 1, f.Calls("P1"))
}

func TestCollectMetrics(t *testing.T) {
	f := social.NewFakeClient()
	f.Failures["P2"] = 1
	f.Failures["P3"] = -1

	m := metrics.New(prometheus.NewRegistry())
	c := newCollector(f)
	c.Metrics = m

	require.NoError(t, c.Collect(context.Background(), []string{"P1", "P2", "P3"}, &CollectState{}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues(PhaseCollect, metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues(PhaseCollect, metrics.OutcomeRetriedOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues(PhaseCollect, metrics.OutcomeMissed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CooldownsTotal.WithLabelValues(PhaseCollect)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ItemsRemaining.WithLabelValues(PhaseCollect)))
}
