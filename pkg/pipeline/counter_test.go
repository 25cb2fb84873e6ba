package pipeline

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repostreach/pkg/logger"
	"repostreach/pkg/models"
	"repostreach/pkg/social"
)

func newCounter(client social.Client) *Counter {
	return &Counter{
		Client:          client,
		Cooldown:        testCooldown,
		CheckpointEvery: 100,
		Logger:          logger.NewNopLogger(),
	}
}

func TestCountEveryAccountCountedOrMissed(t *testing.T) {
	f := social.NewFakeClient()
	f.Followers["A"] = 10
	f.Followers["B"] = 0
	f.Followers["C"] = 7
	f.Failures["C"] = 1
	f.Failures["D"] = -1

	accounts := models.NewAccountSet("A", "B", "C", "D", "E")
	state := &CountState{}
	require.NoError(t, newCounter(f).Count(context.Background(), accounts, state))

	assert.Equal(t, models.FollowerIndex{"A": 10, "B": 0, "C": 7}, state.Followers)
	// E is unknown to the API, D keeps failing
	assert.ElementsMatch(t, models.MissList{"D", "E"}, state.Misses)
	assert.True(t, state.Done)

	for _, id := range accounts.Members() {
		_, counted := state.Followers[id]
		assert.NotEqual(t, counted, slices.Contains(state.Misses, id), "account %s must be counted or missed, not both", id)
	}
}

func TestCountVisitsEachAccountOnce(t *testing.T) {
	f := social.NewFakeClient()
	f.Followers["A"] = 1
	f.Followers["B"] = 2

	// A reposted both posts but is looked up once
	table := models.PostTable{
		models.NewPostRecord("P1", []string{"A", "B"}),
		models.NewPostRecord("P2", []string{"A"}),
	}
	require.NoError(t, newCounter(f).Count(context.Background(), models.AccountSetFromTable(table), &CountState{}))

	assert.Equal(t, 1, f.Calls("A"))
	assert.Equal(t, 1, f.Calls("B"))
}

func TestCountSkipsSettledAccounts(t *testing.T) {
	f := social.NewFakeClient()
	f.Followers["C"] = 3

	state := &CountState{
		Followers: models.FollowerIndex{"A": 1},
		Misses:    models.MissList{"B"},
	}
	require.NoError(t, newCounter(f).Count(context.Background(), models.NewAccountSet("A", "B", "C"), state))

	assert.Equal(t, 1, f.TotalCalls())
	assert.Equal(t, models.FollowerIndex{"A": 1, "C": 3}, state.Followers)
	assert.Equal(t, models.MissList{"B"}, state.Misses)
}

func TestCountResumesWithLargeMissList(t *testing.T) {
	f := social.NewFakeClient()
	f.Followers["live"] = 4

	state := &CountState{Followers: models.FollowerIndex{}}
	ids := []string{"live"}
	for i := 0; i < 20000; i++ {
		id := fmt.Sprintf("gone-%05d", i)
		state.Misses = append(state.Misses, id)
		ids = append(ids, id)
	}

	require.NoError(t, newCounter(f).Count(context.Background(), models.NewAccountSet(ids...), state))
	assert.Equal(t, 1, f.TotalCalls())
	assert.Equal(t, models.FollowerIndex{"live": 4}, state.Followers)
	assert.Len(t, state.Misses, 20000)
}

func TestCountStateSettled(t *testing.T) {
	state := &CountState{
		Followers: models.FollowerIndex{"A": 1, "B": 0},
		Misses:    models.MissList{"C", "C"},
	}
	assert.Equal(t, map[string]struct{}{"A": {}, "B": {}, "C": {}}, state.settled())
	assert.Empty(t, (&CountState{}).settled())
}

func TestCountCheckpointIsFullSnapshot(t *testing.T) {
	f := social.NewFakeClient()
	for _, id := range []string{"A", "B", "C", "D"} {
		f.Followers[id] = 1
	}

	var sizes []int
	c := newCounter(f)
	c.CheckpointEvery = 2
	c.OnCheckpoint = func(s *CountState) { sizes = append(sizes, len(s.Followers)) }

	require.NoError(t, c.Count(context.Background(), models.NewAccountSet("A", "B", "C", "D"), &CountState{}))
	assert.Equal(t, []int{0, 2, 4, 4}, sizes)
}

func TestCountCancelled(t *testing.T) {
	f := social.NewFakeClient()
	f.Followers["A"] = 1
	f.Followers["B"] = 2

	ctx, cancel := context.WithCancel(context.Background())
	f.BeforeCall = func(id string) {
		if id == "B" {
			cancel()
		}
	}

	state := &CountState{}
	err := newCounter(f).Count(ctx, models.NewAccountSet("A", "B"), state)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.FollowerIndex{"A": 1}, state.Followers)
	assert.Empty(t, state.Misses)
	assert.False(t, state.Done)
}
