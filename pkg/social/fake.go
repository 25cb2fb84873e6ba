package social

import (
	"context"
	"sync"

	errs "repostreach/pkg/errors"
)

// FakeClient is an in-memory Client for tests. Each id can be told to fail
// a number of times before it starts answering.
type FakeClient struct {
	mu sync.Mutex

	Reposters map[string][]string
	Followers map[string]int64
	// Failures holds how many calls for an id fail before one succeeds.
	// A negative value fails forever.
	Failures map[string]int
	// BeforeCall runs at the start of every call while no lock is held
	BeforeCall func(id string)

	calls map[string]int
}

// NewFakeClient returns an empty fake
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Reposters: make(map[string][]string),
		Followers: make(map[string]int64),
		Failures:  make(map[string]int),
		calls:     make(map[string]int),
	}
}

// ListReposters implements Client
func (f *FakeClient) ListReposters(ctx context.Context, postID string) ([]string, error) {
	if err := f.begin(ctx, postID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.Reposters[postID]
	if !ok {
		return []string{}, nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// FollowerCount implements Client
func (f *FakeClient) FollowerCount(ctx context.Context, accountID string) (int64, error) {
	if err := f.begin(ctx, accountID); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.Followers[accountID]
	if !ok {
		return 0, errs.FromStatus(404, "account not found: "+accountID)
	}
	return n, nil
}

// Calls returns how many times id was requested
func (f *FakeClient) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// TotalCalls returns the number of requests across all ids
func (f *FakeClient) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *FakeClient) begin(ctx context.Context, id string) error {
	if f.BeforeCall != nil {
		f.BeforeCall(id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[id]++

	remaining := f.Failures[id]
	if remaining == 0 {
		return nil
	}
	if remaining > 0 {
		f.Failures[id] = remaining - 1
	}
	return errs.FromStatus(429, "rate limit exceeded")
}
