// Package social defines the capability the collection pipeline needs from
// a social network API, independent of the network behind it.
package social

import "context"

// Client is implemented by every backend. Failures are returned as
// *errors.Error values so the caller can log and count them by type.
type Client interface {
	// ListReposters returns up to the backend's cap of reposting account
	// ids for a post, most recent first. An empty list is a valid answer.
	ListReposters(ctx context.Context, postID string) ([]string, error)
	// FollowerCount returns the number of followers of an account
	FollowerCount(ctx context.Context, accountID string) (int64, error)
}
