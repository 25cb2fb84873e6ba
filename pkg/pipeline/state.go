package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"repostreach/pkg/models"
)

// Phase names used in logs, metrics and checkpoint envelopes
const (
	PhaseCollect = "collect"
	PhaseCount   = "count"
)

// CollectState is the resumable progress of the collect phase.
// Accounts is derived from Table and is rebuilt on load.
type CollectState struct {
	Table    models.PostTable  `json:"table"`
	Accounts models.AccountSet `json:"-"`
	Misses   models.MissList   `json:"misses"`
	// Next is the index of the first post not yet visited
	Next int  `json:"next"`
	Done bool `json:"done"`
	// Input identifies the post list the progress belongs to
	Input InputFingerprint `json:"input"`
}

// InputFingerprint identifies an ordered post id list by length and digest
type InputFingerprint struct {
	Rows   int    `json:"rows"`
	Digest string `json:"digest"`
}

// FingerprintOf returns the fingerprint of postIDs. Order matters.
func FingerprintOf(postIDs []string) InputFingerprint {
	h := sha256.New()
	for _, id := range postIDs {
		io.WriteString(h, id)
		h.Write([]byte{'\n'})
	}
	return InputFingerprint{Rows: len(postIDs), Digest: hex.EncodeToString(h.Sum(nil))}
}

// CountState is the resumable progress of the count phase
type CountState struct {
	Followers models.FollowerIndex `json:"followers"`
	Misses    models.MissList      `json:"misses"`
	Done      bool                 `json:"done"`
}

// settled returns every id the count phase already resolved, counted or
// missed, as a set
func (s *CountState) settled() map[string]struct{} {
	done := make(map[string]struct{}, len(s.Followers)+len(s.Misses))
	for id := range s.Followers {
		done[id] = struct{}{}
	}
	for _, id := range s.Misses {
		done[id] = struct{}{}
	}
	return done
}
