package models

import (
	"sort"
	"strconv"
)

// ExposurePlaceholder is written in the exposure column before the
// aggregation phase has run
const ExposurePlaceholder = "not_calculated"

// PostRecord is one row of the result table
type PostRecord struct {
	PostID        string   `json:"post_id"`
	ReposterIDs   []string `json:"reposter_ids"`
	ReposterCount int      `json:"reposter_count"`
	// Exposure is nil until aggregated
	Exposure *int64 `json:"exposure,omitempty"`
}

// NewPostRecord builds a record from a successful reposter lookup
func NewPostRecord(postID string, reposters []string) PostRecord {
	ids := make([]string, len(reposters))
	copy(ids, reposters)
	return PostRecord{
		PostID:        postID,
		ReposterIDs:   ids,
		ReposterCount: len(ids),
	}
}

// ExposureString renders the exposure column value
func (r PostRecord) ExposureString() string {
	if r.Exposure == nil {
		return ExposurePlaceholder
	}
	return strconv.FormatInt(*r.Exposure, 10)
}

// PostTable keeps input order. Duplicate post ids are separate rows.
type PostTable []PostRecord

// AccountSet is the set of distinct reposter account ids
type AccountSet map[string]struct{}

// NewAccountSet builds a set from ids
func NewAccountSet(ids ...string) AccountSet {
	s := make(AccountSet, len(ids))
	s.Add(ids...)
	return s
}

// AccountSetFromTable rebuilds the set as the union of all reposter lists
func AccountSetFromTable(table PostTable) AccountSet {
	s := make(AccountSet)
	for _, r := range table {
		s.Add(r.ReposterIDs...)
	}
	return s
}

// Add inserts ids into the set
func (s AccountSet) Add(ids ...string) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Has reports membership
func (s AccountSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of distinct accounts
func (s AccountSet) Len() int { return len(s) }

// Members returns the ids in sorted order so runs and resumes visit
// accounts in the same sequence
func (s AccountSet) Members() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FollowerIndex maps account id to follower count. Accounts whose lookup
// failed are absent, never zero.
type FollowerIndex map[string]int64

// MissList is the ordered list of ids whose fetch failed twice
type MissList []string
