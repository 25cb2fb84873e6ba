package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Fixed checkpoint names. A restarted process looks these up to resume.
const (
	CollectorProgress = "collector_progress"
	FollowerProgress  = "follower_progress"
	PostMisses        = "post_misses"
	AccountMisses     = "account_misses"
)

// FormatVersion is written into every envelope. Loading a newer version fails.
const FormatVersion = 1

// Store persists named snapshots. Every Save replaces the previous snapshot
// under the same name in a single step, so a reader sees either the old or
// the new snapshot and never a partial one.
type Store interface {
	Save(ctx context.Context, name string, v any) error
	// Load decodes the snapshot into v. It reports false when none exists.
	Load(ctx context.Context, name string, v any) (bool, error)
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) bool
	Close() error
}

// Envelope wraps every snapshot with the metadata needed to trust it on resume
type Envelope struct {
	RunID     string          `json:"run_id"`
	Phase     string          `json:"phase"`
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   json.RawMessage `json:"payload"`
}

// PhaseOf returns the pipeline phase that owns a checkpoint name
func PhaseOf(name string) string {
	switch name {
	case CollectorProgress, PostMisses:
		return "collect"
	case FollowerProgress, AccountMisses:
		return "count"
	default:
		return "unknown"
	}
}

func encode(runID, name string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}

	data, err := json.MarshalIndent(Envelope{
		RunID:     runID,
		Phase:     PhaseOf(name),
		Version:   FormatVersion,
		UpdatedAt: time.Now().UTC(),
		Payload:   payload,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", name, err)
	}
	return data, nil
}

func decode(name string, data []byte, v any) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", name, err)
	}
	if env.Version > FormatVersion {
		return nil, fmt.Errorf("checkpoint %s has version %d, newest supported is %d", name, env.Version, FormatVersion)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s payload: %w", name, err)
	}
	return &env, nil
}
