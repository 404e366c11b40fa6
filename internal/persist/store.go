package persist

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStateCorruption marks a snapshot whose integrity hash does not
	// match its contents.
	ErrStateCorruption = errors.New("state corruption detected")
	// ErrVersionMismatch marks a snapshot written by a newer schema.
	ErrVersionMismatch = errors.New("persisted state version mismatch")
)

// CheckpointInfo summarizes one named checkpoint for listings.
type CheckpointInfo struct {
	CheckpointID string    `json:"checkpoint_id"`
	Reason       Reason    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
	AgentID      string    `json:"agent_id"`
}

// Store is the pluggable persistence backend: one current-state document
// and N named checkpoints per agent. The concrete implementation is
// injected by the caller, never reached through globals.
type Store interface {
	// SaveState prunes histories to configured maxima, refreshes metadata,
	// and atomically writes the current-state document. Returns the
	// checkpoint ID stamped into the saved metadata.
	SaveState(ctx context.Context, st *PersistentWorkflowState, reason Reason) (string, error)
	// LoadState returns the current-state document, or (nil, nil) when the
	// agent has no persisted state.
	LoadState(ctx context.Context, agentID string) (*PersistentWorkflowState, error)
	// CreateCheckpoint writes a named snapshot alongside the current state.
	CreateCheckpoint(ctx context.Context, st *PersistentWorkflowState, reason Reason) (string, error)
	// RestoreFromCheckpoint loads a named checkpoint and promotes it to the
	// agent's current state.
	RestoreFromCheckpoint(ctx context.Context, agentID, checkpointID string) (*PersistentWorkflowState, error)
	// ListCheckpoints returns checkpoints sorted newest-first.
	ListCheckpoints(ctx context.Context, agentID string) ([]CheckpointInfo, error)
	// CleanupOldData deletes checkpoints older than the retention window
	// and returns how many were removed.
	CleanupOldData(ctx context.Context, agentID string) (int, error)
	// VerifyIntegrity recomputes the integrity hash and compares it to the
	// one stored in metadata.
	VerifyIntegrity(st *PersistentWorkflowState) bool
}
