// Package persist durably snapshots workflow machine state. The persisted
// document is the only source of truth across restarts: machines are
// reconstructed from it, never the reverse.
package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/johnhkchen/my-little-soda-sub002/internal/recovery"
	"github.com/johnhkchen/my-little-soda-sub002/internal/workflow"
)

// CurrentVersion is the persisted document schema version.
const CurrentVersion = 1

// Reason records why a snapshot was taken, for audit.
type Reason string

const (
	ReasonPeriodicSave    Reason = "periodic_save"
	ReasonStateTransition Reason = "state_transition"
	ReasonBeforeRecovery  Reason = "before_recovery"
	ReasonBeforeShutdown  Reason = "before_shutdown"
	ReasonAfterError      Reason = "after_error"
	ReasonUserRequested   Reason = "user_requested"
)

// CheckpointMetadata is created fresh on every save.
type CheckpointMetadata struct {
	CheckpointID   string `json:"checkpoint_id"`
	CreationReason Reason `json:"creation_reason"`
	IntegrityHash  string `json:"integrity_hash"`
	AgentPID       int    `json:"agent_pid"`
	Hostname       string `json:"hostname"`
}

// PersistentWorkflowState is the one document written to disk per agent.
type PersistentWorkflowState struct {
	Version            int                         `json:"version"`
	AgentID            string                      `json:"agent_id"`
	CurrentState       workflow.StateBox           `json:"current_state"`
	StartTime          time.Time                   `json:"start_time"`
	MaxWorkHours       float64                     `json:"max_work_hours"`
	StateHistory       []workflow.TransitionRecord `json:"state_history"`
	RecoveryHistory    []recovery.Attempt          `json:"recovery_history"`
	CheckpointMetadata CheckpointMetadata          `json:"checkpoint_metadata"`
	LastPersisted      time.Time                   `json:"last_persisted"`
}

// Snapshot captures a machine plus its recovery history into the
// persistable form.
func Snapshot(m *workflow.Machine, recoveryHistory []recovery.Attempt) *PersistentWorkflowState {
	return &PersistentWorkflowState{
		Version:         CurrentVersion,
		AgentID:         m.AgentID(),
		CurrentState:    workflow.StateBox{State: m.Current()},
		StartTime:       m.StartTime(),
		MaxWorkHours:    m.MaxWorkHours(),
		StateHistory:    m.History(),
		RecoveryHistory: append([]recovery.Attempt(nil), recoveryHistory...),
	}
}

// IntegrityHash covers the stable identity of a snapshot: agent, schema
// version, history lengths, and start time. Mutable bookkeeping fields
// (last_persisted, metadata) are deliberately outside the hash so a
// refresh never invalidates it.
func IntegrityHash(st *PersistentWorkflowState) string {
	input := fmt.Sprintf("%s|%d|%d|%d|%d",
		st.AgentID,
		st.Version,
		len(st.StateHistory),
		len(st.RecoveryHistory),
		st.StartTime.UTC().UnixNano(),
	)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
