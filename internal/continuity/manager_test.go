package continuity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnhkchen/my-little-soda-sub002/internal/github"
	"github.com/johnhkchen/my-little-soda-sub002/internal/persist"
	"github.com/johnhkchen/my-little-soda-sub002/internal/workflow"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/storage"
)

func newTestManager(t *testing.T) (*Manager, persist.Store) {
	t.Helper()
	ls, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := persist.NewFileStore(ls, persist.DefaultConfig())
	return NewManager(store, DefaultConfig()), store
}

func snapshotWith(agentID string, state workflow.State) *persist.PersistentWorkflowState {
	return &persist.PersistentWorkflowState{
		Version:      persist.CurrentVersion,
		AgentID:      agentID,
		CurrentState: workflow.StateBox{State: state},
		StartTime:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		MaxWorkHours: 8,
	}
}

func inProgressState(agentID string) workflow.State {
	return workflow.InProgress{
		WorkIssue: github.Issue{Number: 42, Title: "add retry budget"},
		AgentID:   agentID,
		Progress:  workflow.Progress{Completed: 3, Total: 5, Description: "tests"},
	}
}

func TestRecoverNoCheckpoint(t *testing.T) {
	m, _ := newTestManager(t)

	action, err := m.RecoverFromCheckpoint(context.Background(), "agent001")
	require.NoError(t, err)
	assert.Nil(t, action)
}

func TestRecoverFreshCheckpointContinues(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	_, err := store.SaveState(ctx, snapshotWith("agent001", inProgressState("agent001")), persist.ReasonStateTransition)
	require.NoError(t, err)

	action, err := m.RecoverFromCheckpoint(ctx, "agent001")
	require.NoError(t, err)

	cont, ok := action.(ContinueWork)
	require.True(t, ok, "expected ContinueWork, got %T", action)
	assert.Equal(t, 42, cont.Issue.Number)
	assert.Equal(t, "agent001/42", cont.Branch)
	assert.Equal(t, "3/5: tests", cont.LastProgress)
}

func TestRecoverUsesPRBranch(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	state := workflow.UnderReview{
		WorkIssue: github.Issue{Number: 42},
		AgentID:   "agent001",
		PR:        github.PullRequest{Number: 9999, Branch: "agent001/42-retry-budget"},
	}
	_, err := store.SaveState(ctx, snapshotWith("agent001", state), persist.ReasonStateTransition)
	require.NoError(t, err)

	action, err := m.RecoverFromCheckpoint(ctx, "agent001")
	require.NoError(t, err)

	cont, ok := action.(ContinueWork)
	require.True(t, ok)
	assert.Equal(t, "agent001/42-retry-budget", cont.Branch)
	assert.Equal(t, "under review, pr #9999", cont.LastProgress)
}

func TestRecoverStaleCheckpointResyncs(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	_, err := store.SaveState(ctx, snapshotWith("agent001", inProgressState("agent001")), persist.ReasonStateTransition)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	action, err := m.RecoverFromCheckpoint(ctx, "agent001")
	require.NoError(t, err)

	resync, ok := action.(ValidateAndResync)
	require.True(t, ok, "expected ValidateAndResync, got %T", action)
	assert.Contains(t, resync.Reason, "re-verify")
}

func TestRecoverAncientCheckpointStartsFresh(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	_, err := store.SaveState(ctx, snapshotWith("agent001", inProgressState("agent001")), persist.ReasonStateTransition)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	action, err := m.RecoverFromCheckpoint(ctx, "agent001")
	require.NoError(t, err)

	fresh, ok := action.(StartFresh)
	require.True(t, ok, "expected StartFresh, got %T", action)
	assert.Contains(t, fresh.Reason, "beyond")
}

func TestRecoverTerminalStateStartsFresh(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	state := workflow.Merged{
		WorkIssue:     github.Issue{Number: 42},
		AgentID:       "agent001",
		CompletedWork: github.CompletedWork{Issue: github.Issue{Number: 42}},
	}
	_, err := store.SaveState(ctx, snapshotWith("agent001", state), persist.ReasonStateTransition)
	require.NoError(t, err)

	action, err := m.RecoverFromCheckpoint(ctx, "agent001")
	require.NoError(t, err)

	fresh, ok := action.(StartFresh)
	require.True(t, ok)
	assert.Contains(t, fresh.Reason, "merged")
}

func TestRecoverCorruptCheckpointStartsFresh(t *testing.T) {
	ctx := context.Background()
	ls, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := persist.NewFileStore(ls, persist.DefaultConfig())
	m := NewManager(store, DefaultConfig())

	require.NoError(t, ls.Write(ctx, "agent001.state.json", []byte("{not json")))

	action, err := m.RecoverFromCheckpoint(ctx, "agent001")
	require.NoError(t, err)

	fresh, ok := action.(StartFresh)
	require.True(t, ok, "expected StartFresh, got %T", action)
	assert.Contains(t, fresh.Reason, "unusable")
}

func TestRecoverMissingIssueResyncs(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	state := workflow.Assigned{WorkIssue: github.Issue{}, AgentID: "agent001"}
	_, err := store.SaveState(ctx, snapshotWith("agent001", state), persist.ReasonStateTransition)
	require.NoError(t, err)

	action, err := m.RecoverFromCheckpoint(ctx, "agent001")
	require.NoError(t, err)

	_, ok := action.(ValidateAndResync)
	assert.True(t, ok, "expected ValidateAndResync, got %T", action)
}

func TestCheckpointStateWritesListedCheckpoint(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	id, err := m.CheckpointState(ctx, snapshotWith("agent001", inProgressState("agent001")),
		"before risky rebase", persist.ReasonBeforeRecovery)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	infos, err := store.ListCheckpoints(ctx, "agent001")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].CheckpointID)
	assert.Equal(t, persist.ReasonBeforeRecovery, infos[0].Reason)
}
