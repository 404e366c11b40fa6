package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnhkchen/my-little-soda-sub002/internal/continuity"
	"github.com/johnhkchen/my-little-soda-sub002/internal/eventbus"
	"github.com/johnhkchen/my-little-soda-sub002/internal/github"
	"github.com/johnhkchen/my-little-soda-sub002/internal/persist"
	"github.com/johnhkchen/my-little-soda-sub002/internal/recovery"
	"github.com/johnhkchen/my-little-soda-sub002/internal/workflow"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/cerr"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/storage"
)

type passFixer struct{}

func (passFixer) Run(ctx context.Context, fix recovery.FixType, e recovery.ErrorType) ([]string, error) {
	return []string{"applied " + string(fix)}, nil
}

func newTestCoordinator(t *testing.T, factory EngineFactory) (*Coordinator, persist.Store) {
	t.Helper()
	ls, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := persist.NewFileStore(ls, persist.DefaultConfig())
	cm := continuity.NewManager(store, continuity.DefaultConfig())
	c := New(store, cm, eventbus.New(), factory, Config{MaxWorkHours: 8, AutoSaveInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c.Start(ctx)
	return c, store
}

func testIssue() github.Issue {
	return github.Issue{Number: 42, Title: "add retry budget"}
}

func TestDispatchHappyPath(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, nil)

	action, err := c.StartAgent(ctx, "agent001")
	require.NoError(t, err)
	assert.Nil(t, action)

	events := []workflow.Event{
		workflow.AssignAgent{Issue: testIssue(), Agent: "agent001"},
		workflow.StartWork{},
		workflow.MakeProgress{Completed: 3, Total: 5},
		workflow.CompleteWork{},
		workflow.SubmitForReview{PR: github.PullRequest{Number: 9999, Branch: "agent001/42"}},
		workflow.ApprovalReceived{},
		workflow.MergeCompleted{},
	}
	var last workflow.State
	for _, ev := range events {
		last, err = c.Dispatch(ctx, "agent001", ev)
		require.NoError(t, err, "event %s", ev.Kind())
	}
	assert.Equal(t, workflow.StateMerged, last.Kind())

	report, err := c.Status("agent001")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateMerged, report.CurrentState)
	assert.GreaterOrEqual(t, report.TransitionsCount, 7)
}

func TestDispatchRejectedEvent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, nil)

	_, err := c.StartAgent(ctx, "agent001")
	require.NoError(t, err)

	_, err = c.Dispatch(ctx, "agent001", workflow.StartWork{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))
}

func TestDispatchUnknownAgent(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	_, err := c.Dispatch(context.Background(), "ghost", workflow.StartWork{})
	require.Error(t, err)
	assert.Equal(t, cerr.NotFound, cerr.CodeOf(err))
}

func TestStartAgentTwice(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, nil)

	_, err := c.StartAgent(ctx, "agent001")
	require.NoError(t, err)
	_, err = c.StartAgent(ctx, "agent001")
	require.Error(t, err)
	assert.Equal(t, cerr.AlreadyExists, cerr.CodeOf(err))
}

func driveToInProgress(t *testing.T, c *Coordinator, agentID string) {
	t.Helper()
	ctx := context.Background()
	_, err := c.Dispatch(ctx, agentID, workflow.AssignAgent{Issue: testIssue(), Agent: agentID})
	require.NoError(t, err)
	_, err = c.Dispatch(ctx, agentID, workflow.StartWork{})
	require.NoError(t, err)
}

func TestBlockerRecoverySuccessResolvesBlocker(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, func() *recovery.Engine {
		return recovery.NewEngine(recovery.WithFixRunner(passFixer{}))
	})

	_, err := c.StartAgent(ctx, "agent001")
	require.NoError(t, err)
	driveToInProgress(t, c, "agent001")

	state, err := c.Dispatch(ctx, "agent001", workflow.EncounterBlocker{
		Blocker: workflow.Blocker{Type: workflow.BlockerTestFailure, Detail: "TestFoo assertion failed"},
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StateInProgress, state.Kind())

	report, err := c.RecoveryReport("agent001")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalAttempts)
	assert.Equal(t, 1, report.SuccessfulAttempts)
}

func TestUnknownBlockerEscalatesAndStaysBlocked(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, nil)

	_, err := c.StartAgent(ctx, "agent001")
	require.NoError(t, err)
	driveToInProgress(t, c, "agent001")

	state, err := c.Dispatch(ctx, "agent001", workflow.EncounterBlocker{
		Blocker: workflow.Blocker{Type: workflow.BlockerOther, Detail: "disk full"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, recovery.ErrEscalationRequired))
	assert.Equal(t, workflow.StateBlocked, state.Kind())
}

func TestShutdownPersistsFinalState(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, nil)

	_, err := c.StartAgent(ctx, "agent001")
	require.NoError(t, err)
	driveToInProgress(t, c, "agent001")

	c.Shutdown(ctx)

	st, err := store.LoadState(ctx, "agent001")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, workflow.StateInProgress, st.CurrentState.State.Kind())
	assert.Equal(t, persist.ReasonBeforeShutdown, st.CheckpointMetadata.CreationReason)
}

func TestDispatchAfterShutdownKeepsFinalSnapshot(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, nil)

	_, err := c.StartAgent(ctx, "agent001")
	require.NoError(t, err)
	driveToInProgress(t, c, "agent001")
	c.Shutdown(ctx)

	// A dispatch racing with shutdown still transitions in memory, but its
	// snapshot is dropped instead of overwriting the shutdown save.
	require.NotPanics(t, func() {
		_, err := c.Dispatch(ctx, "agent001", workflow.CompleteWork{})
		require.NoError(t, err)
	})

	st, err := store.LoadState(ctx, "agent001")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, workflow.StateInProgress, st.CurrentState.State.Kind())
	assert.Equal(t, persist.ReasonBeforeShutdown, st.CheckpointMetadata.CreationReason)
}

func TestStartAgentResumesPersistedWork(t *testing.T) {
	ctx := context.Background()
	ls, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := persist.NewFileStore(ls, persist.DefaultConfig())
	cm := continuity.NewManager(store, continuity.DefaultConfig())

	// First process lifetime.
	c1 := New(store, cm, eventbus.New(), nil, Config{MaxWorkHours: 8, AutoSaveInterval: time.Hour})
	ctx1, cancel1 := context.WithCancel(ctx)
	c1.Start(ctx1)
	_, err = c1.StartAgent(ctx, "agent001")
	require.NoError(t, err)
	driveToInProgress(t, c1, "agent001")
	c1.Shutdown(ctx)
	cancel1()

	// Second process lifetime resumes from the shutdown snapshot.
	c2 := New(store, cm, eventbus.New(), nil, Config{MaxWorkHours: 8, AutoSaveInterval: time.Hour})
	ctx2, cancel2 := context.WithCancel(ctx)
	defer cancel2()
	c2.Start(ctx2)

	action, err := c2.StartAgent(ctx, "agent001")
	require.NoError(t, err)
	cont, ok := action.(continuity.ContinueWork)
	require.True(t, ok, "expected ContinueWork, got %T", action)
	assert.Equal(t, 42, cont.Issue.Number)

	report, err := c2.Status("agent001")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateInProgress, report.CurrentState)
	assert.GreaterOrEqual(t, report.TransitionsCount, 2)

	c2.Shutdown(ctx)
}
