package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/johnhkchen/my-little-soda-sub002/internal/config"
	"github.com/johnhkchen/my-little-soda-sub002/internal/continuity"
	"github.com/johnhkchen/my-little-soda-sub002/internal/persist"
	"github.com/johnhkchen/my-little-soda-sub002/internal/workflow"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/storage"
)

var (
	labelColor = color.New(color.FgHiBlack)
	stateColor = color.New(color.FgCyan, color.Bold)
	warnColor  = color.New(color.FgYellow)
	okColor    = color.New(color.FgGreen)
)

func newFileStore(env *config.Env, store storage.Storage) *persist.FileStore {
	wf := config.WorkflowEnvFromEnv(env)
	return persist.NewFileStore(store, persist.Config{
		MaxStateHistory:    wf.MaxStateHistory,
		MaxRecoveryHistory: wf.MaxRecoveryHistory,
		Retention:          wf.CheckpointRetention,
		IntegrityChecks:    wf.IntegrityChecks,
	})
}

// handleStatus prints the agent's persisted workflow status without a
// running daemon: the state file is the source of truth.
func handleStatus(ctx context.Context, env *config.Env, store storage.Storage, agentID string) error {
	fileStore := newFileStore(env, store)
	st, err := fileStore.LoadState(ctx, agentID)
	if err != nil {
		return err
	}
	if st == nil {
		warnColor.Printf("no persisted state for agent %s\n", agentID)
		return nil
	}

	m := workflow.NewMachineFromSnapshot(st.AgentID, st.MaxWorkHours, st.StartTime, st.CurrentState.State, st.StateHistory)
	report := m.Report()

	labelColor.Print("agent:        ")
	fmt.Println(report.AgentID)
	labelColor.Print("state:        ")
	stateColor.Println(report.CurrentState)
	labelColor.Print("transitions:  ")
	fmt.Println(report.TransitionsCount)
	labelColor.Print("timeout in:   ")
	fmt.Printf("%dm\n", report.TimeoutInMinutes)
	labelColor.Print("can continue: ")
	if report.CanContinue {
		okColor.Println("yes")
	} else {
		warnColor.Println("no")
	}
	labelColor.Print("persisted:    ")
	fmt.Println(st.LastPersisted.Format(time.RFC3339))
	return nil
}

// handlePeek shows the raw persisted view plus the resume decision the
// continuity manager would make right now.
func handlePeek(ctx context.Context, env *config.Env, store storage.Storage, agentID string) error {
	fileStore := newFileStore(env, store)
	wf := config.WorkflowEnvFromEnv(env)
	cm := continuity.NewManager(fileStore, continuity.Config{
		FreshWindow: wf.FreshWindow,
		StaleWindow: wf.StaleWindow,
	})

	st, err := fileStore.LoadState(ctx, agentID)
	if err != nil {
		warnColor.Printf("state file unreadable: %v\n", err)
	} else if st == nil {
		warnColor.Printf("no persisted state for agent %s\n", agentID)
	} else {
		labelColor.Print("version:      ")
		fmt.Println(st.Version)
		labelColor.Print("state:        ")
		if s := st.CurrentState.State; s != nil {
			stateColor.Println(s.Kind())
			labelColor.Print("issue:        ")
			fmt.Printf("#%d %s\n", s.Issue().Number, s.Issue().Title)
		} else {
			warnColor.Println("unassigned")
		}
		labelColor.Print("history:      ")
		fmt.Printf("%d transitions, %d recovery attempts\n", len(st.StateHistory), len(st.RecoveryHistory))
		labelColor.Print("checkpoint:   ")
		fmt.Printf("%s (%s)\n", st.CheckpointMetadata.CheckpointID, st.CheckpointMetadata.CreationReason)
		labelColor.Print("persisted:    ")
		fmt.Printf("%s by pid %d on %s\n", st.LastPersisted.Format(time.RFC3339), st.CheckpointMetadata.AgentPID, st.CheckpointMetadata.Hostname)
	}

	action, err := cm.RecoverFromCheckpoint(ctx, agentID)
	if err != nil {
		return err
	}
	labelColor.Print("resume:       ")
	switch a := action.(type) {
	case continuity.ContinueWork:
		okColor.Printf("continue issue #%d on %s (%s)\n", a.Issue.Number, a.Branch, a.LastProgress)
	case continuity.ValidateAndResync:
		warnColor.Printf("validate and resync: %s\n", a.Reason)
	case continuity.StartFresh:
		warnColor.Printf("start fresh: %s\n", a.Reason)
	default:
		fmt.Println("no continuity data")
	}
	return nil
}
