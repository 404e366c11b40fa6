// Package continuity decides how an agent resumes after a process restart:
// pick up where it left off, re-verify against the live repository first,
// or discard the persisted state and start over.
package continuity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/johnhkchen/my-little-soda-sub002/internal/github"
	"github.com/johnhkchen/my-little-soda-sub002/internal/persist"
	"github.com/johnhkchen/my-little-soda-sub002/internal/workflow"
)

// ResumeAction is the sealed decision union. Nil means there is no
// continuity data at all and the caller starts from nothing.
type ResumeAction interface {
	isResumeAction()
}

// ContinueWork resumes the persisted unit of work directly.
type ContinueWork struct {
	Issue        github.Issue `json:"issue"`
	Branch       string       `json:"branch"`
	LastProgress string       `json:"last_progress"`
}

// ValidateAndResync resumes only after the caller re-verifies the persisted
// view against the live repository.
type ValidateAndResync struct {
	Reason string `json:"reason"`
}

// StartFresh discards the persisted state.
type StartFresh struct {
	Reason string `json:"reason"`
}

func (ContinueWork) isResumeAction()      {}
func (ValidateAndResync) isResumeAction() {}
func (StartFresh) isResumeAction()        {}

// Config holds the age windows the resume decision is made against.
type Config struct {
	// FreshWindow is the maximum age of a snapshot that can be continued
	// without re-verification.
	FreshWindow time.Duration
	// StaleWindow is the maximum age worth re-verifying at all; beyond it
	// the persisted state is discarded.
	StaleWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		FreshWindow: 24 * time.Hour,
		StaleWindow: 7 * 24 * time.Hour,
	}
}

// Manager wraps a checkpoint store with the resume decision and the
// write-side checkpoint helper the driver calls after each meaningful step.
type Manager struct {
	store persist.Store
	cfg   Config

	now func() time.Time
}

func NewManager(store persist.Store, cfg Config) *Manager {
	if cfg.FreshWindow <= 0 {
		cfg.FreshWindow = DefaultConfig().FreshWindow
	}
	if cfg.StaleWindow < cfg.FreshWindow {
		cfg.StaleWindow = DefaultConfig().StaleWindow
	}
	return &Manager{store: store, cfg: cfg, now: time.Now}
}

// RecoverFromCheckpoint loads the agent's last persisted state and decides
// how to resume. A nil action means no continuity data exists. A load
// failure (corruption, version mismatch) is treated the same as no usable
// checkpoint: the previous state cannot be trusted, so work starts fresh.
func (m *Manager) RecoverFromCheckpoint(ctx context.Context, agentID string) (ResumeAction, error) {
	st, err := m.store.LoadState(ctx, agentID)
	if err != nil {
		slog.Warn("persisted state unusable, starting fresh",
			"agent_id", agentID, "error", err)
		return StartFresh{Reason: fmt.Sprintf("persisted state unusable: %v", err)}, nil
	}
	if st == nil {
		return nil, nil
	}

	age := m.now().Sub(st.LastPersisted)
	switch {
	case age > m.cfg.StaleWindow:
		return StartFresh{Reason: fmt.Sprintf(
			"checkpoint is %s old, beyond the %s resync window", age.Round(time.Minute), m.cfg.StaleWindow)}, nil
	case age > m.cfg.FreshWindow:
		return ValidateAndResync{Reason: fmt.Sprintf(
			"checkpoint is %s old, re-verify against the live repository", age.Round(time.Minute))}, nil
	}

	s := st.CurrentState.State
	if s == nil {
		return StartFresh{Reason: "checkpoint carries no workflow state"}, nil
	}
	if s.Kind().Terminal() {
		return StartFresh{Reason: fmt.Sprintf("previous work already %s", s.Kind())}, nil
	}
	issue := s.Issue()
	if issue.Number == 0 {
		return ValidateAndResync{Reason: "checkpoint references no issue"}, nil
	}

	return ContinueWork{
		Issue:        issue,
		Branch:       workBranch(s),
		LastProgress: lastProgress(s),
	}, nil
}

// CheckpointState persists a snapshot with an audit note. This is the
// write-side counterpart the driver calls after each meaningful step.
func (m *Manager) CheckpointState(ctx context.Context, st *persist.PersistentWorkflowState, note string, reason persist.Reason) (string, error) {
	id, err := m.store.CreateCheckpoint(ctx, st, reason)
	if err != nil {
		return "", err
	}
	slog.Info("checkpoint created",
		"agent_id", st.AgentID, "checkpoint_id", id, "reason", reason, "note", note)
	return id, nil
}

// workBranch returns the PR branch when the state knows one, falling back
// to the conventional <agent>/<issue-number> work branch.
func workBranch(s workflow.State) string {
	var pr github.PullRequest
	switch v := s.(type) {
	case workflow.ReadyForReview:
		pr = v.PR
	case workflow.UnderReview:
		pr = v.PR
	case workflow.Approved:
		pr = v.PR
	case workflow.MergeConflict:
		pr = v.PR
	case workflow.CIFailure:
		pr = v.PR
	}
	if pr.Branch != "" {
		return pr.Branch
	}
	return fmt.Sprintf("%s/%d", s.Agent(), s.Issue().Number)
}

func lastProgress(s workflow.State) string {
	switch v := s.(type) {
	case workflow.InProgress:
		return progressText(v.Progress)
	case workflow.Blocked:
		return fmt.Sprintf("blocked (%s): %s", v.Blocker.Type, progressText(v.Progress))
	case workflow.ReadyForReview:
		return fmt.Sprintf("ready for review, pr #%d", v.PR.Number)
	case workflow.UnderReview:
		return fmt.Sprintf("under review, pr #%d", v.PR.Number)
	case workflow.Approved:
		return fmt.Sprintf("approved, pr #%d", v.PR.Number)
	case workflow.MergeConflict:
		return fmt.Sprintf("resolving %d merge conflicts, pr #%d", len(v.Conflicts), v.PR.Number)
	case workflow.CIFailure:
		return fmt.Sprintf("fixing %d ci failures, pr #%d", len(v.Failures), v.PR.Number)
	default:
		return "assigned, not started"
	}
}

func progressText(p workflow.Progress) string {
	if p.Total == 0 {
		return "in progress"
	}
	if p.Description != "" {
		return fmt.Sprintf("%d/%d: %s", p.Completed, p.Total, p.Description)
	}
	return fmt.Sprintf("%d/%d", p.Completed, p.Total)
}
