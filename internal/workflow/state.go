// Package workflow implements the per-agent lifecycle state machine that
// carries one GitHub issue from assignment through merge or abandonment.
package workflow

import (
	"github.com/johnhkchen/my-little-soda-sub002/internal/github"
)

// StateKind identifies a workflow state variant.
type StateKind string

const (
	StateAssigned       StateKind = "assigned"
	StateInProgress     StateKind = "in_progress"
	StateBlocked        StateKind = "blocked"
	StateReadyForReview StateKind = "ready_for_review"
	StateUnderReview    StateKind = "under_review"
	StateApproved       StateKind = "approved"
	StateMergeConflict  StateKind = "merge_conflict"
	StateCIFailure      StateKind = "ci_failure"
	StateMerged         StateKind = "merged"
	StateAbandoned      StateKind = "abandoned"
)

// Terminal reports whether no further events are accepted in this state.
func (k StateKind) Terminal() bool {
	return k == StateMerged || k == StateAbandoned
}

// State is the sealed workflow state union. Exactly one variant is active
// at a time, and every variant carries the issue and agent it belongs to,
// so state can never reference the wrong work item.
type State interface {
	Kind() StateKind
	Issue() github.Issue
	Agent() string

	isState()
}

// Progress describes how far an agent has gotten through its work unit.
type Progress struct {
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
	Description string `json:"description,omitempty"`
}

// BlockerKind identifies why work cannot currently progress.
type BlockerKind string

const (
	BlockerTestFailure     BlockerKind = "test_failure"
	BlockerBuildFailure    BlockerKind = "build_failure"
	BlockerDependencyIssue BlockerKind = "dependency_issue"
	BlockerMergeConflict   BlockerKind = "merge_conflict"
	BlockerCIFailure       BlockerKind = "ci_failure"
	BlockerOther           BlockerKind = "other"
)

// Blocker is a structured reason a workflow is stuck.
type Blocker struct {
	Type   BlockerKind `json:"type"`
	Detail string      `json:"detail,omitempty"`
}

type Assigned struct {
	WorkIssue github.Issue `json:"issue"`
	AgentID   string       `json:"agent"`
	Workspace string       `json:"workspace,omitempty"`
}

type InProgress struct {
	WorkIssue github.Issue `json:"issue"`
	AgentID   string       `json:"agent"`
	Progress  Progress     `json:"progress"`
}

type Blocked struct {
	WorkIssue github.Issue `json:"issue"`
	AgentID   string       `json:"agent"`
	Blocker   Blocker      `json:"blocker"`
	// Progress at the moment the blocker hit, restored on resolution.
	Progress Progress `json:"progress"`
}

type ReadyForReview struct {
	WorkIssue github.Issue `json:"issue"`
	AgentID   string       `json:"agent"`
	// PR stays zero until SubmitForReview attaches the opened pull
	// request; CompleteWork carries no PR payload.
	PR github.PullRequest `json:"pr"`
}

type UnderReview struct {
	WorkIssue github.Issue       `json:"issue"`
	AgentID   string             `json:"agent"`
	PR        github.PullRequest `json:"pr"`
}

type Approved struct {
	WorkIssue github.Issue       `json:"issue"`
	AgentID   string             `json:"agent"`
	PR        github.PullRequest `json:"pr"`
}

type MergeConflict struct {
	WorkIssue github.Issue          `json:"issue"`
	AgentID   string                `json:"agent"`
	PR        github.PullRequest    `json:"pr"`
	Conflicts []github.ConflictInfo `json:"conflicts"`
}

type CIFailure struct {
	WorkIssue github.Issue           `json:"issue"`
	AgentID   string                 `json:"agent"`
	PR        github.PullRequest     `json:"pr"`
	Failures  []github.CIFailureInfo `json:"failures"`
}

type Merged struct {
	WorkIssue     github.Issue         `json:"issue"`
	AgentID       string               `json:"agent"`
	CompletedWork github.CompletedWork `json:"completed_work"`
}

type Abandoned struct {
	WorkIssue github.Issue `json:"issue"`
	AgentID   string       `json:"agent"`
	Reason    string       `json:"reason"`
}

func (s Assigned) Kind() StateKind       { return StateAssigned }
func (s InProgress) Kind() StateKind     { return StateInProgress }
func (s Blocked) Kind() StateKind        { return StateBlocked }
func (s ReadyForReview) Kind() StateKind { return StateReadyForReview }
func (s UnderReview) Kind() StateKind    { return StateUnderReview }
func (s Approved) Kind() StateKind       { return StateApproved }
func (s MergeConflict) Kind() StateKind  { return StateMergeConflict }
func (s CIFailure) Kind() StateKind      { return StateCIFailure }
func (s Merged) Kind() StateKind         { return StateMerged }
func (s Abandoned) Kind() StateKind      { return StateAbandoned }

func (s Assigned) Issue() github.Issue       { return s.WorkIssue }
func (s InProgress) Issue() github.Issue     { return s.WorkIssue }
func (s Blocked) Issue() github.Issue        { return s.WorkIssue }
func (s ReadyForReview) Issue() github.Issue { return s.WorkIssue }
func (s UnderReview) Issue() github.Issue    { return s.WorkIssue }
func (s Approved) Issue() github.Issue       { return s.WorkIssue }
func (s MergeConflict) Issue() github.Issue  { return s.WorkIssue }
func (s CIFailure) Issue() github.Issue      { return s.WorkIssue }
func (s Merged) Issue() github.Issue         { return s.WorkIssue }
func (s Abandoned) Issue() github.Issue      { return s.WorkIssue }

func (s Assigned) Agent() string       { return s.AgentID }
func (s InProgress) Agent() string     { return s.AgentID }
func (s Blocked) Agent() string        { return s.AgentID }
func (s ReadyForReview) Agent() string { return s.AgentID }
func (s UnderReview) Agent() string    { return s.AgentID }
func (s Approved) Agent() string       { return s.AgentID }
func (s MergeConflict) Agent() string  { return s.AgentID }
func (s CIFailure) Agent() string      { return s.AgentID }
func (s Merged) Agent() string         { return s.AgentID }
func (s Abandoned) Agent() string      { return s.AgentID }

func (Assigned) isState()       {}
func (InProgress) isState()     {}
func (Blocked) isState()        {}
func (ReadyForReview) isState() {}
func (UnderReview) isState()    {}
func (Approved) isState()       {}
func (MergeConflict) isState()  {}
func (CIFailure) isState()      {}
func (Merged) isState()         {}
func (Abandoned) isState()      {}
