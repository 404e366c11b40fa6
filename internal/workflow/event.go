package workflow

import (
	"github.com/johnhkchen/my-little-soda-sub002/internal/github"
)

// EventKind identifies a workflow event variant.
type EventKind string

const (
	EventAssignAgent           EventKind = "assign_agent"
	EventStartWork             EventKind = "start_work"
	EventMakeProgress          EventKind = "make_progress"
	EventCompleteWork          EventKind = "complete_work"
	EventEncounterBlocker      EventKind = "encounter_blocker"
	EventResolveBlocker        EventKind = "resolve_blocker"
	EventSubmitForReview       EventKind = "submit_for_review"
	EventApprovalReceived      EventKind = "approval_received"
	EventMergeConflictDetected EventKind = "merge_conflict_detected"
	EventConflictsResolved     EventKind = "conflicts_resolved"
	EventCIFailureDetected     EventKind = "ci_failure_detected"
	EventCIFixed               EventKind = "ci_fixed"
	EventMergeCompleted        EventKind = "merge_completed"
	EventForceAbandon          EventKind = "force_abandon"
)

// Event is the sealed union of every legal workflow trigger.
type Event interface {
	Kind() EventKind

	isEvent()
}

type AssignAgent struct {
	Issue     github.Issue
	Agent     string
	Workspace string
}

type StartWork struct{}

type MakeProgress struct {
	Completed   int
	Total       int
	Description string
}

type CompleteWork struct{}

type EncounterBlocker struct {
	Blocker Blocker
}

type ResolveBlocker struct{}

type SubmitForReview struct {
	PR github.PullRequest
}

type ApprovalReceived struct{}

type MergeConflictDetected struct {
	Conflicts []github.ConflictInfo
}

type ConflictsResolved struct{}

type CIFailureDetected struct {
	Failures []github.CIFailureInfo
}

type CIFixed struct{}

type MergeCompleted struct {
	// Work is optional; when nil a summary is synthesized from the issue.
	Work *github.CompletedWork
}

type ForceAbandon struct {
	Reason string
}

func (AssignAgent) Kind() EventKind           { return EventAssignAgent }
func (StartWork) Kind() EventKind             { return EventStartWork }
func (MakeProgress) Kind() EventKind          { return EventMakeProgress }
func (CompleteWork) Kind() EventKind          { return EventCompleteWork }
func (EncounterBlocker) Kind() EventKind      { return EventEncounterBlocker }
func (ResolveBlocker) Kind() EventKind        { return EventResolveBlocker }
func (SubmitForReview) Kind() EventKind       { return EventSubmitForReview }
func (ApprovalReceived) Kind() EventKind      { return EventApprovalReceived }
func (MergeConflictDetected) Kind() EventKind { return EventMergeConflictDetected }
func (ConflictsResolved) Kind() EventKind     { return EventConflictsResolved }
func (CIFailureDetected) Kind() EventKind     { return EventCIFailureDetected }
func (CIFixed) Kind() EventKind               { return EventCIFixed }
func (MergeCompleted) Kind() EventKind        { return EventMergeCompleted }
func (ForceAbandon) Kind() EventKind          { return EventForceAbandon }

func (AssignAgent) isEvent()           {}
func (StartWork) isEvent()             {}
func (MakeProgress) isEvent()          {}
func (CompleteWork) isEvent()          {}
func (EncounterBlocker) isEvent()      {}
func (ResolveBlocker) isEvent()        {}
func (SubmitForReview) isEvent()       {}
func (ApprovalReceived) isEvent()      {}
func (MergeConflictDetected) isEvent() {}
func (ConflictsResolved) isEvent()     {}
func (CIFailureDetected) isEvent()     {}
func (CIFixed) isEvent()               {}
func (MergeCompleted) isEvent()        {}
func (ForceAbandon) isEvent()          {}
