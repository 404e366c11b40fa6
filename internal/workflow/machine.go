package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/johnhkchen/my-little-soda-sub002/internal/github"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/cerr"
)

// StateUnassigned labels the phase before AssignAgent. It is a kind only,
// never a State variant.
const StateUnassigned StateKind = "unassigned"

var (
	// ErrInvalidTransition marks a (state, event) pair outside the legal table.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAlreadyTerminal marks events delivered after Merged or Abandoned.
	ErrAlreadyTerminal = errors.New("workflow already terminal")
)

// transitionTable is the explicit, total table of legal (state, event)
// pairs. Any pair absent here is rejected with ErrInvalidTransition.
var transitionTable = map[StateKind]map[EventKind]bool{
	StateUnassigned: {
		EventAssignAgent: true,
	},
	StateAssigned: {
		EventStartWork:    true,
		EventForceAbandon: true,
	},
	StateInProgress: {
		EventMakeProgress:     true,
		EventCompleteWork:     true,
		EventEncounterBlocker: true,
		EventForceAbandon:     true,
	},
	StateBlocked: {
		EventResolveBlocker: true,
		EventForceAbandon:   true,
	},
	StateReadyForReview: {
		EventSubmitForReview: true,
		EventForceAbandon:    true,
	},
	StateUnderReview: {
		EventApprovalReceived:      true,
		EventMergeConflictDetected: true,
		EventCIFailureDetected:     true,
		EventForceAbandon:          true,
	},
	StateApproved: {
		EventMergeCompleted:        true,
		EventMergeConflictDetected: true,
		EventCIFailureDetected:     true,
		EventForceAbandon:          true,
	},
	StateMergeConflict: {
		EventConflictsResolved: true,
		EventForceAbandon:      true,
	},
	StateCIFailure: {
		EventCIFixed:      true,
		EventForceAbandon: true,
	},
	StateMerged:    {},
	StateAbandoned: {},
}

// Allowed reports whether the (state, event) pair is in the legal table.
func Allowed(state StateKind, event EventKind) bool {
	return transitionTable[state][event]
}

// LegalEvents returns the events accepted in the given state.
func LegalEvents(state StateKind) []EventKind {
	events := make([]EventKind, 0, len(transitionTable[state]))
	for e := range transitionTable[state] {
		events = append(events, e)
	}
	return events
}

// TransitionRecord is an append-only audit entry. Insertion order is
// causal order; records are never mutated once written.
type TransitionRecord struct {
	FromState  StateKind `json:"from_state"`
	ToState    StateKind `json:"to_state"`
	Event      EventKind `json:"event"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
}

// StatusReport is a read-only snapshot safe to poll from a CLI or dashboard.
type StatusReport struct {
	AgentID          string    `json:"agent_id"`
	CurrentState     StateKind `json:"current_state"`
	TransitionsCount int       `json:"transitions_count"`
	TimeoutInMinutes int64     `json:"timeout_in_minutes"`
	CanContinue      bool      `json:"can_continue"`
}

// Machine holds one agent's workflow state and applies events strictly
// sequentially. It has no internal locking: each machine is driven by
// exactly one owner.
type Machine struct {
	agentID      string
	maxWorkHours float64
	startTime    time.Time
	lastEventAt  time.Time
	current      State // nil until AssignAgent
	history      []TransitionRecord

	now func() time.Time
}

// NewMachine constructs a machine with a fresh work-time budget.
func NewMachine(agentID string, maxWorkHours float64) *Machine {
	m := &Machine{
		agentID:      agentID,
		maxWorkHours: maxWorkHours,
		now:          time.Now,
	}
	m.startTime = m.now()
	m.lastEventAt = m.startTime
	return m
}

// NewMachineFromSnapshot reconstructs a machine from persisted data. The
// persisted form is always the source of truth; the machine is rebuilt
// from it, never the reverse.
func NewMachineFromSnapshot(agentID string, maxWorkHours float64, startTime time.Time, current State, history []TransitionRecord) *Machine {
	m := &Machine{
		agentID:      agentID,
		maxWorkHours: maxWorkHours,
		startTime:    startTime,
		current:      current,
		history:      append([]TransitionRecord(nil), history...),
		now:          time.Now,
	}
	m.lastEventAt = startTime
	if n := len(m.history); n > 0 {
		m.lastEventAt = m.history[n-1].Timestamp
	}
	return m
}

func (m *Machine) AgentID() string { return m.agentID }

// Current returns the active state, or nil before assignment.
func (m *Machine) Current() State { return m.current }

// CurrentKind returns the active state kind, StateUnassigned before assignment.
func (m *Machine) CurrentKind() StateKind {
	if m.current == nil {
		return StateUnassigned
	}
	return m.current.Kind()
}

func (m *Machine) StartTime() time.Time  { return m.startTime }
func (m *Machine) MaxWorkHours() float64 { return m.maxWorkHours }

// History returns a copy of the transition log.
func (m *Machine) History() []TransitionRecord {
	return append([]TransitionRecord(nil), m.history...)
}

// HandleEvent applies one event. On success it returns the new state,
// appends a transition record, and resets the inactivity reference point.
// Rejected events leave state untouched and are recorded with Success=false.
func (m *Machine) HandleEvent(ev Event) (State, error) {
	from := m.CurrentKind()
	now := m.now()

	if from.Terminal() {
		m.record(from, from, ev.Kind(), now, false)
		return nil, cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("agent %s: %s rejected in terminal state %s", m.agentID, ev.Kind(), from),
			ErrAlreadyTerminal)
	}
	if !Allowed(from, ev.Kind()) {
		m.record(from, from, ev.Kind(), now, false)
		return nil, cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("agent %s: %s not legal in state %s", m.agentID, ev.Kind(), from),
			ErrInvalidTransition)
	}

	next, err := m.apply(ev, now)
	if err != nil {
		m.record(from, from, ev.Kind(), now, false)
		return nil, err
	}

	m.record(from, next.Kind(), ev.Kind(), now, true)
	m.current = next
	m.lastEventAt = now
	return next, nil
}

func (m *Machine) record(from, to StateKind, event EventKind, at time.Time, success bool) {
	m.history = append(m.history, TransitionRecord{
		FromState:  from,
		ToState:    to,
		Event:      event,
		Timestamp:  at,
		DurationMS: at.Sub(m.lastEventAt).Milliseconds(),
		Success:    success,
	})
}

// apply computes the successor state. The legality of the pair has already
// been established against the table, so payload switches here only narrow
// the event to its variant.
func (m *Machine) apply(ev Event, now time.Time) (State, error) {
	switch e := ev.(type) {
	case AssignAgent:
		return Assigned{WorkIssue: e.Issue, AgentID: e.Agent, Workspace: e.Workspace}, nil

	case StartWork:
		cur := m.current.(Assigned)
		return InProgress{WorkIssue: cur.WorkIssue, AgentID: cur.AgentID}, nil

	case MakeProgress:
		cur := m.current.(InProgress)
		return InProgress{
			WorkIssue: cur.WorkIssue,
			AgentID:   cur.AgentID,
			Progress:  Progress{Completed: e.Completed, Total: e.Total, Description: e.Description},
		}, nil

	case CompleteWork:
		cur := m.current.(InProgress)
		return ReadyForReview{WorkIssue: cur.WorkIssue, AgentID: cur.AgentID}, nil

	case EncounterBlocker:
		cur := m.current.(InProgress)
		return Blocked{WorkIssue: cur.WorkIssue, AgentID: cur.AgentID, Blocker: e.Blocker, Progress: cur.Progress}, nil

	case ResolveBlocker:
		cur := m.current.(Blocked)
		return InProgress{WorkIssue: cur.WorkIssue, AgentID: cur.AgentID, Progress: cur.Progress}, nil

	case SubmitForReview:
		cur := m.current.(ReadyForReview)
		return UnderReview{WorkIssue: cur.WorkIssue, AgentID: cur.AgentID, PR: e.PR}, nil

	case ApprovalReceived:
		cur := m.current.(UnderReview)
		return Approved{WorkIssue: cur.WorkIssue, AgentID: cur.AgentID, PR: cur.PR}, nil

	case MergeConflictDetected:
		pr := currentPR(m.current)
		return MergeConflict{WorkIssue: m.current.Issue(), AgentID: m.current.Agent(), PR: pr, Conflicts: e.Conflicts}, nil

	case ConflictsResolved:
		cur := m.current.(MergeConflict)
		return UnderReview{WorkIssue: cur.WorkIssue, AgentID: cur.AgentID, PR: cur.PR}, nil

	case CIFailureDetected:
		pr := currentPR(m.current)
		return CIFailure{WorkIssue: m.current.Issue(), AgentID: m.current.Agent(), PR: pr, Failures: e.Failures}, nil

	case CIFixed:
		cur := m.current.(CIFailure)
		return UnderReview{WorkIssue: cur.WorkIssue, AgentID: cur.AgentID, PR: cur.PR}, nil

	case MergeCompleted:
		cur := m.current.(Approved)
		work := github.CompletedWork{Issue: cur.WorkIssue, CompletionTime: now}
		if e.Work != nil {
			work = *e.Work
		}
		return Merged{WorkIssue: cur.WorkIssue, AgentID: cur.AgentID, CompletedWork: work}, nil

	case ForceAbandon:
		return Abandoned{WorkIssue: m.current.Issue(), AgentID: m.current.Agent(), Reason: e.Reason}, nil

	default:
		return nil, cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("agent %s: unhandled event %s", m.agentID, ev.Kind()),
			ErrInvalidTransition)
	}
}

func currentPR(s State) github.PullRequest {
	switch cur := s.(type) {
	case UnderReview:
		return cur.PR
	case Approved:
		return cur.PR
	case MergeConflict:
		return cur.PR
	case CIFailure:
		return cur.PR
	default:
		return github.PullRequest{}
	}
}

// workBudget converts the hour budget into a duration.
func (m *Machine) workBudget() time.Duration {
	return time.Duration(m.maxWorkHours * float64(time.Hour))
}

// CanContinueAutonomously reports whether elapsed wall-clock time is still
// within the work budget. It is independent of explicit events: a machine
// goes stale purely by aging.
func (m *Machine) CanContinueAutonomously() bool {
	return m.now().Sub(m.startTime) < m.workBudget()
}

// TimeoutIn returns the remaining budget, floored at zero.
func (m *Machine) TimeoutIn() time.Duration {
	remaining := m.workBudget() - m.now().Sub(m.startTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Report builds the read-only status snapshot.
func (m *Machine) Report() StatusReport {
	return StatusReport{
		AgentID:          m.agentID,
		CurrentState:     m.CurrentKind(),
		TransitionsCount: len(m.history),
		TimeoutInMinutes: int64(m.TimeoutIn().Minutes()),
		CanContinue:      m.CanContinueAutonomously(),
	}
}
