// Package coordinator drives the per-agent workflow machines. Each agent
// has exactly one driver; events are applied strictly sequentially, every
// applied transition is snapshotted, and blocking errors are routed through
// the recovery engine.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/johnhkchen/my-little-soda-sub002/internal/continuity"
	"github.com/johnhkchen/my-little-soda-sub002/internal/eventbus"
	"github.com/johnhkchen/my-little-soda-sub002/internal/persist"
	"github.com/johnhkchen/my-little-soda-sub002/internal/recovery"
	"github.com/johnhkchen/my-little-soda-sub002/internal/workflow"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/cerr"
)

// Config carries the budgets applied when the coordinator constructs
// machines and auto-savers.
type Config struct {
	MaxWorkHours     float64
	AutoSaveInterval time.Duration
}

// EngineFactory builds one recovery engine per agent, so each agent keeps
// its own recovery report.
type EngineFactory func() *recovery.Engine

// driver holds everything owned by a single agent. Its mutex enforces the
// one-owner, sequential-events discipline.
type driver struct {
	mu              sync.Mutex
	machine         *workflow.Machine
	engine          *recovery.Engine
	saver           *persist.AutoSaver
	recoveryHistory []recovery.Attempt
}

type Coordinator struct {
	mu      sync.RWMutex
	drivers map[string]*driver

	store      persist.Store
	continuity *continuity.Manager
	bus        *eventbus.Bus
	newEngine  EngineFactory
	cfg        Config

	ctx       context.Context
	waitGroup *conc.WaitGroup
}

func New(store persist.Store, cm *continuity.Manager, bus *eventbus.Bus, newEngine EngineFactory, cfg Config) *Coordinator {
	if cfg.MaxWorkHours <= 0 {
		cfg.MaxWorkHours = 8
	}
	if cfg.AutoSaveInterval <= 0 {
		cfg.AutoSaveInterval = 30 * time.Second
	}
	if newEngine == nil {
		newEngine = func() *recovery.Engine { return recovery.NewEngine() }
	}
	return &Coordinator{
		drivers:    make(map[string]*driver),
		store:      store,
		continuity: cm,
		bus:        bus,
		newEngine:  newEngine,
		cfg:        cfg,
		waitGroup:  conc.NewWaitGroup(),
	}
}

// Start pins the lifetime context. Agents registered afterwards run their
// background loops under it.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
}

// StartAgent resumes or freshly registers an agent and returns the
// continuity decision that was applied. A nil action means there was no
// prior state at all.
func (c *Coordinator) StartAgent(ctx context.Context, agentID string) (continuity.ResumeAction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.drivers[agentID]; exists {
		return nil, cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("agent %s already registered", agentID), nil)
	}

	action, err := c.continuity.RecoverFromCheckpoint(ctx, agentID)
	if err != nil {
		return nil, err
	}

	var m *workflow.Machine
	switch action.(type) {
	case continuity.ContinueWork, continuity.ValidateAndResync:
		st, err := c.store.LoadState(ctx, agentID)
		if err != nil || st == nil {
			// The continuity read succeeded moments ago; treat a racing
			// failure as no usable state.
			m = workflow.NewMachine(agentID, c.cfg.MaxWorkHours)
		} else {
			m = workflow.NewMachineFromSnapshot(agentID, st.MaxWorkHours, st.StartTime, st.CurrentState.State, st.StateHistory)
		}
	default:
		m = workflow.NewMachine(agentID, c.cfg.MaxWorkHours)
	}

	d := &driver{
		machine: m,
		engine:  c.newEngine(),
		saver:   persist.NewAutoSaver(c.store, c.cfg.AutoSaveInterval),
	}
	c.drivers[agentID] = d

	runCtx := c.ctx
	if runCtx == nil {
		runCtx = context.Background()
	}
	c.waitGroup.Go(func() {
		d.saver.Run(runCtx)
	})

	c.bus.PublishNew(eventbus.EventAgentResumed, agentID, resumeLabel(action), nil)
	slog.Info("agent started", "agent_id", agentID, "resume", resumeLabel(action),
		"state", m.CurrentKind())
	return action, nil
}

func resumeLabel(action continuity.ResumeAction) string {
	switch a := action.(type) {
	case continuity.ContinueWork:
		return fmt.Sprintf("continue issue #%d on %s", a.Issue.Number, a.Branch)
	case continuity.ValidateAndResync:
		return "validate and resync: " + a.Reason
	case continuity.StartFresh:
		return "start fresh: " + a.Reason
	default:
		return "no prior state"
	}
}

func (c *Coordinator) driverFor(agentID string) (*driver, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.drivers[agentID]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("agent %s not registered", agentID), nil)
	}
	return d, nil
}

// Dispatch applies one event to the agent's machine. Applied transitions
// are published on the bus and snapshotted; rejections are published as
// denied. When the machine lands in Blocked the recovery engine runs
// before Dispatch returns.
func (c *Coordinator) Dispatch(ctx context.Context, agentID string, ev workflow.Event) (workflow.State, error) {
	d, err := c.driverFor(agentID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	from := d.machine.CurrentKind()
	next, err := d.machine.HandleEvent(ev)
	if err != nil {
		c.bus.PublishNew(eventbus.EventTransitionDenied, agentID,
			fmt.Sprintf("%s rejected in %s", ev.Kind(), from),
			map[string]string{"event": string(ev.Kind())})
		return nil, err
	}

	c.bus.PublishNew(eventbus.EventStateTransition, agentID,
		fmt.Sprintf("%s -> %s", from, next.Kind()),
		map[string]string{"event": string(ev.Kind())})
	c.snapshot(d, agentID)

	if next.Kind() == workflow.StateAbandoned {
		c.bus.PublishNew(eventbus.EventAgentAbandoned, agentID, "", nil)
	}

	if blocked, ok := next.(workflow.Blocked); ok {
		return c.recover(ctx, d, agentID, blocked)
	}
	return next, nil
}

// snapshot hands the current machine state to the agent's auto-saver.
// Caller holds d.mu.
func (c *Coordinator) snapshot(d *driver, agentID string) {
	st := persist.Snapshot(d.machine, d.recoveryHistory)
	d.saver.Submit(st)
	c.bus.PublishNew(eventbus.EventCheckpointSaved, agentID, "",
		map[string]string{"reason": string(persist.ReasonStateTransition)})
}

// recover classifies the blocker, checkpoints the pre-recovery state, and
// executes the chosen strategy. On success the blocker is resolved and work
// continues; escalations leave the machine Blocked for a human; exhausted
// strategies abandon the work unit. Caller holds d.mu.
func (c *Coordinator) recover(ctx context.Context, d *driver, agentID string, blocked workflow.Blocked) (workflow.State, error) {
	errType := blockerError(blocked.Blocker)
	strategy := recovery.DetermineStrategy(errType)

	pre := persist.Snapshot(d.machine, d.recoveryHistory)
	if _, err := c.continuity.CheckpointState(ctx, pre,
		fmt.Sprintf("before %s recovery", errType.Kind()), persist.ReasonBeforeRecovery); err != nil {
		slog.Warn("pre-recovery checkpoint failed", "agent_id", agentID, "error", err)
	}

	attempt, execErr := d.engine.Execute(ctx, errType, strategy, d.machine.Current())
	d.recoveryHistory = append(d.recoveryHistory, attempt)

	outcome := "success"
	if execErr != nil {
		outcome = "failure"
	}
	c.bus.PublishNew(eventbus.EventRecoveryAttempted, agentID, errType.Describe(),
		map[string]string{"outcome": outcome})

	if execErr == nil {
		next, err := d.machine.HandleEvent(workflow.ResolveBlocker{})
		if err != nil {
			return nil, err
		}
		c.bus.PublishNew(eventbus.EventStateTransition, agentID,
			fmt.Sprintf("%s -> %s", workflow.StateBlocked, next.Kind()),
			map[string]string{"event": string(workflow.EventResolveBlocker)})
		c.snapshot(d, agentID)
		return next, nil
	}

	if errors.Is(execErr, recovery.ErrEscalationRequired) {
		// Human action required; the machine stays Blocked.
		c.bus.PublishNew(eventbus.EventEscalation, agentID, errType.Describe(), nil)
		c.snapshot(d, agentID)
		return d.machine.Current(), execErr
	}

	next, err := d.machine.HandleEvent(workflow.ForceAbandon{
		Reason: fmt.Sprintf("recovery failed: %v", execErr),
	})
	if err != nil {
		return nil, err
	}
	c.bus.PublishNew(eventbus.EventAgentAbandoned, agentID, next.(workflow.Abandoned).Reason, nil)
	c.snapshot(d, agentID)
	return next, execErr
}

// blockerError translates the machine's blocker vocabulary into the
// recovery engine's error taxonomy.
func blockerError(b workflow.Blocker) recovery.ErrorType {
	switch b.Type {
	case workflow.BlockerTestFailure:
		return recovery.TestFailure{Suite: "unit", Message: b.Detail}
	case workflow.BlockerBuildFailure:
		return recovery.BuildFailure{Stage: "compile", Message: b.Detail}
	case workflow.BlockerDependencyIssue:
		return recovery.DependencyIssue{Message: b.Detail}
	case workflow.BlockerMergeConflict:
		return recovery.MergeConflictError{ConflictCount: 1}
	case workflow.BlockerCIFailure:
		return recovery.TestFailure{Suite: "integration", Message: b.Detail}
	default:
		// Unknown blockers always reach a human.
		return recovery.SystemError{Resource: "unknown", Message: b.Detail}
	}
}

// Status returns the agent's read-only status report.
func (c *Coordinator) Status(agentID string) (workflow.StatusReport, error) {
	d, err := c.driverFor(agentID)
	if err != nil {
		return workflow.StatusReport{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine.Report(), nil
}

// RecoveryReport returns the agent's aggregated recovery outcomes.
func (c *Coordinator) RecoveryReport(agentID string) (recovery.Report, error) {
	d, err := c.driverFor(agentID)
	if err != nil {
		return recovery.Report{}, err
	}
	return d.engine.Report(), nil
}

// Agents lists registered agent IDs.
func (c *Coordinator) Agents() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.drivers))
	for id := range c.drivers {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops the auto-savers, saves a final snapshot per agent, and
// waits for background loops to exit. The saver is stopped first so a
// queued snapshot cannot be written after the final one.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	drivers := make(map[string]*driver, len(c.drivers))
	for id, d := range c.drivers {
		drivers[id] = d
	}
	c.mu.Unlock()

	for agentID, d := range drivers {
		d.mu.Lock()
		d.saver.Stop()
		st := persist.Snapshot(d.machine, d.recoveryHistory)
		if _, err := c.store.SaveState(ctx, st, persist.ReasonBeforeShutdown); err != nil {
			slog.Error("shutdown save failed", "agent_id", agentID, "error", err)
		}
		d.mu.Unlock()
	}
	c.waitGroup.Wait()
}
