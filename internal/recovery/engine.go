package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/johnhkchen/my-little-soda-sub002/internal/workflow"
	"github.com/johnhkchen/my-little-soda-sub002/pkg/cerr"
)

// ErrEscalationRequired marks outcomes that need a human before work can
// continue. Escalations never auto-complete.
var ErrEscalationRequired = errors.New("escalation required")

// ErrRetriesExhausted marks retry strategies that ran out of attempts.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Attempt records one executed remediation, successful or not.
type Attempt struct {
	AttemptID       string    `json:"attempt_id"`
	RecoveryActions []string  `json:"recovery_actions"`
	DurationSeconds float64   `json:"duration_seconds"`
	Success         bool      `json:"success"`
	Timestamp       time.Time `json:"timestamp"`
}

// Report aggregates recovery outcomes. SuccessRate is 1.0 when nothing has
// been attempted yet.
type Report struct {
	TotalAttempts      int      `json:"total_attempts"`
	SuccessfulAttempts int      `json:"successful_attempts"`
	SuccessRate        float64  `json:"success_rate"`
	LastAttempt        *Attempt `json:"last_attempt,omitempty"`
}

// RetryFunc re-runs the operation behind a transient failure. The engine
// does not know how to perform git pushes or CI reruns itself; the driver
// injects that capability.
type RetryFunc func(ctx context.Context, e ErrorType) error

// FixRunner applies a scripted fix and returns the concrete actions taken.
type FixRunner interface {
	Run(ctx context.Context, fix FixType, e ErrorType) ([]string, error)
}

// Notifier delivers escalations to humans.
type Notifier interface {
	NotifyEscalation(ctx context.Context, agentID, reason string)
}

// Engine executes recovery strategies and keeps a running report. Strategy
// selection itself lives in DetermineStrategy and stays pure.
type Engine struct {
	retry    RetryFunc
	fixer    FixRunner
	notifier Notifier
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu                 sync.Mutex
	totalAttempts      int
	successfulAttempts int
	lastAttempt        *Attempt
}

type EngineOption func(*Engine)

func WithRetryFunc(fn RetryFunc) EngineOption {
	return func(e *Engine) { e.retry = fn }
}

func WithFixRunner(fr FixRunner) EngineOption {
	return func(e *Engine) { e.fixer = fr }
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		now:   time.Now,
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sleepCtx waits for d unless the context is cancelled first. Backoff
// delays must never survive shutdown.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute performs the chosen remediation and always returns an Attempt
// with concrete actions and wall-clock duration, even on failure. The
// attempt is folded into the running report before returning.
func (e *Engine) Execute(ctx context.Context, errType ErrorType, strategy RecoveryStrategy, current workflow.State) (Attempt, error) {
	start := e.now()
	attempt := Attempt{
		AttemptID: ulid.Make().String(),
		Timestamp: start,
	}

	agentID := ""
	if current != nil {
		agentID = current.Agent()
	}

	var execErr error
	switch s := strategy.(type) {
	case RetryWithBackoff:
		attempt.RecoveryActions, execErr = e.executeRetry(ctx, errType, s)
	case AutomatedFix:
		attempt.RecoveryActions, execErr = e.executeFix(ctx, errType, s)
	case Escalate:
		attempt.RecoveryActions, execErr = e.executeEscalation(ctx, agentID, s)
	default:
		execErr = cerr.NewError(cerr.Internal, fmt.Sprintf("unknown strategy %s", strategy.Kind()), nil)
	}

	attempt.DurationSeconds = e.now().Sub(start).Seconds()
	attempt.Success = execErr == nil

	e.recordAttempt(attempt)

	slog.Info("recovery attempt finished",
		"agent_id", agentID,
		"error_kind", errType.Kind(),
		"strategy", strategy.Kind(),
		"success", attempt.Success,
		"duration_seconds", attempt.DurationSeconds,
	)
	return attempt, execErr
}

func (e *Engine) executeRetry(ctx context.Context, errType ErrorType, s RetryWithBackoff) ([]string, error) {
	if e.retry == nil {
		return []string{"no retry operation configured"},
			cerr.NewError(cerr.Internal, "retry requested without a retry operation", ErrRetriesExhausted)
	}

	var actions []string
	delay := s.BaseDelay
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		actions = append(actions, fmt.Sprintf("retry %d/%d: %s", attempt, s.MaxAttempts, errType.Describe()))
		if err := e.retry(ctx, errType); err == nil {
			actions = append(actions, fmt.Sprintf("retry %d succeeded", attempt))
			return actions, nil
		} else {
			actions = append(actions, fmt.Sprintf("retry %d failed: %v", attempt, err))
		}

		if attempt == s.MaxAttempts {
			break
		}
		if delay > s.MaxDelay {
			delay = s.MaxDelay
		}
		if err := e.sleep(ctx, delay); err != nil {
			actions = append(actions, "backoff interrupted by shutdown")
			return actions, cerr.NewError(cerr.Canceled, "recovery cancelled during backoff", err)
		}
		delay *= 2
	}
	return actions, cerr.NewError(cerr.Internal,
		fmt.Sprintf("all %d retries failed for %s", s.MaxAttempts, errType.Kind()), ErrRetriesExhausted)
}

func (e *Engine) executeFix(ctx context.Context, errType ErrorType, s AutomatedFix) ([]string, error) {
	if e.fixer == nil {
		return []string{fmt.Sprintf("no fix runner configured for %s", s.FixType)},
			cerr.NewError(cerr.Internal, "automated fix requested without a fix runner", nil)
	}
	actions, err := e.fixer.Run(ctx, s.FixType, errType)
	header := fmt.Sprintf("applying %s fix (%s confidence)", s.FixType, s.Confidence)
	actions = append([]string{header}, actions...)
	if err != nil {
		return actions, cerr.NewError(cerr.Internal, fmt.Sprintf("%s fix failed", s.FixType), err)
	}
	return actions, nil
}

func (e *Engine) executeEscalation(ctx context.Context, agentID string, s Escalate) ([]string, error) {
	if e.notifier != nil {
		e.notifier.NotifyEscalation(ctx, agentID, s.Reason)
	}
	actions := []string{fmt.Sprintf("escalated to human: %s", s.Reason)}
	return actions, cerr.NewError(cerr.FailedPrecondition, "recovery requires human action", ErrEscalationRequired)
}

func (e *Engine) recordAttempt(attempt Attempt) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalAttempts++
	if attempt.Success {
		e.successfulAttempts++
	}
	e.lastAttempt = &attempt
}

// Report returns a read-only snapshot of aggregate recovery outcomes.
func (e *Engine) Report() Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	rate := 1.0
	if e.totalAttempts > 0 {
		rate = float64(e.successfulAttempts) / float64(e.totalAttempts)
	}
	report := Report{
		TotalAttempts:      e.totalAttempts,
		SuccessfulAttempts: e.successfulAttempts,
		SuccessRate:        rate,
	}
	if e.lastAttempt != nil {
		last := *e.lastAttempt
		report.LastAttempt = &last
	}
	return report
}
