package recovery

import "time"

// StrategyKind identifies a RecoveryStrategy variant.
type StrategyKind string

const (
	StrategyRetryWithBackoff StrategyKind = "retry_with_backoff"
	StrategyAutomatedFix     StrategyKind = "automated_fix"
	StrategyEscalate         StrategyKind = "escalate"
)

// FixType names a scripted remediation.
type FixType string

const (
	FixSyntaxError             FixType = "syntax_error"
	FixBuildRepair             FixType = "build_repair"
	FixTestRepair              FixType = "test_repair"
	FixMergeConflictResolution FixType = "merge_conflict_resolution"
	FixDependencyUpdate        FixType = "dependency_update"
	FixSecurityPatch           FixType = "security_patch"
	FixStateReconciliation     FixType = "state_reconciliation"
)

// Confidence grades how likely an automated fix is to succeed unattended.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// RecoveryStrategy is the sealed union of remediation classes.
type RecoveryStrategy interface {
	Kind() StrategyKind

	isStrategy()
}

type RetryWithBackoff struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay_ms"`
	MaxDelay    time.Duration `json:"max_delay_ms"`
}

type AutomatedFix struct {
	FixType    FixType    `json:"fix_type"`
	Confidence Confidence `json:"confidence"`
}

type Escalate struct {
	Reason string `json:"reason"`
}

func (RetryWithBackoff) Kind() StrategyKind { return StrategyRetryWithBackoff }
func (AutomatedFix) Kind() StrategyKind     { return StrategyAutomatedFix }
func (Escalate) Kind() StrategyKind         { return StrategyEscalate }

func (RetryWithBackoff) isStrategy() {}
func (AutomatedFix) isStrategy()     {}
func (Escalate) isStrategy()         {}
