package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitOperationClassification(t *testing.T) {
	s := DetermineStrategy(GitOperationFailed{Operation: "push", Message: "timeout"})
	retry, ok := s.(RetryWithBackoff)
	require.True(t, ok, "got %T", s)
	assert.Equal(t, 3, retry.MaxAttempts)

	s = DetermineStrategy(GitOperationFailed{Operation: "fetch", Message: "repository not found"})
	_, ok = s.(Escalate)
	assert.True(t, ok, "permanent conditions escalate, got %T", s)
}

func TestBuildFailureClassification(t *testing.T) {
	s := DetermineStrategy(BuildFailure{Stage: "compile", Message: "expected ';'"})
	fix, ok := s.(AutomatedFix)
	require.True(t, ok)
	assert.Equal(t, FixSyntaxError, fix.FixType)
	assert.Equal(t, ConfidenceHigh, fix.Confidence)

	s = DetermineStrategy(BuildFailure{Stage: "link", Message: "unresolved symbol _foo"})
	_, ok = s.(Escalate)
	assert.True(t, ok, "got %T", s)

	s = DetermineStrategy(BuildFailure{Stage: "link", Message: "library path misconfigured"})
	fix, ok = s.(AutomatedFix)
	require.True(t, ok)
	assert.Equal(t, ConfidenceLow, fix.Confidence)
}

func TestTestFailureClassification(t *testing.T) {
	s := DetermineStrategy(TestFailure{Suite: "unit", Message: "TestParse fails"})
	fix, ok := s.(AutomatedFix)
	require.True(t, ok)
	assert.Equal(t, FixTestRepair, fix.FixType)
	assert.Equal(t, ConfidenceHigh, fix.Confidence)

	s = DetermineStrategy(TestFailure{Suite: "performance", Message: "p99 regression"})
	_, ok = s.(RetryWithBackoff)
	assert.True(t, ok, "flaky perf suites retry before code fixes, got %T", s)
}

func TestMergeConflictClassification(t *testing.T) {
	s := DetermineStrategy(MergeConflictError{Files: []string{"a.rs"}, ConflictCount: 1})
	fix, ok := s.(AutomatedFix)
	require.True(t, ok)
	assert.Equal(t, FixMergeConflictResolution, fix.FixType)
	assert.Equal(t, ConfidenceHigh, fix.Confidence)

	s = DetermineStrategy(MergeConflictError{Files: []string{"a.go", "b.go", "c.go", "d.go"}, ConflictCount: 8})
	fix, ok = s.(AutomatedFix)
	require.True(t, ok)
	assert.Equal(t, ConfidenceLow, fix.Confidence)

	s = DetermineStrategy(MergeConflictError{
		Files:         []string{"a.go", "b.go", "c.go", "logo.png"},
		ConflictCount: 12,
	})
	_, ok = s.(Escalate)
	assert.True(t, ok, "binary conflicts escalate, got %T", s)
}

func TestDependencyClassification(t *testing.T) {
	s := DetermineStrategy(DependencyIssue{Package: "serde", Message: "minor update available"})
	fix, ok := s.(AutomatedFix)
	require.True(t, ok)
	assert.Equal(t, FixDependencyUpdate, fix.FixType)

	s = DetermineStrategy(DependencyIssue{Package: "openssl", Message: "unresolvable version conflict"})
	_, ok = s.(Escalate)
	assert.True(t, ok)
}

func TestSecurityClassification(t *testing.T) {
	s := DetermineStrategy(SecurityVulnerability{Severity: "medium", Advisory: "CVE-2024-0001"})
	fix, ok := s.(AutomatedFix)
	require.True(t, ok)
	assert.Equal(t, ConfidenceHigh, fix.Confidence)

	s = DetermineStrategy(SecurityVulnerability{Severity: "critical", Advisory: "CVE-2024-0002"})
	fix, ok = s.(AutomatedFix)
	require.True(t, ok)
	assert.Equal(t, ConfidenceLow, fix.Confidence, "critical severity is the review boundary")
}

func TestSystemErrorsAlwaysEscalate(t *testing.T) {
	for _, e := range []SystemError{
		{Resource: "disk", Message: "no space left on device"},
		{Resource: "memory", Message: "oom killed"},
	} {
		_, ok := DetermineStrategy(e).(Escalate)
		assert.True(t, ok, "%v", e)
	}
}

func TestStateInconsistencyClassification(t *testing.T) {
	s := DetermineStrategy(StateInconsistency{Expected: "In Progress", Actual: "in  progress"})
	fix, ok := s.(AutomatedFix)
	require.True(t, ok, "whitespace/case drift auto-reconciles, got %T", s)
	assert.Equal(t, FixStateReconciliation, fix.FixType)

	s = DetermineStrategy(StateInconsistency{Expected: "under_review", Actual: "merged"})
	esc, ok := s.(Escalate)
	require.True(t, ok)
	assert.Contains(t, esc.Reason, "expected")
	assert.Contains(t, esc.Reason, "actual")
}

func TestDeterminism(t *testing.T) {
	e := MergeConflictError{Files: []string{"x.go"}, ConflictCount: 2}
	first := DetermineStrategy(e)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DetermineStrategy(e))
	}
}
