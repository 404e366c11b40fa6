package recovery

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// Default retry envelope for transient infrastructure failures.
var defaultRetry = RetryWithBackoff{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    30 * time.Second,
}

// Retry envelope for flaky test suites: fewer attempts, longer spacing.
var flakyRetry = RetryWithBackoff{
	MaxAttempts: 2,
	BaseDelay:   5 * time.Second,
	MaxDelay:    time.Minute,
}

// permanentGitConditions are message fragments indicating retrying a git
// operation can never succeed.
var permanentGitConditions = []string{
	"not found",
	"does not exist",
	"permission denied",
	"authentication failed",
	"repository access blocked",
}

var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".pdf": true,
	".zip": true, ".tar": true, ".gz": true, ".exe": true, ".bin": true,
	".so": true, ".dylib": true, ".ico": true, ".woff": true, ".woff2": true,
}

// DetermineStrategy maps a classified error to its remediation strategy.
// It is pure and deterministic: same error, same strategy, no I/O.
func DetermineStrategy(e ErrorType) RecoveryStrategy {
	switch err := e.(type) {
	case GitOperationFailed:
		msg := strings.ToLower(err.Message)
		for _, cond := range permanentGitConditions {
			if strings.Contains(msg, cond) {
				return Escalate{Reason: fmt.Sprintf("git %s failed permanently: %s", err.Operation, err.Message)}
			}
		}
		return defaultRetry

	case BuildFailure:
		switch strings.ToLower(err.Stage) {
		case "compile":
			return AutomatedFix{FixType: FixSyntaxError, Confidence: ConfidenceHigh}
		case "link":
			if strings.Contains(strings.ToLower(err.Message), "unresolved") {
				return Escalate{Reason: fmt.Sprintf("unresolved link failure: %s", err.Message)}
			}
			return AutomatedFix{FixType: FixBuildRepair, Confidence: ConfidenceLow}
		default:
			return AutomatedFix{FixType: FixBuildRepair, Confidence: ConfidenceLow}
		}

	case TestFailure:
		// Performance suites fail for environmental reasons more often
		// than for code reasons; retry before touching the code.
		switch strings.ToLower(err.Suite) {
		case "performance", "perf", "bench", "benchmark":
			return flakyRetry
		case "unit":
			return AutomatedFix{FixType: FixTestRepair, Confidence: ConfidenceHigh}
		default:
			return AutomatedFix{FixType: FixTestRepair, Confidence: ConfidenceLow}
		}

	case MergeConflictError:
		if hasBinaryFile(err.Files) {
			return Escalate{Reason: fmt.Sprintf("merge conflict touches binary files: %s", strings.Join(err.Files, ", "))}
		}
		switch {
		case len(err.Files) <= 2 && err.ConflictCount <= 4:
			return AutomatedFix{FixType: FixMergeConflictResolution, Confidence: ConfidenceHigh}
		case len(err.Files) <= 5 && err.ConflictCount <= 10:
			return AutomatedFix{FixType: FixMergeConflictResolution, Confidence: ConfidenceLow}
		default:
			return Escalate{Reason: fmt.Sprintf("merge conflict too large to auto-resolve: %d files, %d conflicts", len(err.Files), err.ConflictCount)}
		}

	case DependencyIssue:
		msg := strings.ToLower(err.Message)
		if strings.Contains(msg, "unresolvable") || strings.Contains(msg, "incompatible") {
			return Escalate{Reason: fmt.Sprintf("dependency version conflict on %s cannot be resolved: %s", err.Package, err.Message)}
		}
		return AutomatedFix{FixType: FixDependencyUpdate, Confidence: ConfidenceLow}

	case SecurityVulnerability:
		// Critical advisories still get an automated patch attempt, but at
		// low confidence so the outcome is reviewed.
		if strings.EqualFold(err.Severity, "critical") {
			return AutomatedFix{FixType: FixSecurityPatch, Confidence: ConfidenceLow}
		}
		return AutomatedFix{FixType: FixSecurityPatch, Confidence: ConfidenceHigh}

	case SystemError:
		return Escalate{Reason: fmt.Sprintf("system error on %s: %s", err.Resource, err.Message)}

	case StateInconsistency:
		if reconcilable(err.Expected, err.Actual) {
			return AutomatedFix{FixType: FixStateReconciliation, Confidence: ConfidenceHigh}
		}
		return Escalate{Reason: "state inconsistency:\n" + stateDiff(err.Expected, err.Actual)}

	default:
		return Escalate{Reason: fmt.Sprintf("unclassifiable error: %s", e.Describe())}
	}
}

func hasBinaryFile(files []string) bool {
	for _, f := range files {
		if binaryExtensions[strings.ToLower(filepath.Ext(f))] {
			return true
		}
	}
	return false
}

// reconcilable reports whether expected and actual differ only in case and
// whitespace, which a reconciliation script can close without judgment.
func reconcilable(expected, actual string) bool {
	return normalizeState(expected) == normalizeState(actual)
}

func normalizeState(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// stateDiff renders a unified diff of the expected and actual state
// descriptions for the escalation report.
func stateDiff(expected, actual string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
	if err != nil {
		return fmt.Sprintf("expected %q, actual %q", expected, actual)
	}
	return diff
}
