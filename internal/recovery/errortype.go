// Package recovery classifies workflow failures and executes remediation
// strategies: retrying with backoff, applying a scripted fix, or escalating
// to a human.
package recovery

import "fmt"

// ErrorKind identifies an ErrorType variant.
type ErrorKind string

const (
	ErrGitOperationFailed    ErrorKind = "git_operation_failed"
	ErrBuildFailure          ErrorKind = "build_failure"
	ErrTestFailure           ErrorKind = "test_failure"
	ErrMergeConflict         ErrorKind = "merge_conflict"
	ErrDependencyIssue       ErrorKind = "dependency_issue"
	ErrSecurityVulnerability ErrorKind = "security_vulnerability"
	ErrSystemError           ErrorKind = "system_error"
	ErrStateInconsistency    ErrorKind = "state_inconsistency"
)

// ErrorType is the sealed union of classifiable failures. Instances arrive
// already extracted from git/CI/GitHub observer output; the engine never
// inspects raw tool output itself.
type ErrorType interface {
	Kind() ErrorKind
	Describe() string

	isErrorType()
}

type GitOperationFailed struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
}

type BuildFailure struct {
	Stage   string `json:"stage"` // compile, link, ...
	Message string `json:"message"`
}

type TestFailure struct {
	Suite   string `json:"suite"` // unit, integration, performance
	Message string `json:"message"`
}

type MergeConflictError struct {
	Files         []string `json:"files"`
	ConflictCount int      `json:"conflict_count"`
}

type DependencyIssue struct {
	Package string `json:"package"`
	Message string `json:"message"`
}

type SecurityVulnerability struct {
	Severity string `json:"severity"`
	Advisory string `json:"advisory"`
}

type SystemError struct {
	Resource string `json:"resource"` // disk, memory, ...
	Message  string `json:"message"`
}

type StateInconsistency struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (GitOperationFailed) Kind() ErrorKind    { return ErrGitOperationFailed }
func (BuildFailure) Kind() ErrorKind          { return ErrBuildFailure }
func (TestFailure) Kind() ErrorKind           { return ErrTestFailure }
func (MergeConflictError) Kind() ErrorKind    { return ErrMergeConflict }
func (DependencyIssue) Kind() ErrorKind       { return ErrDependencyIssue }
func (SecurityVulnerability) Kind() ErrorKind { return ErrSecurityVulnerability }
func (SystemError) Kind() ErrorKind           { return ErrSystemError }
func (StateInconsistency) Kind() ErrorKind    { return ErrStateInconsistency }

func (e GitOperationFailed) Describe() string {
	return fmt.Sprintf("git %s failed: %s", e.Operation, e.Message)
}

func (e BuildFailure) Describe() string {
	return fmt.Sprintf("build failed at %s: %s", e.Stage, e.Message)
}

func (e TestFailure) Describe() string {
	return fmt.Sprintf("%s tests failed: %s", e.Suite, e.Message)
}

func (e MergeConflictError) Describe() string {
	return fmt.Sprintf("merge conflict in %d file(s), %d conflict(s)", len(e.Files), e.ConflictCount)
}

func (e DependencyIssue) Describe() string {
	return fmt.Sprintf("dependency issue with %s: %s", e.Package, e.Message)
}

func (e SecurityVulnerability) Describe() string {
	return fmt.Sprintf("security vulnerability (%s): %s", e.Severity, e.Advisory)
}

func (e SystemError) Describe() string {
	return fmt.Sprintf("system error (%s): %s", e.Resource, e.Message)
}

func (e StateInconsistency) Describe() string {
	return fmt.Sprintf("state inconsistency: expected %q, actual %q", e.Expected, e.Actual)
}

func (GitOperationFailed) isErrorType()    {}
func (BuildFailure) isErrorType()          {}
func (TestFailure) isErrorType()           {}
func (MergeConflictError) isErrorType()    {}
func (DependencyIssue) isErrorType()       {}
func (SecurityVulnerability) isErrorType() {}
func (SystemError) isErrorType()           {}
func (StateInconsistency) isErrorType()    {}
