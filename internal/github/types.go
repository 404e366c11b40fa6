// Package github holds the boundary data types this system receives from
// the GitHub/CI observers. Nothing here performs API calls; the values
// arrive already fetched, embedded in workflow events.
package github

import "time"

type Issue struct {
	Number         int      `json:"number"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	Labels         []string `json:"labels"`
	Priority       int      `json:"priority"`
	EstimatedHours float64  `json:"estimated_hours"`
}

type PullRequest struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Branch       string `json:"branch"`
	Commits      int    `json:"commits"`
	FilesChanged int    `json:"files_changed"`
}

// CIFailureInfo describes one failed CI job as reported by the CI observer.
type CIFailureInfo struct {
	JobName     string `json:"job_name"`
	Step        string `json:"step"`
	Error       string `json:"error"`
	AutoFixable bool   `json:"auto_fixable"`
}

// ConflictInfo describes one conflicting file found during a merge.
type ConflictInfo struct {
	File            string `json:"file"`
	ConflictMarkers int    `json:"conflict_markers"`
	AutoResolvable  bool   `json:"auto_resolvable"`
}

type CompletedWork struct {
	Issue          Issue     `json:"issue"`
	Commits        int       `json:"commits"`
	FilesChanged   int       `json:"files_changed"`
	TestsAdded     int       `json:"tests_added"`
	CompletionTime time.Time `json:"completion_time"`
}
