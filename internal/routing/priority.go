// Package routing maps issue labels to a numeric priority and orders
// issues for assignment.
package routing

import (
	"sort"

	"github.com/johnhkchen/my-little-soda-sub002/internal/github"
)

// Label priorities. An issue's priority is the sum of its label scores,
// so an unblocker always outranks ordinary work regardless of its other
// labels.
var labelPriorities = map[string]int{
	"route:unblocker":          100,
	"route:priority-very-high": 20,
	"route:priority-high":      10,
	"route:priority-medium":    5,
	"route:priority-low":       1,
	"route:ready":              1,
	"route:ready_to_merge":     50,
	"route:review":             15,
}

// Excluded marks issues the router must never hand to an agent.
func Excluded(issue github.Issue) bool {
	for _, l := range issue.Labels {
		if l == "route:human-only" {
			return true
		}
	}
	return false
}

// Priority computes the numeric priority for an issue from its labels.
func Priority(issue github.Issue) int {
	p := 0
	for _, l := range issue.Labels {
		p += labelPriorities[l]
	}
	return p
}

// Sort orders issues by descending priority, breaking ties by ascending
// issue number so older issues go first. The sort is stable with respect
// to the computed ordering and does not mutate label data.
func Sort(issues []github.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		pi, pj := Priority(issues[i]), Priority(issues[j])
		if pi != pj {
			return pi > pj
		}
		return issues[i].Number < issues[j].Number
	})
}

// Next returns the highest-priority routable issue, or false when none
// qualifies.
func Next(issues []github.Issue) (github.Issue, bool) {
	best := github.Issue{}
	found := false
	for _, is := range issues {
		if Excluded(is) || Priority(is) == 0 {
			continue
		}
		if !found || Priority(is) > Priority(best) ||
			(Priority(is) == Priority(best) && is.Number < best.Number) {
			best = is
			found = true
		}
	}
	return best, found
}
