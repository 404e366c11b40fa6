package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/johnhkchen/my-little-soda-sub002/internal/github"
)

func TestPriority(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   int
	}{
		{"unlabeled", nil, 0},
		{"ready", []string{"route:ready"}, 1},
		{"ready high", []string{"route:ready", "route:priority-high"}, 11},
		{"unblocker beats everything", []string{"route:unblocker"}, 100},
		{"unknown labels ignored", []string{"bug", "route:ready"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Priority(github.Issue{Labels: tt.labels}))
		})
	}
}

func TestSortOrdersByPriorityThenNumber(t *testing.T) {
	issues := []github.Issue{
		{Number: 30, Labels: []string{"route:ready"}},
		{Number: 10, Labels: []string{"route:ready", "route:priority-high"}},
		{Number: 20, Labels: []string{"route:unblocker"}},
		{Number: 5, Labels: []string{"route:ready"}},
	}
	Sort(issues)

	nums := make([]int, 0, len(issues))
	for _, is := range issues {
		nums = append(nums, is.Number)
	}
	assert.Equal(t, []int{20, 10, 5, 30}, nums)
}

func TestNextSkipsHumanOnlyAndUnrouted(t *testing.T) {
	issues := []github.Issue{
		{Number: 1, Labels: []string{"route:ready", "route:human-only"}},
		{Number: 2, Labels: []string{"bug"}},
		{Number: 3, Labels: []string{"route:ready"}},
	}
	next, ok := Next(issues)
	assert.True(t, ok)
	assert.Equal(t, 3, next.Number)

	_, ok = Next(issues[:2])
	assert.False(t, ok)
}
