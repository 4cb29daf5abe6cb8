package vault

import (
	"math"
	"time"

	"github.com/samber/lo"
)

// PeriodStart returns the boundary a goal period is measured from:
// the most recent Monday for weekly goals, the first of the month for
// monthly goals, both at local midnight relative to now.
func PeriodStart(period GoalPeriod, now time.Time) time.Time {
	if period == PeriodMonthly {
		return monthStart(now)
	}
	return weekStart(now)
}

// EvaluateGoal computes progress toward the tool's usage goal. It returns
// false when the tool has no goal configured.
//
// Only entries strictly after the period boundary count; an entry stamped
// exactly at the boundary belongs to the previous period.
func EvaluateGoal(tool Tool, now time.Time) (GoalProgress, bool) {
	if !tool.HasGoal() {
		return GoalProgress{}, false
	}
	goal := *tool.UsageGoal
	boundary := PeriodStart(*tool.UsageGoalPeriod, now)

	used := lo.CountBy(tool.UsageHistory, func(e UsageEntry) bool {
		return e.Timestamp.After(boundary)
	})

	pct := int(math.Round(float64(used) / float64(goal) * 100))
	return GoalProgress{
		UsageInPeriod:   used,
		ProgressPercent: min(100, pct),
		IsComplete:      used >= goal,
	}, true
}

// SummarizeGoals aggregates goal completion over tools that have a goal.
// Tools without goals are left out of both counts.
func SummarizeGoals(tools []Tool, now time.Time) GoalSummary {
	withGoals := lo.Filter(tools, func(t Tool, _ int) bool { return t.HasGoal() })
	completed := lo.CountBy(withGoals, func(t Tool) bool {
		p, _ := EvaluateGoal(t, now)
		return p.IsComplete
	})

	s := GoalSummary{WithGoals: len(withGoals), Completed: completed}
	if s.WithGoals > 0 {
		s.CompletionRate = int(math.Round(float64(completed) / float64(s.WithGoals) * 100))
	}
	return s
}
