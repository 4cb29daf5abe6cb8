package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sadopc/stackvault/internal/vault"
)

func newStatsCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show spend, usage, streaks and refund windows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			tools, err := e.store.ListTools(true)
			if err != nil {
				return err
			}
			now := e.clock.Now()
			weekAgo := now.AddDate(0, 0, -7)
			usesThisWeek, err := e.store.CountUsageSince(weekAgo)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printSpend(w, tools)
			fmt.Fprintln(w)

			active := lo.Reject(tools, func(t vault.Tool, _ int) bool { return t.Archived })
			printHeader(w, "Usage")
			fmt.Fprintf(w, "Tools:           %d active, %d archived\n", len(active), len(tools)-len(active))
			fmt.Fprintf(w, "Uses (7 days):   %d\n", usesThisWeek)
			fmt.Fprintf(w, "Running timers:  %d\n", len(e.registry.ListActive()))
			summary := vault.SummarizeGoals(active, now)
			fmt.Fprintf(w, "Goals met:       %d/%d (%d%%)\n", summary.Completed, summary.WithGoals, summary.CompletionRate)
			fmt.Fprintln(w)

			printStreaks(w, active, now)
			printRefunds(w, active, now)
			return nil
		},
	}
}

func printSpend(w io.Writer, tools []vault.Tool) {
	printHeader(w, "Spend")
	fmt.Fprintf(w, "Total:           %s\n", money(vault.TotalSpend(tools)))

	byCat := vault.SpendByCategory(tools)
	cats := lo.Keys(byCat)
	slices.SortFunc(cats, func(a, b string) int {
		// Largest first, then by name.
		if c := byCat[b].Cmp(byCat[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	total := vault.TotalSpend(tools)
	for _, c := range cats {
		share := decimal.Zero
		if total.IsPositive() {
			share = byCat[c].Div(total).Mul(decimal.NewFromInt(100))
		}
		fmt.Fprintf(w, "  %-16s %10s %5s%%\n", truncate(c, 16), money(byCat[c]), share.StringFixed(0))
	}
}

func printStreaks(w io.Writer, tools []vault.Tool, now time.Time) {
	type row struct {
		name   string
		streak vault.StreakInfo
	}
	rows := lo.FilterMap(tools, func(t vault.Tool, _ int) (row, bool) {
		s := vault.CalculateStreak(t.UsageHistory, t.LastUsed, now)
		return row{name: t.Name, streak: s}, s.CurrentStreak > 0 || s.LongestStreak > 1
	})
	if len(rows) == 0 {
		return
	}
	slices.SortStableFunc(rows, func(a, b row) int {
		if a.streak.CurrentStreak != b.streak.CurrentStreak {
			return b.streak.CurrentStreak - a.streak.CurrentStreak
		}
		return b.streak.LongestStreak - a.streak.LongestStreak
	})

	printHeader(w, "Streaks")
	for _, r := range rows {
		mark := " "
		if r.streak.IsActiveToday {
			mark = green.Sprint("✓")
		}
		fmt.Fprintf(w, "%s %-24s current %3dd  longest %3dd\n", mark, truncate(r.name, 24), r.streak.CurrentStreak, r.streak.LongestStreak)
	}
	fmt.Fprintln(w)
}

func printRefunds(w io.Writer, tools []vault.Tool, now time.Time) {
	type row struct {
		tool vault.Tool
		rw   vault.RefundWindow
	}
	open := lo.FilterMap(tools, func(t vault.Tool, _ int) (row, bool) {
		rw := vault.RefundStatus(t, now)
		return row{tool: t, rw: rw}, rw.Open
	})
	if len(open) == 0 {
		return
	}
	slices.SortStableFunc(open, func(a, b row) int { return a.rw.DaysLeft - b.rw.DaysLeft })

	printHeader(w, "Refund windows")
	for _, r := range open {
		c := green
		switch {
		case r.rw.DaysLeft <= 7:
			c = red
		case r.rw.DaysLeft <= 14:
			c = yellow
		}
		fmt.Fprintf(w, "%-24s ", truncate(r.tool.Name, 24))
		c.Fprintf(w, "%3d days left", r.rw.DaysLeft)
		fmt.Fprintf(w, "  (until %s)", r.rw.Deadline.Format("Jan 02"))
		if r.tool.TimesUsed == 0 {
			yellow.Fprint(w, "  unused")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

func newGoalsCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "goals",
		Short: "Show progress toward usage goals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			tools, err := e.store.ListTools(false)
			if err != nil {
				return err
			}
			now := e.clock.Now()
			w := cmd.OutOrStdout()

			withGoals := lo.Filter(tools, func(t vault.Tool, _ int) bool { return t.HasGoal() })
			if len(withGoals) == 0 {
				fmt.Fprintln(w, "No usage goals set. Set one with: stackvault goal TOOL 3 weekly")
				return nil
			}

			summary := vault.SummarizeGoals(withGoals, now)
			printHeader(w, fmt.Sprintf("Goals %d/%d complete (%d%%)", summary.Completed, summary.WithGoals, summary.CompletionRate))
			for _, t := range withGoals {
				p, _ := vault.EvaluateGoal(t, now)
				c := yellow
				if p.IsComplete {
					c = green
				}
				fmt.Fprintf(w, "%-24s %s ", truncate(t.Name, 24), bar(p.ProgressPercent, 20))
				c.Fprintf(w, "%d/%d", p.UsageInPeriod, *t.UsageGoal)
				fmt.Fprintf(w, " %s (%d%%)\n", *t.UsageGoalPeriod, p.ProgressPercent)
			}
			return nil
		},
	}
}

func bar(pct, width int) string {
	filled := min(width, max(0, pct*width/100))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
