package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sadopc/stackvault/internal/store"
	"github.com/sadopc/stackvault/internal/vault"
)

const dateLayout = "2006-01-02"

func newToolsCmd(r *runner) *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:     "tools",
		Aliases: []string{"ls"},
		Short:   "List tools with usage and ROI",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			tools, err := e.store.ListTools(archived)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(tools) == 0 {
				fmt.Fprintln(w, "No tools yet. Add one with: stackvault add NAME --price 49")
				return nil
			}

			now := e.clock.Now()
			fmt.Fprintf(w, "%-24s %-14s %10s %5s %9s %-12s %7s\n",
				"NAME", "CATEGORY", "PRICE", "USES", "COST/USE", "ROI", "STREAK")
			for _, t := range tools {
				roi := vault.CalculateROI(t, now)
				streak := vault.CalculateStreak(t.UsageHistory, t.LastUsed, now)
				name := truncate(t.Name, 24)
				if t.Archived {
					name = truncate(t.Name+" (archived)", 24)
				}
				fmt.Fprintf(w, "%-24s %-14s %10s %5d %9s ",
					name, truncate(t.Category, 14), money(decimal.NewFromFloat(t.Price)), t.TimesUsed, costPerUse(roi))
				roiColor(roi.Status).Fprintf(w, "%-12s", roi.StatusLabel)
				fmt.Fprintf(w, " %6dd\n", streak.CurrentStreak)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&archived, "archived", "a", false, "Include archived tools")
	return cmd
}

func newAddCmd(r *runner) *cobra.Command {
	var (
		category, vendor, price, purchased, period string
		refundDays, goal                           int
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a tool",
		Example: `  stackvault add Figma --category design --price 144
  stackvault add "Notion AI" --price 96 --purchased 2025-01-02 --refund-days 30 --goal 3 --period weekly`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := store.ToolInput{
				Name:             args[0],
				Category:         category,
				Vendor:           vendor,
				RefundWindowDays: refundDays,
			}

			p, err := parsePrice(price)
			if err != nil {
				return err
			}
			in.Price = p

			if purchased != "" {
				d, err := time.ParseInLocation(dateLayout, purchased, time.Local)
				if err != nil {
					return fmt.Errorf("invalid purchase date %q: use YYYY-MM-DD", purchased)
				}
				in.PurchaseDate = d
			}

			in.UsageGoal, in.UsageGoalPeriod, err = goalArgs(goal, period)
			if err != nil {
				return err
			}

			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			t, err := e.store.CreateTool(in)
			if err != nil {
				return err
			}
			e.logger.Info().Str("tool_id", t.ID).Str("name", t.Name).Msg("Tool added")
			green.Fprintf(cmd.OutOrStdout(), "Added %s", t.Name)
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)\n", t.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&category, "category", "other", "Category")
	f.StringVar(&vendor, "vendor", "", "Vendor")
	f.StringVar(&price, "price", "0", "Purchase price")
	f.StringVar(&purchased, "purchased", "", "Purchase date (YYYY-MM-DD), defaults to today")
	f.IntVar(&refundDays, "refund-days", 0, "Refund window in days")
	f.IntVar(&goal, "goal", 0, "Usage goal per period")
	f.StringVar(&period, "period", "", "Goal period (weekly or monthly)")
	return cmd
}

func newArchiveCmd(r *runner) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "archive TOOL",
		Short: "Archive a tool (or restore it with --undo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			t, err := e.store.FindTool(args[0])
			if err != nil {
				return err
			}
			if undo {
				if err := e.store.UnarchiveTool(t.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", t.Name)
				return nil
			}
			if err := e.store.ArchiveTool(t.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %s\n", t.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Restore an archived tool")
	return cmd
}

func newGoalCmd(r *runner) *cobra.Command {
	var clearGoal bool
	cmd := &cobra.Command{
		Use:     "goal TOOL [COUNT PERIOD]",
		Short:   "Set or clear a tool's usage goal",
		Example: "  stackvault goal Figma 3 weekly\n  stackvault goal Figma --clear",
		Args:    cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var goal *int
			var period *vault.GoalPeriod
			if !clearGoal {
				if len(args) != 3 {
					return errors.New("expected TOOL COUNT PERIOD, or TOOL --clear")
				}
				var n int
				if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil {
					return fmt.Errorf("invalid goal count %q", args[1])
				}
				var err error
				if goal, period, err = goalArgs(n, args[2]); err != nil {
					return err
				}
				if goal == nil {
					return errors.New("goal count must be positive")
				}
			}

			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			t, err := e.store.FindTool(args[0])
			if err != nil {
				return err
			}
			if err := e.store.SetUsageGoal(t.ID, goal, period); err != nil {
				return err
			}
			if goal == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared goal for %s\n", t.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Goal for %s: %d uses %s\n", t.Name, *goal, *period)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearGoal, "clear", false, "Remove the goal")
	return cmd
}

func newUseCmd(r *runner) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "use TOOL",
		Short: "Log a use of a tool",
		Example: `  stackvault use Figma
  stackvault use Figma --duration 45m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration < 0 {
				return errors.New("duration must not be negative")
			}

			e, err := r.open(false)
			if err != nil {
				return err
			}
			defer e.close()

			t, err := e.store.FindTool(args[0])
			if err != nil {
				return err
			}

			entry := vault.UsageEntry{Timestamp: e.clock.Now(), Source: vault.SourceManual}
			if duration > 0 {
				secs := int64(duration / time.Second)
				entry.Duration = &secs
			}
			if _, err := e.store.AppendUsage(t.ID, entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged use of %s (%d total)\n", t.Name, t.TimesUsed+1)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "How long the tool was used")
	return cmd
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	if d.IsNegative() {
		return 0, errors.New("price must not be negative")
	}
	return d.Round(2).InexactFloat64(), nil
}

// goalArgs turns a count and period into the store's optional pair. A
// zero count means no goal.
func goalArgs(n int, period string) (*int, *vault.GoalPeriod, error) {
	if n == 0 && period == "" {
		return nil, nil, nil
	}
	if n <= 0 {
		return nil, nil, errors.New("goal count must be positive")
	}
	p := vault.GoalPeriod(strings.ToLower(period))
	if !p.Valid() {
		return nil, nil, fmt.Errorf("goal period must be weekly or monthly, got %q", period)
	}
	return &n, &p, nil
}
