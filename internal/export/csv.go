package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sadopc/stackvault/internal/store"
	"github.com/sadopc/stackvault/internal/vault"
)

var toolHeader = []string{
	"ID", "Name", "Category", "Vendor", "Price", "Purchase Date", "Times Used", "Last Used",
	"Cost Per Use", "Status", "Days Owned", "Avg Uses/Month", "Current Streak", "Longest Streak",
	"Goal", "Goal Progress (%)", "Refund Days Left", "Archived",
}

// ToolsCSV writes one row per tool with its derived ROI, streak, goal and
// refund columns as of now.
func ToolsCSV(w io.Writer, tools []vault.Tool, now time.Time) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(toolHeader); err != nil {
		return err
	}

	for _, t := range tools {
		roi := vault.CalculateROI(t, now)
		streak := vault.CalculateStreak(t.UsageHistory, t.LastUsed, now)

		costPerUse := ""
		if roi.CostPerUse != nil {
			costPerUse = strconv.FormatFloat(*roi.CostPerUse, 'f', 2, 64)
		}
		lastUsed := ""
		if t.LastUsed != nil {
			lastUsed = t.LastUsed.Local().Format(time.RFC3339)
		}
		goal, progress := "", ""
		if gp, ok := vault.EvaluateGoal(t, now); ok {
			goal = fmt.Sprintf("%d/%s", *t.UsageGoal, *t.UsageGoalPeriod)
			progress = strconv.Itoa(gp.ProgressPercent)
		}
		refund := ""
		if rw := vault.RefundStatus(t, now); rw.Open {
			refund = strconv.Itoa(rw.DaysLeft)
		}

		row := []string{
			t.ID,
			t.Name,
			t.Category,
			t.Vendor,
			strconv.FormatFloat(t.Price, 'f', 2, 64),
			t.PurchaseDate.Local().Format("2006-01-02"),
			strconv.Itoa(t.TimesUsed),
			lastUsed,
			costPerUse,
			roi.StatusLabel,
			strconv.Itoa(roi.DaysOwned),
			strconv.FormatFloat(roi.AvgUsesPerMonth, 'f', 1, 64),
			strconv.Itoa(streak.CurrentStreak),
			strconv.Itoa(streak.LongestStreak),
			goal,
			progress,
			refund,
			strconv.FormatBool(t.Archived),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// UsageCSV writes the usage ledger, one row per entry.
func UsageCSV(w io.Writer, records []store.UsageRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"ID", "Tool", "Tool ID", "Timestamp", "Source", "Duration (s)", "Duration"}); err != nil {
		return err
	}

	for _, r := range records {
		secs, dur := "", ""
		if r.Duration != nil {
			secs = strconv.FormatInt(*r.Duration, 10)
			dur = FormatDuration(*r.Duration)
		}
		row := []string{
			r.ID,
			r.ToolName,
			r.ToolID,
			r.Timestamp.Local().Format(time.RFC3339),
			string(r.Source),
			secs,
			dur,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// FormatDuration renders seconds as HH:MM:SS.
func FormatDuration(secs int64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
