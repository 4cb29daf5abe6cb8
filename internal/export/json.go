package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sadopc/stackvault/internal/store"
	"github.com/sadopc/stackvault/internal/vault"
)

type jsonExport struct {
	ExportedAt string          `json:"exportedAt"`
	Count      int             `json:"count"`
	TotalSpend decimal.Decimal `json:"totalSpend"`
	Tools      []jsonTool      `json:"tools"`
}

type jsonTool struct {
	vault.Tool
	ROI    vault.ROIMetrics    `json:"roi"`
	Streak vault.StreakInfo    `json:"streak"`
	Goal   *vault.GoalProgress `json:"goal,omitempty"`
	Refund *vault.RefundWindow `json:"refund,omitempty"`
}

type jsonUsageExport struct {
	ExportedAt string              `json:"exportedAt"`
	Count      int                 `json:"count"`
	Entries    []store.UsageRecord `json:"entries"`
}

// ToolsJSON writes tools with nested usage history and derived metrics.
func ToolsJSON(w io.Writer, tools []vault.Tool, now time.Time) error {
	export := jsonExport{
		ExportedAt: now.UTC().Format(time.RFC3339),
		Count:      len(tools),
		TotalSpend: vault.TotalSpend(tools),
		Tools:      make([]jsonTool, 0, len(tools)),
	}

	for _, t := range tools {
		jt := jsonTool{
			Tool:   t,
			ROI:    vault.CalculateROI(t, now),
			Streak: vault.CalculateStreak(t.UsageHistory, t.LastUsed, now),
		}
		if gp, ok := vault.EvaluateGoal(t, now); ok {
			jt.Goal = &gp
		}
		if t.RefundWindowDays > 0 {
			rw := vault.RefundStatus(t, now)
			jt.Refund = &rw
		}
		export.Tools = append(export.Tools, jt)
	}

	return writeJSON(w, export)
}

// UsageJSON writes the usage ledger.
func UsageJSON(w io.Writer, records []store.UsageRecord, now time.Time) error {
	if records == nil {
		records = []store.UsageRecord{}
	}
	return writeJSON(w, jsonUsageExport{
		ExportedAt: now.UTC().Format(time.RFC3339),
		Count:      len(records),
		Entries:    records,
	})
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ToFile creates path and runs write against it. A path of "-" writes to
// stdout.
func ToFile(path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	return nil
}
