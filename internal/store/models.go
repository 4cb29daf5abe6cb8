package store

import (
	"time"

	"github.com/sadopc/stackvault/internal/vault"
)

type Setting struct {
	Key   string
	Value string
}

// ToolInput carries the user-editable fields of a tool.
type ToolInput struct {
	Name             string
	Category         string
	Vendor           string
	Price            float64
	PurchaseDate     time.Time
	RefundWindowDays int
	UsageGoal        *int
	UsageGoalPeriod  *vault.GoalPeriod
}

// UsageFilter is used to filter usage entries in queries.
type UsageFilter struct {
	ToolID string
	Source vault.UsageSource
	From   *time.Time
	To     *time.Time
	Limit  int

	NewestFirst bool
}

// UsageRecord is a ledger entry together with the tool it belongs to.
type UsageRecord struct {
	vault.UsageEntry
	ToolID   string `json:"toolId"`
	ToolName string `json:"toolName"`
}

// DailySummary represents aggregated usage per tool per day.
type DailySummary struct {
	Date         string
	ToolID       string
	ToolName     string
	Uses         int
	TotalSeconds int64
}
