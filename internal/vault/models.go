package vault

import "time"

// UsageSource records how a usage entry was captured.
type UsageSource string

const (
	SourceManual      UsageSource = "manual"
	SourceTimer       UsageSource = "timer"
	SourceExtension   UsageSource = "extension"
	SourceDailyPrompt UsageSource = "daily-prompt"
)

// Valid reports whether s is one of the known sources.
func (s UsageSource) Valid() bool {
	switch s {
	case SourceManual, SourceTimer, SourceExtension, SourceDailyPrompt:
		return true
	}
	return false
}

// GoalPeriod is the window a usage goal is measured over.
type GoalPeriod string

const (
	PeriodWeekly  GoalPeriod = "weekly"
	PeriodMonthly GoalPeriod = "monthly"
)

// Valid reports whether p is weekly or monthly.
func (p GoalPeriod) Valid() bool {
	return p == PeriodWeekly || p == PeriodMonthly
}

// UsageEntry is one append-only record in a tool's usage ledger.
type UsageEntry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Duration  *int64      `json:"duration,omitempty"` // seconds
	Source    UsageSource `json:"source"`
}

// Tool is a purchased product or subscription in the vault.
//
// TimesUsed and LastUsed are denormalized from UsageHistory. Tools created
// before history tracking may carry only those two fields.
type Tool struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Category         string       `json:"category"`
	Vendor           string       `json:"vendor,omitempty"`
	Price            float64      `json:"price"`
	PurchaseDate     time.Time    `json:"purchaseDate"`
	RefundWindowDays int          `json:"refundWindowDays,omitempty"`
	LastUsed         *time.Time   `json:"lastUsed,omitempty"`
	TimesUsed        int          `json:"timesUsed"`
	UsageHistory     []UsageEntry `json:"usageHistory,omitempty"`
	UsageGoal        *int         `json:"usageGoal,omitempty"`
	UsageGoalPeriod  *GoalPeriod  `json:"usageGoalPeriod,omitempty"`
	Archived         bool         `json:"archived,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// HasGoal reports whether both a positive goal and a period are set.
func (t Tool) HasGoal() bool {
	return t.UsageGoal != nil && *t.UsageGoal > 0 && t.UsageGoalPeriod != nil
}

// StreakInfo is derived from the usage ledger on every read.
type StreakInfo struct {
	CurrentStreak int        `json:"currentStreak"`
	LongestStreak int        `json:"longestStreak"`
	LastUsedDate  *time.Time `json:"lastUsedDate"`
	IsActiveToday bool       `json:"isActiveToday"`
}

// ROIStatus is the categorical return-on-investment bucket.
type ROIStatus string

const (
	ROIExcellent ROIStatus = "excellent"
	ROIGood      ROIStatus = "good"
	ROIFair      ROIStatus = "fair"
	ROIPoor      ROIStatus = "poor"
)

// ROIMetrics is derived from price, usage count and purchase date.
type ROIMetrics struct {
	CostPerUse      *float64  `json:"costPerUse"`
	DaysOwned       int       `json:"daysOwned"`
	AvgUsesPerMonth float64   `json:"avgUsesPerMonth"`
	Status          ROIStatus `json:"status"`
	StatusEmoji     string    `json:"statusEmoji"`
	StatusLabel     string    `json:"statusLabel"`
}

// GoalProgress is a tool's progress toward its periodic usage goal.
type GoalProgress struct {
	UsageInPeriod   int  `json:"usageInPeriod"`
	ProgressPercent int  `json:"progressPercent"`
	IsComplete      bool `json:"isComplete"`
}

// GoalSummary aggregates goal completion across tools that have goals.
type GoalSummary struct {
	WithGoals      int `json:"withGoals"`
	Completed      int `json:"completed"`
	CompletionRate int `json:"completionRate"`
}
