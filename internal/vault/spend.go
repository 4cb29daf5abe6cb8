package vault

import (
	"time"

	"github.com/shopspring/decimal"
)

// TotalSpend sums purchase prices. Archived tools are included.
func TotalSpend(tools []Tool) decimal.Decimal {
	total := decimal.Zero
	for _, t := range tools {
		total = total.Add(decimal.NewFromFloat(t.Price))
	}
	return total.Round(2)
}

// SpendByCategory groups purchase prices by category. Tools with an
// empty category are grouped under "uncategorized".
func SpendByCategory(tools []Tool) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, t := range tools {
		cat := t.Category
		if cat == "" {
			cat = "uncategorized"
		}
		out[cat] = out[cat].Add(decimal.NewFromFloat(t.Price))
	}
	return out
}

// RefundWindow describes where a tool stands in its refund period.
type RefundWindow struct {
	Open     bool      `json:"open"`
	DaysLeft int       `json:"daysLeft"`
	Deadline time.Time `json:"deadline"`
}

// RefundStatus reports whether the tool can still be refunded. The
// window closes RefundWindowDays calendar days after purchase; a tool
// without a window is always closed.
func RefundStatus(tool Tool, now time.Time) RefundWindow {
	if tool.RefundWindowDays <= 0 {
		return RefundWindow{}
	}
	loc := now.Location()
	deadline := startOfDay(tool.PurchaseDate, loc).AddDate(0, 0, tool.RefundWindowDays)
	left := int(dayNumber(deadline, loc) - dayNumber(now, loc))
	return RefundWindow{
		Open:     left > 0,
		DaysLeft: max(0, left),
		Deadline: deadline,
	}
}
