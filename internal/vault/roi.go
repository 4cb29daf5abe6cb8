package vault

import (
	"math"
	"time"
)

// CalculateROI derives cost-per-use, ownership age and an ROI bucket.
// It is pure: the same tool and now always give the same result.
//
// A purchase date after now yields a negative DaysOwned; this is passed
// through unchanged.
func CalculateROI(tool Tool, now time.Time) ROIMetrics {
	days := int(now.Sub(tool.PurchaseDate).Hours() / 24)

	m := ROIMetrics{DaysOwned: days}

	if tool.TimesUsed > 0 {
		cpu := round(tool.Price/float64(tool.TimesUsed), 2)
		m.CostPerUse = &cpu
	}
	if days > 0 {
		m.AvgUsesPerMonth = round(float64(tool.TimesUsed)/float64(days)*30, 1)
	}

	m.Status, m.StatusEmoji, m.StatusLabel = classifyROI(m.CostPerUse)
	return m
}

func classifyROI(costPerUse *float64) (ROIStatus, string, string) {
	switch {
	case costPerUse == nil:
		return ROIPoor, "💤", "Never Used"
	case *costPerUse < 1:
		return ROIExcellent, "🔥", "Excellent"
	case *costPerUse <= 5:
		return ROIGood, "✅", "Good"
	case *costPerUse <= 10:
		return ROIFair, "⚠️", "Fair"
	default:
		return ROIPoor, "❌", "Poor"
	}
}

// round rounds half away from zero at the given number of decimals.
func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
