package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/sadopc/stackvault/internal/vault"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold)
	green  = color.New(color.FgGreen, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	faint  = color.New(color.Faint)
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func printHeader(w io.Writer, title string) {
	cyan.Fprintln(w, rule)
	cyan.Fprintln(w, strings.ToUpper(title))
	cyan.Fprintln(w, rule)
}

func roiColor(s vault.ROIStatus) *color.Color {
	switch s {
	case vault.ROIExcellent, vault.ROIGood:
		return green
	case vault.ROIFair:
		return yellow
	default:
		return red
	}
}

func formatSeconds(secs int64) string {
	d := time.Duration(secs) * time.Second
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func costPerUse(m vault.ROIMetrics) string {
	if m.CostPerUse == nil {
		return "-"
	}
	return money(decimal.NewFromFloat(*m.CostPerUse))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
