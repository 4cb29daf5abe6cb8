package tui

import (
	"fmt"
	"hash/fnv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/sadopc/stackvault/internal/vault"
)

// viewState represents the currently active view.
type viewState int

const (
	viewDashboard viewState = iota
	viewTools
	viewInsights
	viewReports
	viewSettings
)

var viewNames = []string{"Dashboard", "Tools", "Insights", "Reports", "Settings"}

// --- Messages ---

type timerStartedMsg struct {
	toolName string
}

type timerStoppedMsg struct {
	toolName string
	seconds  int64
}

// dataChangedMsg reports a write that should refresh the visible view.
type dataChangedMsg struct {
	status string
}

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

type prefsChangedMsg struct{}

// --- Helpers ---

var toolPalette = []string{"#6C63FF", "#2EC4B6", "#FF6B6B", "#F39C12", "#2ECC71", "#E74C3C", "#9B59B6", "#3498DB"}

// toolColor picks a stable palette color for a tool ID.
func toolColor(id string) lipgloss.Color {
	h := fnv.New32a()
	h.Write([]byte(id))
	return lipgloss.Color(toolPalette[h.Sum32()%uint32(len(toolPalette))])
}

func toolDot(id string) string {
	return lipgloss.NewStyle().Foreground(toolColor(id)).Render("●")
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatSeconds(secs int64) string {
	return formatDuration(time.Duration(secs) * time.Second)
}

func formatHours(secs int64) string {
	h := float64(secs) / 3600
	return fmt.Sprintf("%.1fh", h)
}

func formatMoney(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

func formatCostPerUse(roi vault.ROIMetrics) string {
	if roi.CostPerUse == nil {
		return "—"
	}
	return formatMoney(*roi.CostPerUse)
}

func errStatus(format string, err error) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: fmt.Sprintf(format, err), isError: true}
	}
}

func infoStatus(text string) tea.Cmd {
	return func() tea.Msg { return statusMsg{text: text} }
}

// truncate cuts s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
