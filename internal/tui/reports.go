package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/store"
)

type reportMode int

const (
	reportDaily reportMode = iota
	reportWeekly
)

type reportMetric int

const (
	metricUses reportMetric = iota
	metricHours
)

type reportsModel struct {
	store  *store.Store
	clock  clock.Clock
	logger zerolog.Logger
	width  int
	height int

	mode      reportMode
	metric    reportMetric
	summaries []store.DailySummary
	offset    int // weeks or 7-day blocks offset from today (0 = current)

	chart barchart.Model
}

func newReportsModel(s *store.Store, clk clock.Clock, logger zerolog.Logger) reportsModel {
	return reportsModel{
		store:  s,
		clock:  clk,
		logger: logger,
		chart:  barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type reportsDataMsg struct {
	summaries []store.DailySummary
}

func (r reportsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		from, to := r.dateRange()
		summaries, err := r.store.GetDailyUsage(from, to)
		if err != nil {
			r.logger.Error().Err(err).Msg("Failed to load daily usage")
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return reportsDataMsg{summaries: summaries}
	}
}

// dateRange returns the UTC day range on display; the ledger groups by
// UTC day.
func (r reportsModel) dateRange() (time.Time, time.Time) {
	now := r.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch r.mode {
	case reportWeekly:
		weekday := today.Weekday()
		if weekday == time.Sunday {
			weekday = 7
		}
		startOfWeek := today.AddDate(0, 0, -int(weekday-time.Monday))
		startOfWeek = startOfWeek.AddDate(0, 0, -7*r.offset)
		return startOfWeek, startOfWeek.AddDate(0, 0, 7)
	default:
		// Daily: last 7 days
		end := today.AddDate(0, 0, 1-7*r.offset)
		start := end.AddDate(0, 0, -7)
		return start, end
	}
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		r.summaries = msg.summaries
		r.buildChart()
		return r, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			r.offset++
			return r, r.refresh()
		case key.Matches(msg, keys.Right):
			if r.offset > 0 {
				r.offset--
			}
			return r, r.refresh()
		case key.Matches(msg, keys.Enter):
			if r.mode == reportDaily {
				r.mode = reportWeekly
			} else {
				r.mode = reportDaily
			}
			r.offset = 0
			return r, r.refresh()
		case key.Matches(msg, keys.Up), key.Matches(msg, keys.Down):
			if r.metric == metricUses {
				r.metric = metricHours
			} else {
				r.metric = metricUses
			}
			r.buildChart()
			return r, nil
		}
	}
	return r, nil
}

func (r reportsModel) value(s store.DailySummary) float64 {
	if r.metric == metricHours {
		return float64(s.TotalSeconds) / 3600.0
	}
	return float64(s.Uses)
}

func (r *reportsModel) buildChart() {
	chartWidth := r.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 12
	if r.height > 30 {
		chartHeight = 16
	}

	r.chart = barchart.New(chartWidth, chartHeight)

	from, to := r.dateRange()

	var bars []barchart.BarData
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		dateStr := d.Format("2006-01-02")
		label := d.Format("Mon 02")

		var values []barchart.BarValue
		for _, s := range r.summaries {
			if s.Date == dateStr {
				values = append(values, barchart.BarValue{
					Name:  s.ToolName,
					Value: r.value(s),
					Style: lipgloss.NewStyle().Foreground(toolColor(s.ToolID)),
				})
			}
		}

		if len(values) == 0 {
			values = []barchart.BarValue{{Name: "", Value: 0, Style: lipgloss.NewStyle().Foreground(colorSubtle)}}
		}

		bars = append(bars, barchart.BarData{
			Label:  label,
			Values: values,
		})
	}

	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	dailyTab := inactiveTabStyle.Render("Daily")
	weeklyTab := inactiveTabStyle.Render("Weekly")
	if r.mode == reportDaily {
		dailyTab = activeTabStyle.Render("Daily")
	} else {
		weeklyTab = activeTabStyle.Render("Weekly")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, dailyTab, weeklyTab)

	metric := "uses"
	if r.metric == metricHours {
		metric = "hours timed"
	}

	from, to := r.dateRange()
	dateLabel := mutedStyle.Render(fmt.Sprintf("%s — %s  (%s)", from.Format("Jan 02"), to.Add(-24*time.Hour).Format("Jan 02, 2006"), metric))

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ", modeTabs, "  ", dateLabel,
	)

	nav := mutedStyle.Render("  ←/→: navigate  enter: daily/weekly  ↑/↓: uses/hours")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", r.chart.View(), "", r.renderLegend(), "", r.renderSummaryTable(w), "", nav,
		),
	)
}

func (r reportsModel) renderSummaryTable(w int) string {
	if len(r.summaries) == 0 {
		return mutedStyle.Render("  No usage for this period")
	}

	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-12s %-20s %6s %10s", "Date", "Tool", "Uses", "Timed")))
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 52))))

	for _, s := range r.summaries {
		rows = append(rows, fmt.Sprintf("  %-12s %s %-18s %6d %10s",
			s.Date, toolDot(s.ToolID), truncate(s.ToolName, 18), s.Uses, formatHours(s.TotalSeconds),
		))
	}

	return strings.Join(rows, "\n")
}

func (r reportsModel) renderLegend() string {
	seen := make(map[string]bool)
	var items []string
	for _, s := range r.summaries {
		if seen[s.ToolID] {
			continue
		}
		seen[s.ToolID] = true
		items = append(items, fmt.Sprintf("%s %s", toolDot(s.ToolID), s.ToolName))
	}
	if len(items) == 0 {
		return ""
	}
	return "  " + strings.Join(items, "  ")
}
