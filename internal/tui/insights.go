package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/storage"
	"github.com/sadopc/stackvault/internal/store"
	"github.com/sadopc/stackvault/internal/vault"
)

// insightsModel summarizes spend, goal completion, ROI and refund windows.
type insightsModel struct {
	store  *store.Store
	prefs  *storage.Prefs
	clock  clock.Clock
	logger zerolog.Logger
	width  int
	height int

	tools []vault.Tool // archived included; they still count toward spend
	mode  storage.InterfaceMode
}

func newInsightsModel(s *store.Store, prefs *storage.Prefs, clk clock.Clock, logger zerolog.Logger) insightsModel {
	return insightsModel{
		store:  s,
		prefs:  prefs,
		clock:  clk,
		logger: logger,
		mode:   storage.ModeSimple,
	}
}

func (m *insightsModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

type insightsDataMsg struct {
	tools []vault.Tool
	mode  storage.InterfaceMode
}

func (m insightsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		tools, err := m.store.ListTools(true)
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to list tools for insights")
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return insightsDataMsg{tools: tools, mode: m.prefs.InterfaceMode(context.Background())}
	}
}

func (m insightsModel) update(msg tea.Msg) (insightsModel, tea.Cmd) {
	if msg, ok := msg.(insightsDataMsg); ok {
		m.tools = msg.tools
		m.mode = msg.mode
	}
	return m, nil
}

func (m insightsModel) active() []vault.Tool {
	return lo.Reject(m.tools, func(t vault.Tool, _ int) bool { return t.Archived })
}

func (m insightsModel) view() string {
	w := m.width - 4
	if len(m.tools) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Insights"),
			"",
			mutedStyle.Render("Add tools to see spend, ROI and goal insights."),
		))
	}

	half := max(30, w/2-1)
	top := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderSpend(half),
		m.renderGoals(w-half),
	)
	panels := []string{top, m.renderROI(w)}
	if refunds := m.renderRefunds(w); refunds != "" {
		panels = append(panels, refunds)
	}
	return lipgloss.JoinVertical(lipgloss.Left, panels...)
}

func (m insightsModel) renderSpend(w int) string {
	total := vault.TotalSpend(m.tools)
	byCat := vault.SpendByCategory(m.tools)

	cats := lo.Keys(byCat)
	slices.SortFunc(cats, func(a, b string) int {
		if c := byCat[b].Cmp(byCat[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	rows := []string{
		titleStyle.Render("Spend"),
		fmt.Sprintf("%s across %d tools", highlightStyle.Render("$"+total.StringFixed(2)), len(m.tools)),
		"",
	}
	for _, c := range cats {
		share := 0
		if total.IsPositive() {
			share = int(byCat[c].Div(total).Mul(decimal.NewFromInt(100)).Round(0).IntPart())
		}
		rows = append(rows, fmt.Sprintf("  %-14s %10s  %s",
			truncate(c, 14), "$"+byCat[c].StringFixed(2), mutedStyle.Render(fmt.Sprintf("%3d%%", share))))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (m insightsModel) renderGoals(w int) string {
	now := m.clock.Now()
	active := m.active()
	summary := vault.SummarizeGoals(active, now)

	rows := []string{titleStyle.Render("Goals")}
	if summary.WithGoals == 0 {
		rows = append(rows, mutedStyle.Render("No usage goals set. Press g on a tool to add one."))
		return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
	}

	rows = append(rows,
		fmt.Sprintf("%d of %d complete  %s", summary.Completed, summary.WithGoals,
			progressBar(summary.CompletionRate, 10)+fmt.Sprintf(" %d%%", summary.CompletionRate)),
		"",
	)
	for _, t := range active {
		gp, ok := vault.EvaluateGoal(t, now)
		if !ok {
			continue
		}
		mark := " "
		if gp.IsComplete {
			mark = successStyle.Render("✓")
		}
		rows = append(rows, fmt.Sprintf("  %s %-16s %s %d/%d %s",
			mark, truncate(t.Name, 16), progressBar(gp.ProgressPercent, 8),
			gp.UsageInPeriod, *t.UsageGoal, mutedStyle.Render(string(*t.UsageGoalPeriod))))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

type roiRow struct {
	tool vault.Tool
	roi  vault.ROIMetrics
}

// rankROI orders tools best value first; never-used tools sink to the end.
func rankROI(tools []vault.Tool, now time.Time) []roiRow {
	rows := lo.Map(tools, func(t vault.Tool, _ int) roiRow {
		return roiRow{tool: t, roi: vault.CalculateROI(t, now)}
	})
	slices.SortStableFunc(rows, func(a, b roiRow) int {
		switch {
		case a.roi.CostPerUse == nil && b.roi.CostPerUse == nil:
			return 0
		case a.roi.CostPerUse == nil:
			return 1
		case b.roi.CostPerUse == nil:
			return -1
		case *a.roi.CostPerUse < *b.roi.CostPerUse:
			return -1
		case *a.roi.CostPerUse > *b.roi.CostPerUse:
			return 1
		}
		return 0
	})
	return rows
}

func (m insightsModel) renderROI(w int) string {
	ranked := rankROI(m.active(), m.clock.Now())

	counts := lo.CountValuesBy(ranked, func(r roiRow) vault.ROIStatus { return r.roi.Status })
	header := fmt.Sprintf("%s  %s %d  %s %d  %s %d  %s %d",
		titleStyle.Render("Return on investment"),
		roiStyle(vault.ROIExcellent).Render("excellent"), counts[vault.ROIExcellent],
		roiStyle(vault.ROIGood).Render("good"), counts[vault.ROIGood],
		roiStyle(vault.ROIFair).Render("fair"), counts[vault.ROIFair],
		roiStyle(vault.ROIPoor).Render("poor"), counts[vault.ROIPoor],
	)

	rows := []string{header, ""}
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-22s %9s %5s %10s %8s %9s  %s",
		"Tool", "Price", "Uses", "Cost/use", "Owned", "Uses/mo", "Status")))

	shown := ranked
	if m.mode != storage.ModePower && len(shown) > 6 {
		// Simple mode: best three and worst three.
		shown = append(slices.Clone(ranked[:3]), ranked[len(ranked)-3:]...)
	}
	for _, r := range shown {
		rows = append(rows, fmt.Sprintf("  %-22s %9s %5d %10s %7dd %9.1f  %s",
			truncate(r.tool.Name, 22), formatMoney(r.tool.Price), r.tool.TimesUsed,
			formatCostPerUse(r.roi), r.roi.DaysOwned, r.roi.AvgUsesPerMonth,
			roiStyle(r.roi.Status).Render(r.roi.StatusEmoji+" "+r.roi.StatusLabel)))
	}
	if len(shown) < len(ranked) {
		rows = append(rows, mutedStyle.Render(fmt.Sprintf("  … %d more (switch to power mode in Settings to see all)", len(ranked)-len(shown))))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (m insightsModel) renderRefunds(w int) string {
	now := m.clock.Now()
	type refundRow struct {
		tool vault.Tool
		rw   vault.RefundWindow
	}
	open := lo.FilterMap(m.active(), func(t vault.Tool, _ int) (refundRow, bool) {
		rw := vault.RefundStatus(t, now)
		return refundRow{tool: t, rw: rw}, rw.Open
	})
	if len(open) == 0 {
		return ""
	}
	slices.SortStableFunc(open, func(a, b refundRow) int { return a.rw.DaysLeft - b.rw.DaysLeft })

	rows := []string{titleStyle.Render("Refund windows"), ""}
	for _, r := range open {
		hint := ""
		if r.tool.TimesUsed == 0 {
			hint = accentStyle.Render("  unused, consider a refund")
		}
		rows = append(rows, fmt.Sprintf("  %-22s %s  %s%s",
			truncate(r.tool.Name, 22),
			refundStyle(r.rw.DaysLeft).Render(fmt.Sprintf("%3d days left", r.rw.DaysLeft)),
			mutedStyle.Render("until "+r.rw.Deadline.Format("Jan 02")),
			hint))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
