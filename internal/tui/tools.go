package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/storage"
	"github.com/sadopc/stackvault/internal/store"
	"github.com/sadopc/stackvault/internal/vault"
)

var toolCategories = []string{"productivity", "design", "development", "marketing", "writing", "ai", "finance", "other"}

const dateLayout = "2006-01-02"

type toolsModel struct {
	store  *store.Store
	prefs  *storage.Prefs
	timer  timerModel
	clock  clock.Clock
	logger zerolog.Logger
	width  int
	height int

	tools         []vault.Tool
	mode          storage.InterfaceMode
	cursor        int
	usageCursor   int
	showArchived  bool
	viewingDetail bool

	formActive bool
	form       *huh.Form
	formType   string // "tool", "edit_tool", "goal"

	// Form field pointers (survive value copies)
	formName     *string
	formCategory *string
	formVendor   *string
	formPrice    *string
	formPurchase *string
	formRefund   *string
	formGoal     *string
	formPeriod   *string

	editingID string
}

func newToolsModel(s *store.Store, prefs *storage.Prefs, tm timerModel, clk clock.Clock, logger zerolog.Logger) toolsModel {
	name, cat, vendor, price, purchase, refund, goal, period := "", "", "", "", "", "", "", string(vault.PeriodWeekly)
	return toolsModel{
		store:        s,
		prefs:        prefs,
		timer:        tm,
		clock:        clk,
		logger:       logger,
		mode:         storage.ModeSimple,
		formName:     &name,
		formCategory: &cat,
		formVendor:   &vendor,
		formPrice:    &price,
		formPurchase: &purchase,
		formRefund:   &refund,
		formGoal:     &goal,
		formPeriod:   &period,
	}
}

func (m *toolsModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

type toolsDataMsg struct {
	tools []vault.Tool
	mode  storage.InterfaceMode
}

func (m toolsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		tools, err := m.store.ListTools(m.showArchived)
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to list tools")
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return toolsDataMsg{tools: tools, mode: m.prefs.InterfaceMode(context.Background())}
	}
}

func (m toolsModel) selected() (vault.Tool, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tools) {
		return vault.Tool{}, false
	}
	return m.tools[m.cursor], true
}

// history returns the selected tool's ledger, newest first.
func (m toolsModel) history() []vault.UsageEntry {
	t, ok := m.selected()
	if !ok {
		return nil
	}
	out := make([]vault.UsageEntry, len(t.UsageHistory))
	for i, e := range t.UsageHistory {
		out[len(out)-1-i] = e
	}
	return out
}

func (m toolsModel) update(msg tea.Msg) (toolsModel, tea.Cmd) {
	if msg, ok := msg.(toolsDataMsg); ok {
		m.tools = msg.tools
		m.mode = msg.mode
		if m.cursor >= len(m.tools) {
			m.cursor = max(0, len(m.tools)-1)
		}
		if n := len(m.history()); m.usageCursor >= n {
			m.usageCursor = max(0, n-1)
		}
		if len(m.tools) == 0 {
			m.viewingDetail = false
		}
		return m, nil
	}
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.viewingDetail {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m toolsModel) updateList(msg tea.KeyMsg) (toolsModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.tools)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Enter):
		if len(m.tools) > 0 {
			m.viewingDetail = true
			m.usageCursor = 0
		}
	case key.Matches(msg, keys.New):
		return m.showToolForm(nil)
	case key.Matches(msg, keys.Edit):
		if t, ok := m.selected(); ok {
			return m.showToolForm(&t)
		}
	case key.Matches(msg, keys.Goal):
		if t, ok := m.selected(); ok {
			return m.showGoalForm(t)
		}
	case key.Matches(msg, keys.LogUse):
		if t, ok := m.selected(); ok {
			return m, m.logUse(t)
		}
	case key.Matches(msg, keys.Start):
		if t, ok := m.selected(); ok && !t.Archived {
			m.timer.start(t)
			return m, func() tea.Msg { return timerStartedMsg{toolName: t.Name} }
		}
	case key.Matches(msg, keys.Stop):
		if t, ok := m.selected(); ok && m.timer.running(t.ID) {
			return m, m.stopTimer(t)
		}
	case key.Matches(msg, keys.Delete):
		if t, ok := m.selected(); ok {
			return m, m.toggleArchive(t)
		}
	case key.Matches(msg, keys.Archived):
		m.showArchived = !m.showArchived
		return m, m.refresh()
	}
	return m, nil
}

func (m toolsModel) updateDetail(msg tea.KeyMsg) (toolsModel, tea.Cmd) {
	hist := m.history()
	switch {
	case key.Matches(msg, keys.Back):
		m.viewingDetail = false
	case key.Matches(msg, keys.Up):
		if m.usageCursor > 0 {
			m.usageCursor--
		}
	case key.Matches(msg, keys.Down):
		if m.usageCursor < len(hist)-1 {
			m.usageCursor++
		}
	case key.Matches(msg, keys.LogUse):
		if t, ok := m.selected(); ok {
			return m, m.logUse(t)
		}
	}
	return m, nil
}

func (m toolsModel) logUse(t vault.Tool) tea.Cmd {
	return func() tea.Msg {
		_, err := m.store.AppendUsage(t.ID, vault.UsageEntry{Timestamp: m.clock.Now(), Source: vault.SourceManual})
		if err != nil {
			m.logger.Error().Err(err).Str("tool_id", t.ID).Msg("Failed to log usage")
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return dataChangedMsg{status: "Logged use of " + t.Name}
	}
}

func (m toolsModel) stopTimer(t vault.Tool) tea.Cmd {
	secs, err := m.timer.stop(t.ID)
	if err != nil {
		return errStatus("Error recording session: %v", err)
	}
	return tea.Batch(
		m.refresh(),
		func() tea.Msg { return timerStoppedMsg{toolName: t.Name, seconds: secs} },
	)
}

func (m toolsModel) toggleArchive(t vault.Tool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if t.Archived {
			err = m.store.UnarchiveTool(t.ID)
		} else {
			err = m.store.ArchiveTool(t.ID)
		}
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		if t.Archived {
			return dataChangedMsg{status: "Restored " + t.Name}
		}
		return dataChangedMsg{status: "Archived " + t.Name}
	}
}

func (m toolsModel) showToolForm(t *vault.Tool) (toolsModel, tea.Cmd) {
	now := m.clock.Now()
	if t == nil {
		*m.formName = ""
		*m.formCategory = toolCategories[0]
		*m.formVendor = ""
		*m.formPrice = ""
		*m.formPurchase = now.Format(dateLayout)
		*m.formRefund = "60"
		m.formType = "tool"
		m.editingID = ""
	} else {
		*m.formName = t.Name
		*m.formCategory = t.Category
		*m.formVendor = t.Vendor
		*m.formPrice = decimal.NewFromFloat(t.Price).StringFixed(2)
		*m.formPurchase = t.PurchaseDate.Local().Format(dateLayout)
		*m.formRefund = strconv.Itoa(t.RefundWindowDays)
		m.formType = "edit_tool"
		m.editingID = t.ID
	}

	catOptions := make([]huh.Option[string], len(toolCategories))
	for i, c := range toolCategories {
		catOptions[i] = huh.NewOption(c, c)
	}
	if t != nil && t.Category != "" && !slices.Contains(toolCategories, t.Category) {
		catOptions = append(catOptions, huh.NewOption(t.Category, t.Category))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Tool Name").Value(m.formName).Validate(requireText),
			huh.NewSelect[string]().Title("Category").Options(catOptions...).Value(m.formCategory),
			huh.NewInput().Title("Vendor / marketplace").Value(m.formVendor),
		),
		huh.NewGroup(
			huh.NewInput().Title("Price").Value(m.formPrice).Validate(func(s string) error {
				_, err := parsePrice(s)
				return err
			}),
			huh.NewInput().Title("Purchase date (YYYY-MM-DD)").Value(m.formPurchase).Validate(func(s string) error {
				_, err := parseDate(s)
				return err
			}),
			huh.NewInput().Title("Refund window (days)").Value(m.formRefund).Validate(func(s string) error {
				_, err := parseCount(s, true)
				return err
			}),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m toolsModel) showGoalForm(t vault.Tool) (toolsModel, tea.Cmd) {
	*m.formGoal = ""
	*m.formPeriod = string(vault.PeriodWeekly)
	if t.HasGoal() {
		*m.formGoal = strconv.Itoa(*t.UsageGoal)
		*m.formPeriod = string(*t.UsageGoalPeriod)
	}
	m.formType = "goal"
	m.editingID = t.ID

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Uses per period (empty to clear)").Value(m.formGoal).Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return nil
				}
				n, err := parseCount(s, false)
				if err == nil && n == 0 {
					err = errors.New("goal must be at least 1")
				}
				return err
			}),
			huh.NewSelect[string]().Title("Period").
				Options(
					huh.NewOption("Weekly (from Monday)", string(vault.PeriodWeekly)),
					huh.NewOption("Monthly (from the 1st)", string(vault.PeriodMonthly)),
				).Value(m.formPeriod),
		).Title(t.Name),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m toolsModel) updateForm(msg tea.Msg) (toolsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			m.formActive = false
			m.form = nil
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.formActive = false
		return m, m.saveForm()
	}

	return m, cmd
}

func (m toolsModel) saveForm() tea.Cmd {
	formType, id := m.formType, m.editingID
	switch formType {
	case "goal":
		goal, period := m.goalValues()
		return func() tea.Msg {
			if err := m.store.SetUsageGoal(id, goal, period); err != nil {
				return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
			}
			return dataChangedMsg{status: "Goal saved"}
		}
	default:
		in, err := m.toolInput()
		if err != nil {
			return errStatus("Error: %v", err)
		}
		return func() tea.Msg {
			if formType == "edit_tool" {
				existing, err := m.store.GetTool(id)
				if err != nil {
					return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
				}
				in.UsageGoal, in.UsageGoalPeriod = existing.UsageGoal, existing.UsageGoalPeriod
				if err := m.store.UpdateTool(id, in); err != nil {
					return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
				}
				return dataChangedMsg{status: "Saved " + in.Name}
			}
			if _, err := m.store.CreateTool(in); err != nil {
				return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
			}
			return dataChangedMsg{status: "Added " + in.Name}
		}
	}
}

func (m toolsModel) toolInput() (store.ToolInput, error) {
	price, err := parsePrice(*m.formPrice)
	if err != nil {
		return store.ToolInput{}, err
	}
	purchase, err := parseDate(*m.formPurchase)
	if err != nil {
		return store.ToolInput{}, err
	}
	refund, err := parseCount(*m.formRefund, true)
	if err != nil {
		return store.ToolInput{}, err
	}
	return store.ToolInput{
		Name:             strings.TrimSpace(*m.formName),
		Category:         *m.formCategory,
		Vendor:           strings.TrimSpace(*m.formVendor),
		Price:            price,
		PurchaseDate:     purchase,
		RefundWindowDays: refund,
	}, nil
}

func (m toolsModel) goalValues() (*int, *vault.GoalPeriod) {
	if strings.TrimSpace(*m.formGoal) == "" {
		return nil, nil
	}
	n, err := parseCount(*m.formGoal, false)
	if err != nil || n == 0 {
		return nil, nil
	}
	p := vault.GoalPeriod(*m.formPeriod)
	return &n, &p
}

func (m toolsModel) view() string {
	w := m.width - 4
	if m.formActive && m.form != nil {
		title := titleStyle.Render("New Tool")
		switch m.formType {
		case "edit_tool":
			title = titleStyle.Render("Edit Tool")
		case "goal":
			title = titleStyle.Render("Usage Goal")
		}
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", m.form.View())
		return panelStyle.Width(w).Render(content)
	}

	if m.viewingDetail {
		return m.renderDetail(w)
	}
	return m.renderList(w)
}

func (m toolsModel) renderList(w int) string {
	title := titleStyle.Render("Tools")
	if m.showArchived {
		title += mutedStyle.Render("  (including archived)")
	}

	if len(m.tools) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No tools yet. Press n to add one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	now := m.clock.Now()
	power := m.mode == storage.ModePower

	var rows []string
	rows = append(rows, title, "")

	header := fmt.Sprintf("  %-3s %-22s %-13s %9s %5s %10s %-11s %6s", "", "Name", "Category", "Price", "Uses", "Cost/use", "ROI", "Streak")
	if power {
		header += fmt.Sprintf("  %-16s %-8s", "Goal", "Refund")
	}
	rows = append(rows, mutedStyle.Render(header))

	for i, t := range m.tools {
		roi := vault.CalculateROI(t, now)
		streak := vault.CalculateStreak(t.UsageHistory, t.LastUsed, now)

		cursor := "  "
		style := normalItemStyle
		if t.Archived {
			style = archivedItemStyle
		}
		if i == m.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		running := " "
		if m.timer.running(t.ID) {
			running = successStyle.Render("●")
		}

		line := style.Render(fmt.Sprintf("%s%s", cursor, running)) + toolDot(t.ID) + " " +
			style.Render(fmt.Sprintf("%-22s %-13s %9s %5d %10s",
				truncate(t.Name, 22), truncate(t.Category, 13), formatMoney(t.Price), t.TimesUsed, formatCostPerUse(roi))) +
			" " + roiStyle(roi.Status).Render(fmt.Sprintf("%-11s", roi.StatusEmoji+" "+roi.StatusLabel)) +
			" " + streakStyle.Render(fmt.Sprintf("%6s", streakLabel(streak)))

		if power {
			goal := mutedStyle.Render(fmt.Sprintf("%-16s", "—"))
			if gp, ok := vault.EvaluateGoal(t, now); ok {
				goal = progressBar(gp.ProgressPercent, 8) + fmt.Sprintf(" %d/%-5d", gp.UsageInPeriod, *t.UsageGoal)
			}
			refund := mutedStyle.Render("closed")
			if rw := vault.RefundStatus(t, now); rw.Open {
				refund = refundStyle(rw.DaysLeft).Render(fmt.Sprintf("%dd left", rw.DaysLeft))
			}
			line += "  " + goal + " " + refund
		}
		rows = append(rows, line)
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new  m: edit  g: goal  u: log use  s/x: timer  d: archive  a: archived  enter: history"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (m toolsModel) renderDetail(w int) string {
	t, ok := m.selected()
	if !ok {
		return panelStyle.Width(w).Render(mutedStyle.Render("No tool selected"))
	}
	now := m.clock.Now()
	roi := vault.CalculateROI(t, now)
	streak := vault.CalculateStreak(t.UsageHistory, t.LastUsed, now)

	title := titleStyle.Render(fmt.Sprintf("%s %s — Usage", toolDot(t.ID), t.Name))
	summary := fmt.Sprintf("  %s  %d uses  %s per use  owned %d days  %.1f uses/month  streak %d (best %d)",
		roiStyle(roi.Status).Render(roi.StatusEmoji+" "+roi.StatusLabel),
		t.TimesUsed, formatCostPerUse(roi), roi.DaysOwned, roi.AvgUsesPerMonth,
		streak.CurrentStreak, streak.LongestStreak)

	rows := []string{title, summary, ""}
	if m.timer.running(t.ID) {
		rows = append(rows, successStyle.Render("  ● timer running "+formatSeconds(m.timer.elapsed(t.ID))), "")
	}

	hist := m.history()
	if len(hist) == 0 {
		rows = append(rows, mutedStyle.Render("  No usage logged. Press u to log one."))
	} else {
		limit := max(5, m.height-14)
		start := 0
		if m.usageCursor >= limit {
			start = m.usageCursor - limit + 1
		}
		end := min(len(hist), start+limit)
		for i := start; i < end; i++ {
			e := hist[i]
			cursor := "  "
			style := normalItemStyle
			if i == m.usageCursor {
				cursor = "> "
				style = selectedItemStyle
			}
			dur := ""
			if e.Duration != nil {
				dur = formatSeconds(*e.Duration)
			}
			rows = append(rows, style.Render(fmt.Sprintf("%s%s  %-13s %s",
				cursor, e.Timestamp.Local().Format("Mon Jan 02 15:04"), e.Source, dur)))
		}
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  u: log use  esc: back"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func streakLabel(s vault.StreakInfo) string {
	if s.CurrentStreak == 0 {
		return "—"
	}
	return fmt.Sprintf("%dd", s.CurrentStreak)
}

func refundStyle(daysLeft int) lipgloss.Style {
	if daysLeft <= 7 {
		return errorStyle
	}
	if daysLeft <= 14 {
		return warningStyle
	}
	return successStyle
}

// --- Form parsing ---

func requireText(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	if d.IsNegative() {
		return 0, errors.New("price must not be negative")
	}
	return d.Round(2).InexactFloat64(), nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("use YYYY-MM-DD")
	}
	return t, nil
}

// parseCount parses a non-negative integer; empty is zero when allowEmpty.
func parseCount(s string, allowEmpty bool) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" && allowEmpty {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("enter a whole number")
	}
	return n, nil
}
