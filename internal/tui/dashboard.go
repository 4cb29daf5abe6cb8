package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/storage"
	"github.com/sadopc/stackvault/internal/store"
	"github.com/sadopc/stackvault/internal/timers"
	"github.com/sadopc/stackvault/internal/vault"
)

const streakLeaders = 3

type dashboardModel struct {
	store  *store.Store
	prefs  *storage.Prefs
	timer  timerModel
	clock  clock.Clock
	logger zerolog.Logger
	width  int
	height int

	tools     []vault.Tool
	today     []store.UsageRecord
	recent    []store.UsageRecord
	mode      storage.InterfaceMode
	promptDue bool

	// Picker state: start picks among idle tools, stop among open timers.
	picking      bool
	pickStop     bool
	pickerCursor int

	formActive  bool
	form        *huh.Form
	promptPicks *[]string
}

func newDashboardModel(s *store.Store, prefs *storage.Prefs, tm timerModel, clk clock.Clock, logger zerolog.Logger) dashboardModel {
	picks := []string{}
	return dashboardModel{
		store:       s,
		prefs:       prefs,
		timer:       tm,
		clock:       clk,
		logger:      logger,
		mode:        storage.ModeSimple,
		promptPicks: &picks,
	}
}

func (d dashboardModel) Init() tea.Cmd {
	return d.loadData()
}

func (d *dashboardModel) setSize(w, h int) {
	d.width = w
	d.height = h
}

type dashboardDataMsg struct {
	tools     []vault.Tool
	today     []store.UsageRecord
	recent    []store.UsageRecord
	mode      storage.InterfaceMode
	promptDue bool
}

func (d dashboardModel) loadData() tea.Cmd {
	return func() tea.Msg {
		d.timer.sync()
		ctx := context.Background()
		now := d.clock.Now()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

		tools, err := d.store.ListTools(false)
		if err != nil {
			d.logger.Error().Err(err).Msg("Failed to load tools")
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		today, _ := d.store.ListUsage(store.UsageFilter{From: &dayStart})
		recent, _ := d.store.ListUsage(store.UsageFilter{NewestFirst: true, Limit: 5})
		due := d.prefs.ShouldPromptToday(ctx, now)

		return dashboardDataMsg{
			tools:     tools,
			today:     today,
			recent:    recent,
			mode:      d.prefs.InterfaceMode(ctx),
			promptDue: due && len(tools) > 0,
		}
	}
}

func (d dashboardModel) update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if msg, ok := msg.(dashboardDataMsg); ok {
		d.tools = msg.tools
		d.today = msg.today
		d.recent = msg.recent
		d.mode = msg.mode
		d.promptDue = msg.promptDue
		return d, nil
	}
	if d.formActive && d.form != nil {
		return d.updateForm(msg)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if d.picking {
			return d.updatePicker(msg)
		}

		switch {
		case key.Matches(msg, keys.Start):
			idle := d.idleTools()
			if len(d.tools) == 0 {
				return d, func() tea.Msg {
					return statusMsg{text: "No tools yet. Press 2 to go to Tools and add one.", isError: true}
				}
			}
			if len(idle) == 0 {
				return d, infoStatus("Every tool already has a timer running")
			}
			if len(idle) == 1 {
				return d.startTimer(idle[0])
			}
			d.picking = true
			d.pickStop = false
			d.pickerCursor = 0
			return d, nil

		case key.Matches(msg, keys.Stop):
			open := d.timer.active()
			switch len(open) {
			case 0:
				return d, nil
			case 1:
				return d.stopTimer(open[0].ToolID, open[0].ToolName)
			}
			d.picking = true
			d.pickStop = true
			d.pickerCursor = 0
			return d, nil

		case key.Matches(msg, keys.LogUse):
			if len(d.tools) == 0 {
				return d, nil
			}
			return d.showPromptForm()
		}
	}
	return d, nil
}

func (d dashboardModel) idleTools() []vault.Tool {
	return lo.Filter(d.tools, func(t vault.Tool, _ int) bool { return !d.timer.running(t.ID) })
}

func (d dashboardModel) pickerItems() []timers.ActiveTimer {
	if d.pickStop {
		return d.timer.active()
	}
	return lo.Map(d.idleTools(), func(t vault.Tool, _ int) timers.ActiveTimer {
		return timers.ActiveTimer{ToolID: t.ID, ToolName: t.Name}
	})
}

func (d dashboardModel) updatePicker(msg tea.KeyMsg) (dashboardModel, tea.Cmd) {
	items := d.pickerItems()
	switch {
	case key.Matches(msg, keys.Up):
		if d.pickerCursor > 0 {
			d.pickerCursor--
		}
	case key.Matches(msg, keys.Down):
		if d.pickerCursor < len(items)-1 {
			d.pickerCursor++
		}
	case key.Matches(msg, keys.Enter):
		d.picking = false
		if d.pickerCursor >= len(items) {
			return d, nil
		}
		it := items[d.pickerCursor]
		if d.pickStop {
			return d.stopTimer(it.ToolID, it.ToolName)
		}
		tool, ok := lo.Find(d.tools, func(t vault.Tool) bool { return t.ID == it.ToolID })
		if !ok {
			return d, nil
		}
		return d.startTimer(tool)
	case key.Matches(msg, keys.Back):
		d.picking = false
	}
	return d, nil
}

func (d dashboardModel) startTimer(tool vault.Tool) (dashboardModel, tea.Cmd) {
	d.timer.start(tool)
	return d, func() tea.Msg { return timerStartedMsg{toolName: tool.Name} }
}

func (d dashboardModel) stopTimer(toolID, toolName string) (dashboardModel, tea.Cmd) {
	secs, err := d.timer.stop(toolID)
	if err != nil {
		return d, errStatus("Error recording session: %v", err)
	}
	return d, tea.Batch(
		d.loadData(),
		func() tea.Msg { return timerStoppedMsg{toolName: toolName, seconds: secs} },
	)
}

func (d dashboardModel) showPromptForm() (dashboardModel, tea.Cmd) {
	usedToday := lo.Associate(d.today, func(r store.UsageRecord) (string, bool) { return r.ToolID, true })
	*d.promptPicks = []string{}

	options := lo.Map(d.tools, func(t vault.Tool, _ int) huh.Option[string] {
		label := t.Name
		if usedToday[t.ID] {
			label += " (logged)"
		}
		return huh.NewOption(label, t.ID)
	})

	d.form = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Which tools did you use today?").
				Options(options...).
				Value(d.promptPicks),
		),
	).WithShowHelp(true).WithShowErrors(true)

	d.formActive = true
	return d, d.form.Init()
}

func (d dashboardModel) updateForm(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			d.formActive = false
			d.form = nil
			return d, d.markPrompted()
		}
	}

	form, cmd := d.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		d.form = f
	}

	if d.form.State == huh.StateCompleted {
		d.formActive = false
		return d, tea.Sequence(d.logPromptAnswers(*d.promptPicks), d.loadData())
	}

	return d, cmd
}

// logPromptAnswers records one daily-prompt entry per picked tool and
// marks today as prompted.
func (d dashboardModel) logPromptAnswers(toolIDs []string) tea.Cmd {
	return func() tea.Msg {
		now := d.clock.Now()
		for _, id := range toolIDs {
			if _, err := d.store.AppendUsage(id, vault.UsageEntry{Timestamp: now, Source: vault.SourceDailyPrompt}); err != nil {
				d.logger.Error().Err(err).Str("tool_id", id).Msg("Failed to log daily prompt usage")
				return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
			}
		}
		if err := d.prefs.MarkPrompted(context.Background(), now); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to mark daily prompt")
		}
		return statusMsg{text: fmt.Sprintf("Logged %d tool(s) for today", len(toolIDs))}
	}
}

func (d dashboardModel) markPrompted() tea.Cmd {
	return func() tea.Msg {
		if err := d.prefs.MarkPrompted(context.Background(), d.clock.Now()); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to mark daily prompt")
		}
		return prefsChangedMsg{}
	}
}

func (d dashboardModel) view() string {
	if d.width < 20 {
		return "Terminal too small"
	}

	contentWidth := d.width - 4

	if d.formActive && d.form != nil {
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Daily check-in"), "", d.form.View())
		return activePanelStyle.Width(contentWidth).Render(content)
	}

	panels := []string{d.renderTimerPanel(contentWidth)}
	if d.promptDue {
		panels = append(panels, d.renderPromptBanner(contentWidth))
	}
	panels = append(panels, d.renderTodayPanel(contentWidth))

	if d.picking {
		panels = append(panels, d.renderPicker(contentWidth))
	} else {
		panels = append(panels, d.renderStreakPanel(contentWidth))
		if d.mode == storage.ModePower {
			panels = append(panels, d.renderRecentPanel(contentWidth))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, panels...)
}

func (d dashboardModel) renderTimerPanel(w int) string {
	open := d.timer.active()
	if len(open) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			timerStyle.Render("00:00:00")+"  "+mutedStyle.Render("■  no timers running"),
			mutedStyle.Render("Press s to start a usage timer"),
		)
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{successStyle.Render(fmt.Sprintf("●  %d RUNNING", len(open)))}
	for _, at := range open {
		rows = append(rows, fmt.Sprintf("  %s %s  %s  %s",
			toolDot(at.ToolID),
			timerRunningStyle.Render(formatSeconds(d.timer.elapsed(at.ToolID))),
			highlightStyle.Render(truncate(at.ToolName, 24)),
			mutedStyle.Render("since "+at.Started().Local().Format("15:04")),
		))
	}
	return activePanelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (d dashboardModel) renderPromptBanner(w int) string {
	return panelStyle.Width(w).Render(
		accentStyle.Render("✎  Daily check-in: ") + "which tools did you use today? " + mutedStyle.Render("Press u to answer."),
	)
}

func (d dashboardModel) renderTodayPanel(w int) string {
	var total int64
	type row struct {
		id, name string
		uses     int
		secs     int64
	}
	byTool := map[string]*row{}
	var order []string
	for _, r := range d.today {
		if r.Duration != nil {
			total += *r.Duration
		}
		tr, ok := byTool[r.ToolID]
		if !ok {
			tr = &row{id: r.ToolID, name: r.ToolName}
			byTool[r.ToolID] = tr
			order = append(order, r.ToolID)
		}
		tr.uses++
		if r.Duration != nil {
			tr.secs += *r.Duration
		}
	}

	title := titleStyle.Render("Today")
	header := fmt.Sprintf("%s  %s  %s", title,
		highlightStyle.Render(fmt.Sprintf("%d uses", len(d.today))),
		mutedStyle.Render(formatSeconds(total)+" timed"))

	if len(d.today) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			header,
			mutedStyle.Render("Nothing logged today"),
		))
	}

	rows := []string{header}
	for _, id := range order {
		tr := byTool[id]
		rows = append(rows, fmt.Sprintf("  %s %-20s %s  (%d uses)",
			toolDot(tr.id), truncate(tr.name, 20), formatSeconds(tr.secs), tr.uses))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

type streakRow struct {
	tool   vault.Tool
	streak vault.StreakInfo
}

func (d dashboardModel) leaders() []streakRow {
	now := d.clock.Now()
	rows := lo.FilterMap(d.tools, func(t vault.Tool, _ int) (streakRow, bool) {
		s := vault.CalculateStreak(t.UsageHistory, t.LastUsed, now)
		return streakRow{tool: t, streak: s}, s.CurrentStreak > 0
	})
	slices.SortStableFunc(rows, func(a, b streakRow) int {
		return b.streak.CurrentStreak - a.streak.CurrentStreak
	})
	if len(rows) > streakLeaders {
		rows = rows[:streakLeaders]
	}
	return rows
}

func (d dashboardModel) renderStreakPanel(w int) string {
	title := titleStyle.Render("Streaks")
	leaders := d.leaders()
	if len(leaders) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			title,
			mutedStyle.Render("No active streaks. Use a tool two days running to start one."),
		))
	}

	rows := []string{title}
	for _, r := range leaders {
		marker := "  "
		if !r.streak.IsActiveToday {
			marker = warningStyle.Render("! ")
		}
		rows = append(rows, fmt.Sprintf("  %s%s %-20s %s  %s",
			marker,
			toolDot(r.tool.ID),
			truncate(r.tool.Name, 20),
			streakStyle.Render(fmt.Sprintf("🔥 %d day(s)", r.streak.CurrentStreak)),
			mutedStyle.Render(fmt.Sprintf("best %d", r.streak.LongestStreak)),
		))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (d dashboardModel) renderRecentPanel(w int) string {
	title := titleStyle.Render("Recent Activity")
	if len(d.recent) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			title,
			mutedStyle.Render("No usage yet"),
		))
	}

	rows := []string{title}
	for _, r := range d.recent {
		dur := mutedStyle.Render(string(r.Source))
		if r.Duration != nil {
			dur = formatSeconds(*r.Duration)
		}
		rows = append(rows, fmt.Sprintf("  ✓ %s  %-16s %s",
			r.Timestamp.Local().Format("Jan 02 15:04"), truncate(r.ToolName, 16), dur))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (d dashboardModel) renderPicker(w int) string {
	title := titleStyle.Render("Start timer for")
	if d.pickStop {
		title = titleStyle.Render("Stop timer for")
	}

	rows := []string{title}
	for i, it := range d.pickerItems() {
		cursor := "  "
		style := normalItemStyle
		if i == d.pickerCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%s %s", cursor, toolDot(it.ToolID), it.ToolName)))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: select  esc: cancel"))

	return activePanelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
