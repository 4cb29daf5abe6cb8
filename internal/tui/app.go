package tui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/export"
	"github.com/sadopc/stackvault/internal/storage"
	"github.com/sadopc/stackvault/internal/store"
	"github.com/sadopc/stackvault/internal/timers"
)

var exportFormats = []string{"Tools CSV", "Tools JSON", "Usage CSV"}

// App is the root Bubble Tea model.
type App struct {
	store  *store.Store
	timer  timerModel
	clock  clock.Clock
	logger zerolog.Logger
	width  int
	height int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	dashboard dashboardModel
	tools     toolsModel
	insights  insightsModel
	reports   reportsModel
	settings  settingsModel

	help     help.Model
	status   string
	statusOK bool
}

// NewApp builds the dashboard over s. reg must already be rehydrated;
// the caller owns closing it.
func NewApp(s *store.Store, reg *timers.Registry, prefs *storage.Prefs, clk clock.Clock, logger zerolog.Logger) App {
	h := help.New()
	h.ShowAll = false

	logger = logger.With().Str("component", "tui").Logger()
	tm := newTimerModel(reg, s, clk, logger)

	return App{
		store:      s,
		timer:      tm,
		clock:      clk,
		logger:     logger,
		activeView: viewDashboard,
		dashboard:  newDashboardModel(s, prefs, tm, clk, logger),
		tools:      newToolsModel(s, prefs, tm, clk, logger),
		insights:   newInsightsModel(s, prefs, clk, logger),
		reports:    newReportsModel(s, clk, logger),
		settings:   newSettingsModel(s, prefs, logger),
		help:       h,
		statusOK:   true,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.dashboard.Init(),
		a.timer.waitForTick(),
	)
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.dashboard.setSize(a.width, contentHeight)
		a.tools.setSize(a.width, contentHeight)
		a.insights.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Tab1):
			return a.switchView(viewDashboard)
		case key.Matches(msg, keys.Tab2):
			return a.switchView(viewTools)
		case key.Matches(msg, keys.Tab3):
			return a.switchView(viewInsights)
		case key.Matches(msg, keys.Tab4):
			return a.switchView(viewReports)
		case key.Matches(msg, keys.Tab5):
			return a.switchView(viewSettings)
		case key.Matches(msg, keys.Tab):
			return a.switchView((a.activeView + 1) % viewState(len(viewNames)))
		}

	case tickMsg:
		// Elapsed values live in the registry; re-arm and let View redraw.
		return a, a.timer.waitForTick()

	// Data messages go to their owner whichever view is showing.
	case dashboardDataMsg:
		a.dashboard, _ = a.dashboard.update(msg)
		return a, nil
	case toolsDataMsg:
		a.tools, _ = a.tools.update(msg)
		return a, nil
	case insightsDataMsg:
		a.insights, _ = a.insights.update(msg)
		return a, nil
	case reportsDataMsg:
		a.reports, _ = a.reports.update(msg)
		return a, nil
	case settingsDataMsg:
		a.settings, _ = a.settings.update(msg)
		return a, nil

	case statusMsg:
		a.setStatus(msg.text, !msg.isError)
		return a, nil

	case dataChangedMsg:
		a.setStatus(msg.status, true)
		return a, a.refreshAfterWrite()

	case prefsChangedMsg:
		cmds = append(cmds, a.dashboard.loadData(), a.tools.refresh(), a.insights.refresh())
		return a, tea.Batch(cmds...)

	case timerStoppedMsg:
		if msg.seconds > 0 {
			a.setStatus(fmt.Sprintf("Stopped %s after %s", msg.toolName, formatSeconds(msg.seconds)), true)
		} else {
			a.setStatus("Stopped "+msg.toolName+" (nothing logged)", true)
		}
		return a, a.refreshAfterWrite()

	case timerStartedMsg:
		a.setStatus("Timer started for "+msg.toolName, true)
		return a, a.dashboard.loadData()

	case exportDoneMsg:
		a.setStatus("Exported to "+msg.path, true)
		a.exportPicking = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a *App) setStatus(text string, ok bool) {
	a.status = text
	a.statusOK = ok
	if !ok {
		a.logger.Warn().Msg(text)
	}
}

func (a App) switchView(v viewState) (tea.Model, tea.Cmd) {
	a.activeView = v
	return a, a.refreshCurrentView()
}

// refreshAfterWrite reloads the visible view and the dashboard, which
// always reflects today's ledger.
func (a App) refreshAfterWrite() tea.Cmd {
	if a.activeView == viewDashboard {
		return a.dashboard.loadData()
	}
	return tea.Batch(a.refreshCurrentView(), a.dashboard.loadData())
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewDashboard:
		a.dashboard, cmd = a.dashboard.update(msg)
	case viewTools:
		a.tools, cmd = a.tools.update(msg)
	case viewInsights:
		a.insights, cmd = a.insights.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewDashboard:
		return a.dashboard.formActive || a.dashboard.picking
	case viewTools:
		return a.tools.formActive
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewDashboard:
		return a.dashboard.loadData()
	case viewTools:
		return a.tools.refresh()
	case viewInsights:
		return a.insights.refresh()
	case viewReports:
		return a.reports.refresh()
	case viewSettings:
		return a.settings.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewDashboard:
		content = a.dashboard.view()
	case viewTools:
		content = a.tools.view()
	case viewInsights:
		content = a.insights.view()
	case viewReports:
		content = a.reports.view()
	case viewSettings:
		content = a.settings.view()
	}

	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := a.height - headerHeight - footerHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(label))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("stackvault")
	gap := a.width - lipgloss.Width(title) - lipgloss.Width(tabRow) - 4
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		if a.statusOK {
			status = mutedStyle.Render(" " + a.status)
		} else {
			status = errorStyle.Render(" " + a.status)
		}
	}

	// Oldest open timer, plus a count when several run.
	timerInfo := ""
	if active := a.timer.active(); len(active) > 0 {
		oldest := active[0]
		timerInfo = successStyle.Render(fmt.Sprintf(" ● %s %s",
			truncate(oldest.ToolName, 16), formatSeconds(a.timer.elapsed(oldest.ToolID))))
		if len(active) > 1 {
			timerInfo += mutedStyle.Render(fmt.Sprintf(" +%d", len(active)-1))
		}
	}

	left := footerStyle.Render(helpView)
	right := timerInfo + status

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker() string {
	var rows []string
	rows = append(rows, titleStyle.Render("Export"), "")
	for i, f := range exportFormats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "", mutedStyle.Render("  enter: export  esc: cancel"))

	w := a.width - 4
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(exportFormats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		home, err := os.UserHomeDir()
		if err != nil {
			return a, errStatus("Export error: %v", err)
		}
		return a, a.doExport(a.exportCursor, home)
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

// doExport writes the chosen export into dir, named by today's date.
func (a App) doExport(format int, dir string) tea.Cmd {
	return func() tea.Msg {
		now := a.clock.Now()
		base := filepath.Join(dir, "stackvault-export-"+now.Format(dateLayout))

		var path string
		var write func(io.Writer) error
		switch format {
		case 0, 1:
			tools, err := a.store.ListTools(true)
			if err != nil {
				return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
			}
			if format == 0 {
				path = base + ".csv"
				write = func(w io.Writer) error { return export.ToolsCSV(w, tools, now) }
			} else {
				path = base + ".json"
				write = func(w io.Writer) error { return export.ToolsJSON(w, tools, now) }
			}
		default:
			records, err := a.store.ListUsage(store.UsageFilter{})
			if err != nil {
				return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
			}
			path = base + "-usage.csv"
			write = func(w io.Writer) error { return export.UsageCSV(w, records) }
		}

		if err := export.ToFile(path, write); err != nil {
			a.logger.Error().Err(err).Str("path", path).Msg("Export failed")
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		a.logger.Info().Str("path", path).Msg("Exported")
		return exportDoneMsg{path: path}
	}
}
