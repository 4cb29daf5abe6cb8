package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/sadopc/stackvault/internal/storage"
	"github.com/sadopc/stackvault/internal/store"
)

type settingsModel struct {
	store  *store.Store
	prefs  *storage.Prefs
	logger zerolog.Logger
	width  int
	height int

	mode     storage.InterfaceMode
	social   storage.SocialSettings
	settings []store.Setting

	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	modeVal       *string
	publicProfile *bool
	showStreaks   *bool
	showSpend     *bool
	displayName   *string
}

func newSettingsModel(s *store.Store, prefs *storage.Prefs, logger zerolog.Logger) settingsModel {
	mode, name := "", ""
	pp, ss, sp := false, false, false
	return settingsModel{
		store:         s,
		prefs:         prefs,
		logger:        logger,
		mode:          storage.ModeSimple,
		modeVal:       &mode,
		publicProfile: &pp,
		showStreaks:   &ss,
		showSpend:     &sp,
		displayName:   &name,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	mode     storage.InterfaceMode
	social   storage.SocialSettings
	settings []store.Setting
}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		settings, err := s.store.GetAllSettings()
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to list settings")
		}
		return settingsDataMsg{
			mode:     s.prefs.InterfaceMode(ctx),
			social:   s.prefs.SocialSettings(ctx),
			settings: settings,
		}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(settingsDataMsg); ok {
		s.mode = msg.mode
		s.social = msg.social
		s.settings = msg.settings
		return s, nil
	}
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Enter), key.Matches(msg, keys.Edit):
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	*s.modeVal = string(s.mode)
	*s.publicProfile = s.social.PublicProfile
	*s.showStreaks = s.social.ShowStreaks
	*s.showSpend = s.social.ShowSpend
	*s.displayName = s.social.DisplayName

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title("Interface mode").
				Description("Power mode adds goal, refund and recent activity columns").
				Options(
					huh.NewOption("Simple", string(storage.ModeSimple)),
					huh.NewOption("Power", string(storage.ModePower)),
				).Value(s.modeVal),
		).Title("Display"),
		huh.NewGroup(
			huh.NewConfirm().Title("Public profile").Value(s.publicProfile),
			huh.NewConfirm().Title("Show streaks").Value(s.showStreaks),
			huh.NewConfirm().Title("Show spend").Value(s.showSpend),
			huh.NewInput().Title("Display name").CharLimit(40).Value(s.displayName),
		).Title("Sharing"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		return s, tea.Sequence(s.save(), s.refresh())
	}

	return s, cmd
}

func (s settingsModel) save() tea.Cmd {
	mode := storage.InterfaceMode(*s.modeVal)
	social := storage.SocialSettings{
		PublicProfile: *s.publicProfile,
		ShowStreaks:   *s.showStreaks,
		ShowSpend:     *s.showSpend,
		DisplayName:   strings.TrimSpace(*s.displayName),
	}
	return func() tea.Msg {
		ctx := context.Background()
		if err := s.prefs.SetInterfaceMode(ctx, mode); err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		if err := s.prefs.SetSocialSettings(ctx, social); err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return prefsChangedMsg{}
	}
}

func (s settingsModel) view() string {
	w := s.width - 4
	title := titleStyle.Render("Settings")

	if s.formActive && s.form != nil {
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	label := lipgloss.NewStyle().Width(24)
	row := func(k, v string) string {
		return fmt.Sprintf("  %s %s", label.Render(k), highlightStyle.Render(v))
	}

	var rows []string
	rows = append(rows, title, "")
	rows = append(rows, subtitleStyle.Render("Display"))
	rows = append(rows, row("Interface mode", string(s.mode)))
	rows = append(rows, "")
	rows = append(rows, subtitleStyle.Render("Sharing"))
	rows = append(rows, row("Public profile", yesNo(s.social.PublicProfile)))
	rows = append(rows, row("Show streaks", yesNo(s.social.ShowStreaks)))
	rows = append(rows, row("Show spend", yesNo(s.social.ShowSpend)))
	name := s.social.DisplayName
	if name == "" {
		name = "—"
	}
	rows = append(rows, row("Display name", name))

	if len(s.settings) > 0 {
		rows = append(rows, "", subtitleStyle.Render("Stored keys"))
		for _, setting := range s.settings {
			rows = append(rows, fmt.Sprintf("  %s %s",
				label.Render(strings.TrimPrefix(setting.Key, "stackvault_")),
				mutedStyle.Render(truncate(setting.Value, max(w-32, 10))),
			))
		}
	}

	rows = append(rows, "", mutedStyle.Render("Press enter to edit settings"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
