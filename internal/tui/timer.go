package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/store"
	"github.com/sadopc/stackvault/internal/timers"
	"github.com/sadopc/stackvault/internal/vault"
)

// timerModel joins the session registry to the usage ledger: the registry
// only measures, and stopping a timer here records the session.
type timerModel struct {
	registry *timers.Registry
	store    *store.Store
	clock    clock.Clock
	logger   zerolog.Logger
}

func newTimerModel(r *timers.Registry, s *store.Store, clk clock.Clock, logger zerolog.Logger) timerModel {
	return timerModel{
		registry: r,
		store:    s,
		clock:    clk,
		logger:   logger,
	}
}

func (t timerModel) start(tool vault.Tool) timers.ActiveTimer {
	return t.registry.Start(tool.ID, tool.Name)
}

// stop closes the tool's timer and logs the session. A zero duration
// (idle tool, or sub-second session) logs nothing.
func (t timerModel) stop(toolID string) (int64, error) {
	secs := t.registry.Stop(toolID)
	if _, err := t.store.LogTimerSession(toolID, secs, t.clock.Now()); err != nil {
		t.logger.Error().Err(err).Str("tool_id", toolID).Int64("seconds", secs).Msg("Failed to record timer session")
		return secs, err
	}
	return secs, nil
}

func (t timerModel) sync() {
	t.registry.Sync()
}

func (t timerModel) running(toolID string) bool {
	return t.registry.IsRunning(toolID)
}

func (t timerModel) elapsed(toolID string) int64 {
	return t.registry.Elapsed(toolID)
}

func (t timerModel) active() []timers.ActiveTimer {
	return t.registry.ListActive()
}

// waitForTick blocks until the registry's next tick.
func (t timerModel) waitForTick() tea.Cmd {
	updates := t.registry.Updates()
	return func() tea.Msg {
		<-updates
		return tickMsg(t.clock.Now())
	}
}
