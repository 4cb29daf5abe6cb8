package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/config"
	"github.com/sadopc/stackvault/internal/storage"
	"github.com/sadopc/stackvault/internal/store"
	"github.com/sadopc/stackvault/internal/timers"
	"github.com/sadopc/stackvault/internal/vault"
)

var now = time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)

type harness struct {
	dir    string
	config string
	clock  *clock.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := `
database:
  path: ` + filepath.Join(dir, "vault.db") + `
state:
  backend: sqlite
timers:
  tick_interval: 1h
logging:
  level: debug
  format: console
  file: ` + filepath.Join(dir, "logs", "stackvault.log") + `
`
	if err := os.WriteFile(cfgPath, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return &harness{dir: dir, config: cfgPath, clock: clock.NewFake(now)}
}

// run executes one command in a fresh command tree, like a new process.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(&runner{clock: h.clock})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func (h *harness) openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(h.dir, "vault.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ============================================================
// Tools
// ============================================================

func TestAddAndListTools(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "add", "Figma", "--category", "design", "--price", "$144", "--purchased", "2025-01-01")
	if !strings.Contains(out, "Added Figma") {
		t.Fatalf("unexpected add output: %q", out)
	}

	out = h.mustRun(t, "tools")
	for _, want := range []string{"Figma", "design", "$144.00", "Never Used"} {
		if !strings.Contains(out, want) {
			t.Fatalf("tools output missing %q:\n%s", want, out)
		}
	}
}

func TestToolsEmpty(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(t, "tools")
	if !strings.Contains(out, "No tools yet") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestAddValidation(t *testing.T) {
	h := newHarness(t)
	tests := [][]string{
		{"add", "Figma", "--price", "abc"},
		{"add", "Figma", "--price=-5"},
		{"add", "Figma", "--purchased", "01/02/2025"},
		{"add", "Figma", "--goal", "3"},
		{"add", "Figma", "--goal", "3", "--period", "daily"},
	}
	for _, args := range tests {
		if _, err := h.run(t, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestArchiveAndRestore(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")

	h.mustRun(t, "archive", "figma")
	if out := h.mustRun(t, "tools"); !strings.Contains(out, "No tools yet") {
		t.Fatalf("archived tool should be hidden:\n%s", out)
	}
	if out := h.mustRun(t, "tools", "--archived"); !strings.Contains(out, "(archived)") {
		t.Fatalf("archived tool should be marked:\n%s", out)
	}

	h.mustRun(t, "archive", "Figma", "--undo")
	if out := h.mustRun(t, "tools"); !strings.Contains(out, "Figma") {
		t.Fatalf("restored tool should be listed:\n%s", out)
	}
}

func TestUnknownTool(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "use", "Nope")
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

// ============================================================
// Usage
// ============================================================

func TestUseLogsManualEntry(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma", "--price", "100")

	out := h.mustRun(t, "use", "Figma", "--duration", "45m")
	if !strings.Contains(out, "Logged use of Figma (1 total)") {
		t.Fatalf("unexpected output: %q", out)
	}

	s := h.openStore(t)
	records, err := s.ListUsage(store.UsageFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(records))
	}
	r := records[0]
	if r.Source != vault.SourceManual || r.Duration == nil || *r.Duration != 2700 {
		t.Fatalf("unexpected entry %+v", r)
	}
	if !r.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want %v", r.Timestamp, now)
	}
}

func TestGoalSetAndClear(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")
	h.mustRun(t, "use", "Figma")

	out := h.mustRun(t, "goal", "Figma", "3", "weekly")
	if !strings.Contains(out, "3 uses weekly") {
		t.Fatalf("unexpected output: %q", out)
	}

	out = h.mustRun(t, "goals")
	if !strings.Contains(out, "1/3") || !strings.Contains(out, "0/1 COMPLETE") {
		t.Fatalf("unexpected goals output:\n%s", out)
	}

	h.mustRun(t, "goal", "Figma", "--clear")
	if out := h.mustRun(t, "goals"); !strings.Contains(out, "No usage goals") {
		t.Fatalf("goal should be cleared:\n%s", out)
	}

	if _, err := h.run(t, "goal", "Figma", "3"); err == nil {
		t.Fatal("missing period should fail")
	}
	if _, err := h.run(t, "goal", "Figma", "0", "weekly"); err == nil {
		t.Fatal("zero goal should fail")
	}
}

// ============================================================
// Timers
// ============================================================

func TestTimerSurvivesAcrossCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")

	out := h.mustRun(t, "timer", "start", "Figma")
	if !strings.Contains(out, "Started timer for Figma") {
		t.Fatalf("unexpected output: %q", out)
	}

	h.clock.Advance(90 * time.Second)
	out = h.mustRun(t, "timer", "list")
	if !strings.Contains(out, "Figma") || !strings.Contains(out, "00:01:30") {
		t.Fatalf("list should show rehydrated elapsed time:\n%s", out)
	}

	out = h.mustRun(t, "timer", "stop", "Figma")
	if !strings.Contains(out, "Stopped Figma after 00:01:30") {
		t.Fatalf("unexpected stop output: %q", out)
	}

	s := h.openStore(t)
	records, _ := s.ListUsage(store.UsageFilter{Source: vault.SourceTimer})
	if len(records) != 1 || records[0].Duration == nil || *records[0].Duration != 90 {
		t.Fatalf("expected one 90s timer entry, got %+v", records)
	}

	if out := h.mustRun(t, "timer", "list"); !strings.Contains(out, "No timers running") {
		t.Fatalf("timer should be gone:\n%s", out)
	}
}

func TestTimerRestart(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")
	h.mustRun(t, "timer", "start", "Figma")
	h.clock.Advance(time.Minute)

	out := h.mustRun(t, "timer", "start", "Figma")
	if !strings.Contains(out, "Restarted timer for Figma") {
		t.Fatalf("unexpected output: %q", out)
	}
	h.clock.Advance(10 * time.Second)
	out = h.mustRun(t, "timer", "stop", "Figma")
	if !strings.Contains(out, "after 00:00:10") {
		t.Fatalf("restart should reset the start time: %q", out)
	}
}

func TestTimerStopIdle(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")

	out := h.mustRun(t, "timer", "stop", "Figma")
	if !strings.Contains(out, "No timer running for Figma") {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := h.run(t, "timer", "stop"); err == nil {
		t.Fatal("stop without TOOL or --all should fail")
	}
}

func TestTimerStopAll(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")
	h.mustRun(t, "add", "Notion")
	h.mustRun(t, "timer", "start", "Figma")
	h.mustRun(t, "timer", "start", "Notion")
	h.clock.Advance(time.Minute)

	out := h.mustRun(t, "timer", "stop", "--all")
	if !strings.Contains(out, "Stopped Figma") || !strings.Contains(out, "Stopped Notion") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	s := h.openStore(t)
	records, _ := s.ListUsage(store.UsageFilter{Source: vault.SourceTimer})
	if len(records) != 2 {
		t.Fatalf("expected 2 timer entries, got %d", len(records))
	}
}

func TestTimerStartArchivedFails(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")
	h.mustRun(t, "archive", "Figma")
	if _, err := h.run(t, "timer", "start", "Figma"); err == nil {
		t.Fatal("starting an archived tool should fail")
	}
}

func TestTimerLoggedOncePerAction(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")
	h.mustRun(t, "timer", "start", "Figma")
	h.clock.Advance(time.Minute)
	h.mustRun(t, "timer", "stop", "Figma")

	data, err := os.ReadFile(filepath.Join(h.dir, "logs", "stackvault.log"))
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range []string{"Timer started", "Timer stopped"} {
		if n := strings.Count(string(data), msg); n != 1 {
			t.Errorf("%q logged %d times, want 1", msg, n)
		}
	}
}

func TestTimerSharedWithOpenDashboard(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")
	h.mustRun(t, "add", "Notion")

	s := h.openStore(t)
	notion, err := s.FindTool("Notion")
	if err != nil {
		t.Fatal(err)
	}
	dashboard := timers.New(s, h.clock, time.Hour, zerolog.Nop())
	defer dashboard.Close()
	dashboard.Start(notion.ID, notion.Name)

	h.mustRun(t, "timer", "start", "Figma")
	h.clock.Advance(time.Minute)
	if got := dashboard.Stop(notion.ID); got != 60 {
		t.Fatalf("dashboard stop = %d, want 60", got)
	}

	out := h.mustRun(t, "timer", "stop", "Figma")
	if !strings.Contains(out, "Stopped Figma after 00:01:00") {
		t.Fatalf("timer started from the shell should survive: %q", out)
	}
}

func TestWatchTimersEndsWhenStoppedElsewhere(t *testing.T) {
	kv := storage.NewMemoryKV()
	clk := clock.NewFake(now)
	reg := timers.New(kv, clk, 5*time.Millisecond, zerolog.Nop())
	defer reg.Close()
	reg.Start("a", "Figma")

	other := timers.New(kv, clk, time.Hour, zerolog.Nop())
	other.Stop("a")
	other.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var buf bytes.Buffer
	if err := watchTimers(ctx, &buf, reg); err != nil {
		t.Fatal(err)
	}
	if ctx.Err() != nil {
		t.Fatal("watch should end once the timer is stopped elsewhere")
	}
	if !strings.HasSuffix(strings.TrimSpace(buf.String()), "No timers running") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

// ============================================================
// Stats and export
// ============================================================

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma", "--category", "design", "--price", "150", "--refund-days", "30")
	h.mustRun(t, "add", "Notion", "--category", "productivity", "--price", "50")
	h.mustRun(t, "use", "Figma")

	out := h.mustRun(t, "stats")
	for _, want := range []string{"$200.00", "design", "75%", "Uses (7 days):   1", "2 active", "REFUND WINDOWS", "30 days left"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestExportJSONToFile(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma", "--price", "100")
	h.mustRun(t, "use", "Figma")

	path := filepath.Join(h.dir, "out", "tools.json")
	h.mustRun(t, "export", "--format", "json", "--output", path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.Count != 1 {
		t.Fatalf("count = %d, want 1", doc.Count)
	}
}

func TestExportUsageCSVToStdout(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")
	h.mustRun(t, "use", "Figma")

	out := h.mustRun(t, "export", "--usage")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "Figma") || !strings.Contains(lines[1], "manual") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestExportBadFormat(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run(t, "export", "--format", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

// ============================================================
// Daily prompt
// ============================================================

func TestPromptWithFlags(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")
	h.mustRun(t, "add", "Notion")

	out := h.mustRun(t, "prompt", "--tool", "Figma", "--tool", "figma")
	if !strings.Contains(out, "Logged 1 tool(s)") {
		t.Fatalf("duplicates should collapse: %q", out)
	}

	out = h.mustRun(t, "prompt", "--tool", "Notion")
	if !strings.Contains(out, "Already checked in today") {
		t.Fatalf("second prompt should be skipped: %q", out)
	}

	h.mustRun(t, "prompt", "--tool", "Notion", "--force")

	s := h.openStore(t)
	records, _ := s.ListUsage(store.UsageFilter{Source: vault.SourceDailyPrompt})
	if len(records) != 2 {
		t.Fatalf("expected 2 daily-prompt entries, got %d", len(records))
	}

	h.clock.Advance(24 * time.Hour)
	out = h.mustRun(t, "prompt", "--tool", "Figma")
	if !strings.Contains(out, "Logged 1 tool(s)") {
		t.Fatalf("prompt should be due the next day: %q", out)
	}
}

func TestPromptRejectsArchivedTool(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "add", "Figma")
	h.mustRun(t, "add", "Notion")
	h.mustRun(t, "archive", "Notion")

	if _, err := h.run(t, "prompt", "--tool", "Figma", "--tool", "Notion"); err == nil {
		t.Fatal("archived tool should be rejected")
	}

	s := h.openStore(t)
	records, _ := s.ListUsage(store.UsageFilter{Source: vault.SourceDailyPrompt})
	if len(records) != 0 {
		t.Fatalf("nothing should be logged, got %d entries", len(records))
	}

	out := h.mustRun(t, "prompt", "--tool", "Figma")
	if !strings.Contains(out, "Logged 1 tool(s)") {
		t.Fatalf("rejected prompt should not mark the day: %q", out)
	}
}

// ============================================================
// Environment
// ============================================================

func TestOpenStateBackends(t *testing.T) {
	s, err := store.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	kv, closeKV, err := openState(config.StateConfig{Backend: "sqlite"}, s)
	if err != nil || kv != storage.KV(s) || closeKV != nil {
		t.Fatalf("sqlite backend should reuse the store: %v", err)
	}

	kv, _, err = openState(config.StateConfig{Backend: "memory"}, s)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := kv.(*storage.MemoryKV); !ok {
		t.Fatalf("expected MemoryKV, got %T", kv)
	}

	kv, closeKV, err = openState(config.StateConfig{Backend: "bolt", BoltPath: filepath.Join(t.TempDir(), "state", "state.bolt")}, s)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := kv.Set(ctx, storage.KeyInterfaceMode, "power"); err != nil {
		t.Fatal(err)
	}
	if v, _ := kv.Get(ctx, storage.KeyInterfaceMode); v != "power" {
		t.Fatalf("bolt roundtrip got %q", v)
	}
	if err := closeKV(); err != nil {
		t.Fatal(err)
	}

	if _, _, err := openState(config.StateConfig{Backend: "etcd"}, s); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpenStateRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := store.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	kv, closeKV, err := openState(config.StateConfig{
		Backend: "redis",
		Redis: config.RedisConfig{
			Host:         mr.Addr(),
			DialTimeout:  "1s",
			ReadTimeout:  "1s",
			WriteTimeout: "1s",
		},
	}, s)
	if err != nil {
		t.Fatal(err)
	}
	defer closeKV()

	ctx := context.Background()
	if err := kv.Set(ctx, storage.KeyActiveTimers, "[]"); err != nil {
		t.Fatal(err)
	}
	if v, _ := kv.Get(ctx, storage.KeyActiveTimers); v != "[]" {
		t.Fatalf("redis roundtrip got %q", v)
	}
}

func TestTimersWithBoltBackend(t *testing.T) {
	h := newHarness(t)
	data := `
database:
  path: ` + filepath.Join(h.dir, "vault.db") + `
state:
  backend: bolt
  bolt_path: ` + filepath.Join(h.dir, "state.bolt") + `
logging:
  file: ` + filepath.Join(h.dir, "stackvault.log") + `
`
	if err := os.WriteFile(h.config, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	h.mustRun(t, "add", "Figma")
	h.mustRun(t, "timer", "start", "Figma")
	h.clock.Advance(5 * time.Second)
	out := h.mustRun(t, "timer", "stop", "Figma")
	if !strings.Contains(out, "after 00:00:05") {
		t.Fatalf("bolt-backed timer should survive between commands: %q", out)
	}
}

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	logger, f, err := setupLogger(config.LoggingConfig{Level: "warn", Format: "json", File: path})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Msg("visible")
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "visible") {
		t.Fatalf("unexpected log contents: %s", data)
	}
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "console", zerolog.DebugLevel)
	logger.Debug().Str("component", "timers").Msg("tick")
	if !strings.Contains(buf.String(), "tick") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestBadConfig(t *testing.T) {
	h := newHarness(t)
	if err := os.WriteFile(h.config, []byte("state:\n  backend: etcd\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.run(t, "tools"); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		pct  int
		want string
	}{
		{0, "[....]"},
		{50, "[##..]"},
		{100, "[####]"},
		{150, "[####]"},
	}
	for _, tt := range tests {
		if got := bar(tt.pct, 4); got != tt.want {
			t.Errorf("bar(%d) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}
