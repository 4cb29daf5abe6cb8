package timers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/storage"
)

var t0 = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *clock.Fake, *storage.MemoryKV) {
	t.Helper()
	clk := clock.NewFake(t0)
	kv := storage.NewMemoryKV()
	r := New(kv, clk, time.Hour, zerolog.Nop())
	t.Cleanup(r.Close)
	return r, clk, kv
}

// failingKV rejects every write.
type failingKV struct {
	*storage.MemoryKV
}

func (failingKV) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

// ============================================================
// Start / Stop
// ============================================================

func TestStartThenImmediateStopIsZero(t *testing.T) {
	r, clk, _ := newTestRegistry(t)

	r.Start("t1", "Notion")
	clk.Advance(400 * time.Millisecond)

	if got := r.Stop("t1"); got != 0 {
		t.Fatalf("duration = %d, want 0", got)
	}
	if r.IsRunning("t1") {
		t.Fatal("timer should be gone after stop")
	}
}

func TestStopFloorsToWholeSeconds(t *testing.T) {
	r, clk, _ := newTestRegistry(t)

	r.Start("t1", "Notion")
	clk.Advance(90*time.Second + 999*time.Millisecond)

	if got := r.Stop("t1"); got != 90 {
		t.Fatalf("duration = %d, want 90", got)
	}
}

func TestStopAbsentTimerIsZero(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	if got := r.Stop("nope"); got != 0 {
		t.Fatalf("duration = %d, want 0", got)
	}
}

func TestLastStartWins(t *testing.T) {
	r, clk, _ := newTestRegistry(t)

	r.Start("t1", "Notion")
	clk.Advance(10 * time.Minute)
	restarted := r.Start("t1", "Notion")

	if restarted.StartTime != clk.Now().UnixMilli() {
		t.Fatalf("start time = %d, want %d", restarted.StartTime, clk.Now().UnixMilli())
	}
	if got := r.Elapsed("t1"); got != 0 {
		t.Fatalf("elapsed after restart = %d, want 0", got)
	}
	clk.Advance(30 * time.Second)
	if got := r.Stop("t1"); got != 30 {
		t.Fatalf("duration = %d, want 30", got)
	}
}

func TestConcurrentTimersAreIndependent(t *testing.T) {
	r, clk, _ := newTestRegistry(t)

	r.Start("a", "Alpha")
	clk.Advance(time.Minute)
	r.Start("b", "Beta")
	clk.Advance(time.Minute)

	if got := r.Stop("a"); got != 120 {
		t.Fatalf("a = %d, want 120", got)
	}
	if !r.IsRunning("b") {
		t.Fatal("b should still be running")
	}
	if got := r.Stop("b"); got != 60 {
		t.Fatalf("b = %d, want 60", got)
	}
}

func TestClockGoingBackwardsClampsToZero(t *testing.T) {
	r, clk, _ := newTestRegistry(t)

	r.Start("t1", "Notion")
	clk.Advance(-time.Minute)
	if got := r.Stop("t1"); got != 0 {
		t.Fatalf("duration = %d, want 0", got)
	}
}

// ============================================================
// Read accessors
// ============================================================

func TestElapsedUpdatesOnTick(t *testing.T) {
	r, clk, _ := newTestRegistry(t)

	r.Start("t1", "Notion")
	clk.Advance(5 * time.Second)
	if got := r.Elapsed("t1"); got != 0 {
		t.Fatalf("elapsed before tick = %d, want 0", got)
	}

	r.Tick()
	if got := r.Elapsed("t1"); got != 5 {
		t.Fatalf("elapsed after tick = %d, want 5", got)
	}

	// Recomputed from the start time, not incremented.
	clk.Advance(time.Hour)
	r.Tick()
	if got := r.Elapsed("t1"); got != 3605 {
		t.Fatalf("elapsed = %d, want 3605", got)
	}
}

func TestElapsedIdleIsZero(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	if got := r.Elapsed("idle"); got != 0 {
		t.Fatalf("elapsed = %d, want 0", got)
	}
}

func TestListActiveSortedByStart(t *testing.T) {
	r, clk, _ := newTestRegistry(t)

	r.Start("late", "Late")
	clk.Advance(-time.Hour)
	r.Start("early", "Early")

	list := r.ListActive()
	if len(list) != 2 {
		t.Fatalf("got %d timers, want 2", len(list))
	}
	if list[0].ToolID != "early" || list[1].ToolID != "late" {
		t.Fatalf("order = %s, %s", list[0].ToolID, list[1].ToolID)
	}
}

func TestTickSignalsUpdates(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	r.Tick()
	r.Tick()
	select {
	case <-r.Updates():
	default:
		t.Fatal("expected an update signal")
	}
	select {
	case <-r.Updates():
		t.Fatal("signals should coalesce")
	default:
	}
}

// ============================================================
// Persistence
// ============================================================

func TestPersistedShape(t *testing.T) {
	r, _, kv := newTestRegistry(t)
	r.Start("t1", "Notion")

	raw, err := kv.Get(context.Background(), storage.KeyActiveTimers)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var pairs []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	want := `["t1",{"toolId":"t1","toolName":"Notion","startTime":` + jsonInt(t0.UnixMilli()) + `}]`
	if string(pairs[0]) != want {
		t.Fatalf("pair = %s\nwant %s", pairs[0], want)
	}

	r.Stop("t1")
	raw, _ = kv.Get(context.Background(), storage.KeyActiveTimers)
	if raw != "[]" {
		t.Fatalf("after stop = %s, want []", raw)
	}
}

func TestRehydrateRecomputesElapsed(t *testing.T) {
	clk := clock.NewFake(t0)
	kv := storage.NewMemoryKV()

	first := New(kv, clk, time.Hour, zerolog.Nop())
	first.Start("t1", "Notion")
	first.Close()

	clk.Advance(25 * time.Minute)
	second := New(kv, clk, time.Hour, zerolog.Nop())
	defer second.Close()

	if !second.IsRunning("t1") {
		t.Fatal("timer should survive restart")
	}
	if got := second.Elapsed("t1"); got != 1500 {
		t.Fatalf("elapsed = %d, want 1500", got)
	}
	if !second.Ticking() {
		t.Fatal("rehydrated timers should hold the ticker")
	}
	if got := second.Stop("t1"); got != 1500 {
		t.Fatalf("duration = %d, want 1500", got)
	}
}

func TestMalformedStateFallsBackToEmpty(t *testing.T) {
	cases := map[string]string{
		"not json":       "{{{",
		"object":         `{"t1":{}}`,
		"short pair":     `[["t1"]]`,
		"bad id":         `[[42,{"toolId":"t1","toolName":"x","startTime":1}]]`,
		"bad timer":      `[["t1","nope"]]`,
		"zero startTime": `[["t1",{"toolId":"t1","toolName":"x","startTime":0}]]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			kv := storage.NewMemoryKV()
			_ = kv.Set(context.Background(), storage.KeyActiveTimers, raw)

			r := New(kv, clock.NewFake(t0), time.Hour, zerolog.Nop())
			defer r.Close()

			if n := len(r.ListActive()); n != 0 {
				t.Fatalf("got %d timers, want 0", n)
			}
			if r.Ticking() {
				t.Fatal("empty registry should not tick")
			}
		})
	}
}

func TestDecodeTimers(t *testing.T) {
	got, err := decodeTimers([]byte(`[["t1",{"toolName":"Notion","startTime":1700000000000}]]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["t1"].ToolID != "t1" || got["t1"].ToolName != "Notion" {
		t.Fatalf("decoded = %+v", got["t1"])
	}

	if _, err := decodeTimers([]byte(`[["",{"toolId":"x","startTime":1}]]`)); err == nil {
		t.Fatal("empty tool id should be rejected")
	}
}

func TestPersistFailureKeepsInMemoryState(t *testing.T) {
	kv := failingKV{storage.NewMemoryKV()}
	clk := clock.NewFake(t0)
	r := New(kv, clk, time.Hour, zerolog.Nop())
	defer r.Close()

	r.Start("t1", "Notion")
	clk.Advance(3 * time.Second)
	if got := r.Stop("t1"); got != 3 {
		t.Fatalf("duration = %d, want 3", got)
	}
}

// ============================================================
// Shared state
// ============================================================

func TestStopKeepsTimersStartedElsewhere(t *testing.T) {
	clk := clock.NewFake(t0)
	kv := storage.NewMemoryKV()

	dashboard := New(kv, clk, time.Hour, zerolog.Nop())
	defer dashboard.Close()
	dashboard.Start("a", "A")

	shell := New(kv, clk, time.Hour, zerolog.Nop())
	shell.Start("b", "B")
	shell.Close()

	clk.Advance(time.Minute)
	if got := dashboard.Stop("a"); got != 60 {
		t.Fatalf("duration = %d, want 60", got)
	}
	if !dashboard.IsRunning("b") {
		t.Fatal("timer started elsewhere should be picked up")
	}

	later := New(kv, clk, time.Hour, zerolog.Nop())
	defer later.Close()
	active := later.ListActive()
	if len(active) != 1 || active[0].ToolID != "b" {
		t.Fatalf("persisted timers = %+v, want only b", active)
	}
}

func TestStopTimerStartedElsewhere(t *testing.T) {
	clk := clock.NewFake(t0)
	kv := storage.NewMemoryKV()

	dashboard := New(kv, clk, time.Hour, zerolog.Nop())
	defer dashboard.Close()

	shell := New(kv, clk, time.Hour, zerolog.Nop())
	shell.Start("b", "B")
	shell.Close()

	clk.Advance(2 * time.Minute)
	if got := dashboard.Stop("b"); got != 120 {
		t.Fatalf("duration = %d, want 120", got)
	}
	if dashboard.Ticking() {
		t.Fatal("ticker should be released once b is stopped")
	}
	raw, _ := kv.Get(context.Background(), storage.KeyActiveTimers)
	if raw != "[]" {
		t.Fatalf("persisted = %s, want []", raw)
	}
}

func TestStartDropsTimersStoppedElsewhere(t *testing.T) {
	clk := clock.NewFake(t0)
	kv := storage.NewMemoryKV()

	dashboard := New(kv, clk, time.Hour, zerolog.Nop())
	defer dashboard.Close()
	dashboard.Start("a", "A")

	shell := New(kv, clk, time.Hour, zerolog.Nop())
	clk.Advance(30 * time.Second)
	if got := shell.Stop("a"); got != 30 {
		t.Fatalf("duration = %d, want 30", got)
	}
	shell.Close()

	dashboard.Start("c", "C")
	if dashboard.IsRunning("a") {
		t.Fatal("timer stopped elsewhere should not be resurrected")
	}
	if got := dashboard.Stop("a"); got != 0 {
		t.Fatalf("second stop = %d, want 0", got)
	}
}

func TestSyncFollowsOtherProcesses(t *testing.T) {
	clk := clock.NewFake(t0)
	kv := storage.NewMemoryKV()

	r := New(kv, clk, time.Hour, zerolog.Nop())
	defer r.Close()
	other := New(kv, clk, time.Hour, zerolog.Nop())
	defer other.Close()

	other.Start("b", "B")
	clk.Advance(10 * time.Second)
	r.Sync()
	if !r.IsRunning("b") || r.Elapsed("b") != 10 {
		t.Fatalf("running=%v elapsed=%d", r.IsRunning("b"), r.Elapsed("b"))
	}
	if !r.Ticking() {
		t.Fatal("synced timers should hold the ticker")
	}

	other.Stop("b")
	r.Sync()
	if r.IsRunning("b") || r.Ticking() {
		t.Fatal("timer stopped elsewhere should be dropped and the ticker released")
	}
}

func TestPersistFailureKeepsUnsavedTimers(t *testing.T) {
	kv := failingKV{storage.NewMemoryKV()}
	clk := clock.NewFake(t0)
	r := New(kv, clk, time.Hour, zerolog.Nop())
	defer r.Close()

	r.Start("a", "A")
	r.Start("b", "B")
	clk.Advance(5 * time.Second)
	if got := r.Stop("a"); got != 5 {
		t.Fatalf("duration = %d, want 5", got)
	}
	if !r.IsRunning("b") {
		t.Fatal("unsaved timer should survive a re-read")
	}
}

// ============================================================
// Ticker lifecycle
// ============================================================

func TestTickerAcquiredAndReleased(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	if r.Ticking() {
		t.Fatal("idle registry should not tick")
	}
	r.Start("a", "A")
	r.Start("b", "B")
	if !r.Ticking() {
		t.Fatal("ticker should be held with open timers")
	}
	r.Stop("a")
	if !r.Ticking() {
		t.Fatal("ticker should stay held while b is open")
	}
	r.Stop("b")
	if r.Ticking() {
		t.Fatal("ticker should be released with no open timers")
	}
}

func TestCloseReleasesTicker(t *testing.T) {
	clk := clock.NewFake(t0)
	r := New(storage.NewMemoryKV(), clk, time.Hour, zerolog.Nop())
	r.Start("a", "A")

	r.Close()
	if r.Ticking() {
		t.Fatal("closed registry should not tick")
	}
	r.Start("b", "B")
	if r.Ticking() {
		t.Fatal("closed registry should not reacquire the ticker")
	}
}

func TestTickerDrivesUpdates(t *testing.T) {
	clk := clock.NewFake(t0)
	r := New(storage.NewMemoryKV(), clk, 5*time.Millisecond, zerolog.Nop())
	defer r.Close()

	r.Start("t1", "Notion")
	clk.Advance(7 * time.Second)

	deadline := time.After(2 * time.Second)
	for r.Elapsed("t1") != 7 {
		select {
		case <-r.Updates():
		case <-deadline:
			t.Fatalf("elapsed = %d after 2s, want 7", r.Elapsed("t1"))
		}
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
