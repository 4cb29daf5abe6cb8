package timers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sadopc/stackvault/internal/clock"
	"github.com/sadopc/stackvault/internal/metrics"
	"github.com/sadopc/stackvault/internal/storage"
)

// ActiveTimer is an open manual-usage session for one tool.
type ActiveTimer struct {
	ToolID    string `json:"toolId"`
	ToolName  string `json:"toolName"`
	StartTime int64  `json:"startTime"` // epoch milliseconds
}

// Started returns the start time as a time.Time.
func (a ActiveTimer) Started() time.Time {
	return time.UnixMilli(a.StartTime)
}

type entry struct {
	timer   ActiveTimer
	elapsed int64
}

// Registry tracks concurrently open usage timers. Every mutation re-reads
// the KV port, applies one change and writes the set back under
// storage.KeyActiveTimers, so several processes can share the same state.
// A single ticker goroutine runs while at least one timer is open.
type Registry struct {
	mu       sync.Mutex
	clock    clock.Clock
	kv       storage.KV
	logger   zerolog.Logger
	interval time.Duration

	timers  map[string]*entry
	updates chan struct{}
	// dirty is set while the last write failed and the KV lags behind
	// the in-memory set.
	dirty bool

	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// New builds a registry and rehydrates any timers persisted in kv. Elapsed
// times are recomputed against clk straight away, so sessions left open
// across restarts catch up instead of resuming from zero.
func New(kv storage.KV, clk clock.Clock, interval time.Duration, logger zerolog.Logger) *Registry {
	if interval <= 0 {
		interval = time.Second
	}
	r := &Registry{
		clock:    clk,
		kv:       kv,
		logger:   logger.With().Str("component", "timers").Logger(),
		interval: interval,
		timers:   make(map[string]*entry),
		updates:  make(chan struct{}, 1),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.load()
	r.recomputeLocked()
	if len(r.timers) > 0 {
		r.acquireLocked()
	}
	metrics.ActiveTimers.Set(float64(len(r.timers)))
	return r
}

func (r *Registry) load() {
	stored, err := r.readPersisted()
	if err != nil {
		return
	}
	for id, t := range stored {
		r.timers[id] = &entry{timer: t}
	}
	r.logger.Debug().Int("count", len(stored)).Msg("Rehydrated timers")
}

// readPersisted returns the timers currently in the KV. Read and decode
// failures are logged and returned; a missing key is an empty set.
func (r *Registry) readPersisted() (map[string]ActiveTimer, error) {
	raw, err := r.kv.Get(context.Background(), storage.KeyActiveTimers)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]ActiveTimer{}, nil
	}
	if err != nil {
		metrics.TimerStateErrors.WithLabelValues("load").Inc()
		r.logger.Warn().Err(err).Msg("Failed to read persisted timers, keeping current set")
		return nil, err
	}

	decoded, err := decodeTimers([]byte(raw))
	if err != nil {
		r.discardMalformed(err)
		return nil, err
	}
	return decoded, nil
}

// discardMalformed is the fallback for persisted state that cannot be
// decoded: the registry keeps its current set (empty on startup) and the
// bad value is overwritten on the next mutation.
func (r *Registry) discardMalformed(err error) {
	metrics.TimerStateErrors.WithLabelValues("decode").Inc()
	r.logger.Warn().Err(err).Msg("Discarding malformed timer state")
}

// syncLocked picks up timers started or stopped by other processes
// sharing the KV. While dirty, only timers missing from memory are added.
func (r *Registry) syncLocked() {
	stored, err := r.readPersisted()
	if err != nil {
		return
	}

	if !r.dirty {
		for id := range r.timers {
			if _, ok := stored[id]; !ok {
				r.logger.Debug().Str("tool_id", id).Msg("Dropping timer closed by another process")
				delete(r.timers, id)
			}
		}
	}
	for id, t := range stored {
		if e, ok := r.timers[id]; ok && (r.dirty || e.timer == t) {
			continue
		}
		r.timers[id] = &entry{timer: t}
	}
	r.recomputeLocked()
}

// Start opens a timer for toolID. Starting a tool that is already running
// replaces its start time.
func (r *Registry) Start(toolID, toolName string) ActiveTimer {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := ActiveTimer{
		ToolID:    toolID,
		ToolName:  toolName,
		StartTime: r.clock.Now().UnixMilli(),
	}
	r.syncLocked()
	if _, ok := r.timers[toolID]; ok {
		r.logger.Debug().Str("tool_id", toolID).Msg("Restarting running timer")
	}
	r.timers[toolID] = &entry{timer: t}
	r.persistLocked()
	r.acquireLocked()

	metrics.TimersStarted.Inc()
	metrics.ActiveTimers.Set(float64(len(r.timers)))
	r.logger.Info().Str("tool_id", toolID).Str("tool", toolName).Msg("Timer started")
	return t
}

// Stop closes the timer for toolID and returns its duration in whole
// seconds. A tool with no open timer yields 0.
func (r *Registry) Stop(toolID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.syncLocked()
	e, ok := r.timers[toolID]
	if !ok {
		if len(r.timers) == 0 {
			r.releaseLocked()
		} else {
			r.acquireLocked()
		}
		metrics.ActiveTimers.Set(float64(len(r.timers)))
		return 0
	}
	seconds := secondsSince(e.timer.StartTime, r.clock.Now())
	delete(r.timers, toolID)
	r.persistLocked()
	if len(r.timers) == 0 {
		r.releaseLocked()
	} else {
		r.acquireLocked()
	}

	metrics.TimersStopped.Inc()
	metrics.TimerSeconds.Observe(float64(seconds))
	metrics.ActiveTimers.Set(float64(len(r.timers)))
	r.logger.Info().Str("tool_id", toolID).Int64("seconds", seconds).Msg("Timer stopped")
	return seconds
}

// Sync re-reads the KV so timers started or stopped by another process
// show up without a local mutation.
func (r *Registry) Sync() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.syncLocked()
	if len(r.timers) == 0 {
		r.releaseLocked()
	} else {
		r.acquireLocked()
	}
	metrics.ActiveTimers.Set(float64(len(r.timers)))
}

// IsRunning reports whether toolID has an open timer.
func (r *Registry) IsRunning(toolID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[toolID]
	return ok
}

// Elapsed returns the displayed elapsed seconds for toolID as of the last
// tick, or 0 when idle.
func (r *Registry) Elapsed(toolID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.timers[toolID]; ok {
		return e.elapsed
	}
	return 0
}

// ListActive returns open timers, oldest first.
func (r *Registry) ListActive() []ActiveTimer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ActiveTimer, 0, len(r.timers))
	for _, e := range r.timers {
		out = append(out, e.timer)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime == out[j].StartTime {
			return out[i].ToolID < out[j].ToolID
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// Tick recomputes every open timer's elapsed time from its start time and
// signals Updates. The ticker goroutine calls it once per interval.
func (r *Registry) Tick() {
	r.mu.Lock()
	r.recomputeLocked()
	r.mu.Unlock()

	select {
	case r.updates <- struct{}{}:
	default:
	}
}

// Updates signals after each tick. Signals coalesce when the reader falls
// behind.
func (r *Registry) Updates() <-chan struct{} {
	return r.updates
}

// Ticking reports whether the ticker goroutine is held.
func (r *Registry) Ticking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

// Close releases the ticker and waits for it to exit. Open timers stay
// persisted so a later registry can pick them up.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	done := r.releaseLocked()
	r.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (r *Registry) recomputeLocked() {
	now := r.clock.Now()
	for _, e := range r.timers {
		e.elapsed = secondsSince(e.timer.StartTime, now)
	}
}

func (r *Registry) acquireLocked() {
	if r.stop != nil || r.closed {
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.stop, r.done)
	r.logger.Debug().Dur("interval", r.interval).Msg("Ticker acquired")
}

// releaseLocked stops the ticker without waiting; the goroutine may be
// blocked on mu inside Tick.
func (r *Registry) releaseLocked() chan struct{} {
	if r.stop == nil {
		return nil
	}
	close(r.stop)
	done := r.done
	r.stop = nil
	r.done = nil
	r.logger.Debug().Msg("Ticker released")
	return done
}

func (r *Registry) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

func (r *Registry) persistLocked() {
	data, err := encodeTimers(r.timers)
	if err != nil {
		metrics.TimerStateErrors.WithLabelValues("encode").Inc()
		r.logger.Error().Err(err).Msg("Failed to encode timers")
		return
	}
	if err := r.kv.Set(context.Background(), storage.KeyActiveTimers, string(data)); err != nil {
		metrics.TimerStateErrors.WithLabelValues("persist").Inc()
		r.logger.Error().Err(err).Msg("Failed to persist timers")
		r.dirty = true
		return
	}
	r.dirty = false
}

func secondsSince(startMillis int64, now time.Time) int64 {
	d := now.UnixMilli() - startMillis
	if d < 0 {
		return 0
	}
	return d / 1000
}

// encodeTimers writes the registry as a JSON array of [toolId, timer]
// pairs ordered by start time.
func encodeTimers(timers map[string]*entry) ([]byte, error) {
	list := make([]ActiveTimer, 0, len(timers))
	for _, e := range timers {
		list = append(list, e.timer)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartTime == list[j].StartTime {
			return list[i].ToolID < list[j].ToolID
		}
		return list[i].StartTime < list[j].StartTime
	})

	pairs := make([][2]any, 0, len(list))
	for _, t := range list {
		pairs = append(pairs, [2]any{t.ToolID, t})
	}
	return json.Marshal(pairs)
}

// decodeTimers parses persisted registry state. Any structural problem
// rejects the whole value.
func decodeTimers(data []byte) (map[string]ActiveTimer, error) {
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("decode timer list: %w", err)
	}

	out := make(map[string]ActiveTimer, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("timer %d: expected [toolId, timer] pair, got %d elements", i, len(pair))
		}
		var id string
		if err := json.Unmarshal(pair[0], &id); err != nil {
			return nil, fmt.Errorf("timer %d: decode tool id: %w", i, err)
		}
		var t ActiveTimer
		if err := json.Unmarshal(pair[1], &t); err != nil {
			return nil, fmt.Errorf("timer %d: decode timer: %w", i, err)
		}
		if id == "" {
			return nil, fmt.Errorf("timer %d: empty tool id", i)
		}
		if t.StartTime <= 0 {
			return nil, fmt.Errorf("timer %d: invalid start time %d", i, t.StartTime)
		}
		if t.ToolID == "" {
			t.ToolID = id
		}
		out[id] = t
	}
	return out, nil
}
