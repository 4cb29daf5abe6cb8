package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/sadopc/stackvault/internal/metrics"
	"github.com/sadopc/stackvault/internal/vault"
)

// AppendUsage adds an entry to the tool's ledger. The insert, the
// times_used bump and the last_used update commit together; last_used
// only ever moves forward. A zero timestamp means now and an empty ID is
// generated.
func (s *Store) AppendUsage(toolID string, e vault.UsageEntry) (*vault.UsageEntry, error) {
	if !e.Source.Valid() {
		return nil, fmt.Errorf("unknown usage source %q", e.Source)
	}
	if e.Duration != nil && *e.Duration < 0 {
		return nil, fmt.Errorf("duration must not be negative, got %d", *e.Duration)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	ts := formatTime(e.Timestamp)
	e.Timestamp = parseTime(ts)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin append usage: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE tools SET
			times_used = times_used + 1,
			last_used = CASE WHEN last_used IS NULL OR last_used < ? THEN ? ELSE last_used END,
			updated_at = ?
		 WHERE id = ?`,
		ts, ts, formatTime(s.now()), toolID,
	)
	if err != nil {
		return nil, fmt.Errorf("bump usage for %s: %w", toolID, err)
	}
	if err := requireRow(res, "append usage", toolID); err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		`INSERT INTO usage_entries (id, tool_id, timestamp, duration, source) VALUES (?, ?, ?, ?, ?)`,
		e.ID, toolID, ts, e.Duration, string(e.Source),
	)
	if err != nil {
		return nil, fmt.Errorf("insert usage entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append usage: %w", err)
	}

	metrics.UsageEntriesAppended.WithLabelValues(string(e.Source)).Inc()
	return &e, nil
}

// ListUsage returns ledger entries oldest first, or newest first when
// the filter asks for it. Limit applies after ordering.
func (s *Store) ListUsage(f UsageFilter) ([]UsageRecord, error) {
	query := `SELECT u.id, u.tool_id, t.name, u.timestamp, u.duration, u.source
		FROM usage_entries u JOIN tools t ON t.id = u.tool_id WHERE 1=1`
	var args []any

	if f.ToolID != "" {
		query += ` AND u.tool_id = ?`
		args = append(args, f.ToolID)
	}
	if f.Source != "" {
		query += ` AND u.source = ?`
		args = append(args, string(f.Source))
	}
	if f.From != nil {
		query += ` AND u.timestamp >= ?`
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += ` AND u.timestamp < ?`
		args = append(args, formatTime(*f.To))
	}
	if f.NewestFirst {
		query += ` ORDER BY u.timestamp DESC, u.rowid DESC`
	} else {
		query += ` ORDER BY u.timestamp, u.rowid`
	}
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var r UsageRecord
		var ts, source string
		var duration sql.NullInt64
		if err := rows.Scan(&r.ID, &r.ToolID, &r.ToolName, &ts, &duration, &source); err != nil {
			return nil, err
		}
		r.Timestamp = parseTime(ts)
		r.Source = vault.UsageSource(source)
		if duration.Valid {
			d := duration.Int64
			r.Duration = &d
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetDailyUsage aggregates uses and timed seconds per tool per UTC day in
// [from, to).
func (s *Store) GetDailyUsage(from, to time.Time) ([]DailySummary, error) {
	rows, err := s.db.Query(`
		SELECT date(u.timestamp) AS day, u.tool_id, t.name,
		       COUNT(*), COALESCE(SUM(u.duration), 0)
		FROM usage_entries u
		JOIN tools t ON t.id = u.tool_id
		WHERE u.timestamp >= ? AND u.timestamp < ?
		GROUP BY day, u.tool_id
		ORDER BY day, t.name`,
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("daily usage: %w", err)
	}
	defer rows.Close()

	var summaries []DailySummary
	for rows.Next() {
		var ds DailySummary
		if err := rows.Scan(&ds.Date, &ds.ToolID, &ds.ToolName, &ds.Uses, &ds.TotalSeconds); err != nil {
			return nil, err
		}
		summaries = append(summaries, ds)
	}
	return summaries, rows.Err()
}

// CountUsageSince returns the number of ledger entries at or after since.
func (s *Store) CountUsageSince(since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM usage_entries WHERE timestamp >= ?`, formatTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}

func historyOf(records []UsageRecord) []vault.UsageEntry {
	return lo.Map(records, func(r UsageRecord, _ int) vault.UsageEntry { return r.UsageEntry })
}

// LogTimerSession appends the ledger entry for a stopped timer. Sessions
// that rounded down to zero seconds are not recorded and yield nil.
func (s *Store) LogTimerSession(toolID string, seconds int64, at time.Time) (*vault.UsageEntry, error) {
	if seconds <= 0 {
		return nil, nil
	}
	return s.AppendUsage(toolID, vault.UsageEntry{
		Timestamp: at,
		Duration:  &seconds,
		Source:    vault.SourceTimer,
	})
}
