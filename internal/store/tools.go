package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/sadopc/stackvault/internal/storage"
	"github.com/sadopc/stackvault/internal/vault"
)

const toolColumns = `id, name, category, vendor, price, purchase_date, refund_window_days,
	last_used, times_used, usage_goal, usage_goal_period, archived, created_at, updated_at`

func validateTool(in ToolInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("tool name is required")
	}
	if in.Price < 0 {
		return fmt.Errorf("price must not be negative, got %v", in.Price)
	}
	if in.RefundWindowDays < 0 {
		return fmt.Errorf("refund window must not be negative, got %d", in.RefundWindowDays)
	}
	return validateGoal(in.UsageGoal, in.UsageGoalPeriod)
}

func validateGoal(goal *int, period *vault.GoalPeriod) error {
	if (goal == nil) != (period == nil) {
		return errors.New("usage goal and period must be set together")
	}
	if goal != nil && *goal <= 0 {
		return fmt.Errorf("usage goal must be positive, got %d", *goal)
	}
	if period != nil && !period.Valid() {
		return fmt.Errorf("unknown goal period %q", *period)
	}
	return nil
}

func (s *Store) CreateTool(in ToolInput) (*vault.Tool, error) {
	if err := validateTool(in); err != nil {
		return nil, err
	}
	now := s.now()
	purchase := in.PurchaseDate
	if purchase.IsZero() {
		purchase = now
	}

	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO tools (id, name, category, vendor, price, purchase_date, refund_window_days,
			usage_goal, usage_goal_period, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, strings.TrimSpace(in.Name), in.Category, in.Vendor, in.Price, formatTime(purchase),
		in.RefundWindowDays, in.UsageGoal, goalPeriodArg(in.UsageGoalPeriod),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert tool: %w", err)
	}
	return s.GetTool(id)
}

// GetTool returns the tool with its full usage history, oldest first.
func (s *Store) GetTool(id string) (*vault.Tool, error) {
	row := s.db.QueryRow(`SELECT `+toolColumns+` FROM tools WHERE id = ?`, id)
	t, err := scanTool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get tool %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tool %s: %w", id, err)
	}

	records, err := s.ListUsage(UsageFilter{ToolID: id})
	if err != nil {
		return nil, err
	}
	t.UsageHistory = historyOf(records)
	return t, nil
}

// ListTools returns tools ordered by name, each with its usage history.
func (s *Store) ListTools(includeArchived bool) ([]vault.Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM tools`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY name COLLATE NOCASE, id`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var tools []vault.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records, err := s.ListUsage(UsageFilter{})
	if err != nil {
		return nil, err
	}
	byTool := lo.GroupBy(records, func(r UsageRecord) string { return r.ToolID })
	for i := range tools {
		tools[i].UsageHistory = historyOf(byTool[tools[i].ID])
	}
	return tools, nil
}

func (s *Store) UpdateTool(id string, in ToolInput) error {
	if err := validateTool(in); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE tools SET name = ?, category = ?, vendor = ?, price = ?, purchase_date = ?,
			refund_window_days = ?, usage_goal = ?, usage_goal_period = ?, updated_at = ?
		 WHERE id = ?`,
		strings.TrimSpace(in.Name), in.Category, in.Vendor, in.Price, formatTime(in.PurchaseDate),
		in.RefundWindowDays, in.UsageGoal, goalPeriodArg(in.UsageGoalPeriod),
		formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("update tool %s: %w", id, err)
	}
	return requireRow(res, "update tool", id)
}

// SetUsageGoal sets or, with nil arguments, clears the tool's goal.
func (s *Store) SetUsageGoal(id string, goal *int, period *vault.GoalPeriod) error {
	if err := validateGoal(goal, period); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE tools SET usage_goal = ?, usage_goal_period = ?, updated_at = ? WHERE id = ?`,
		goal, goalPeriodArg(period), formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("set usage goal %s: %w", id, err)
	}
	return requireRow(res, "set usage goal", id)
}

func (s *Store) ArchiveTool(id string) error {
	res, err := s.db.Exec(
		`UPDATE tools SET archived = 1, updated_at = ? WHERE id = ?`, formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("archive tool %s: %w", id, err)
	}
	return requireRow(res, "archive tool", id)
}

func (s *Store) UnarchiveTool(id string) error {
	res, err := s.db.Exec(
		`UPDATE tools SET archived = 0, updated_at = ? WHERE id = ?`, formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("unarchive tool %s: %w", id, err)
	}
	return requireRow(res, "unarchive tool", id)
}

// DeleteTool removes the tool and its usage ledger.
func (s *Store) DeleteTool(id string) error {
	res, err := s.db.Exec(`DELETE FROM tools WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete tool %s: %w", id, err)
	}
	return requireRow(res, "delete tool", id)
}

// FindTool resolves a tool by exact ID, then by case-insensitive name.
func (s *Store) FindTool(ref string) (*vault.Tool, error) {
	t, err := s.GetTool(ref)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return t, err
	}

	var id string
	err = s.db.QueryRow(
		`SELECT id FROM tools WHERE name = ? COLLATE NOCASE ORDER BY archived, created_at LIMIT 1`, ref,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find tool %q: %w", ref, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find tool %q: %w", ref, err)
	}
	return s.GetTool(id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTool(row scanner) (*vault.Tool, error) {
	t := &vault.Tool{}
	var purchase, createdAt, updatedAt string
	var lastUsed, period sql.NullString
	var goal sql.NullInt64
	var archived int
	err := row.Scan(&t.ID, &t.Name, &t.Category, &t.Vendor, &t.Price, &purchase, &t.RefundWindowDays,
		&lastUsed, &t.TimesUsed, &goal, &period, &archived, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.PurchaseDate = parseTime(purchase)
	if lastUsed.Valid {
		lu := parseTime(lastUsed.String)
		t.LastUsed = &lu
	}
	if goal.Valid {
		g := int(goal.Int64)
		t.UsageGoal = &g
	}
	if period.Valid {
		p := vault.GoalPeriod(period.String)
		t.UsageGoalPeriod = &p
	}
	t.Archived = archived == 1
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

func goalPeriodArg(p *vault.GoalPeriod) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, storage.ErrNotFound)
	}
	return nil
}
