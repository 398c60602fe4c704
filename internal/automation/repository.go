package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for action persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// List returns every stored action, ordered by name. Actions are
	// decoded but not set up.
	List(ctx context.Context) ([]*Action, error)

	// Save inserts or replaces an action by name.
	// Returns ErrActionExists if another action already uses its slug.
	Save(ctx context.Context, a *Action) error

	// Delete removes an action by name.
	// Returns ErrActionNotFound if it does not exist.
	Delete(ctx context.Context, name string) error

	// RecordRun appends an execution record.
	RecordRun(ctx context.Context, run Run) error

	// ListRuns returns up to limit runs of an action, newest first.
	ListRuns(ctx context.Context, action string, limit int) ([]Run, error)
}

// runTimeLayout has fixed-width fractions so started_at sorts as text.
const runTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLiteRepository implements Repository using the actions and action_runs tables.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// List retrieves all actions ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Action, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, enabled, definition FROM actions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		var name, definition string
		var enabled int
		if err := rows.Scan(&name, &enabled, &definition); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		a := &Action{}
		if err := json.Unmarshal([]byte(definition), a); err != nil {
			return nil, fmt.Errorf("decoding action %s: %w", name, err)
		}
		a.Name = name
		a.Enabled = enabled != 0
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return actions, nil
}

// Save inserts or updates an action.
func (r *SQLiteRepository) Save(ctx context.Context, a *Action) error {
	definition, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding action %s: %w", a.Name, err)
	}
	now := r.now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO actions (name, slug, enabled, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			slug = excluded.slug,
			enabled = excluded.enabled,
			definition = excluded.definition,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		a.Name, a.Slug, boolToInt(a.IsEnabled()), string(definition), now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: slug %s", ErrActionExists, a.Slug)
		}
		return fmt.Errorf("saving action %s: %w", a.Name, err)
	}
	return nil
}

// Delete removes an action by name.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM actions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting action: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrActionNotFound
	}
	return nil
}

// RecordRun inserts an execution record.
func (r *SQLiteRepository) RecordRun(ctx context.Context, run Run) error {
	query := `
		INSERT INTO action_runs (id, action, trigger_kind, started_at, duration_ms, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Action,
		run.TriggerKind,
		run.StartedAt.UTC().Format(runTimeLayout),
		run.Duration.Milliseconds(),
		string(run.Status),
		nullableString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs of an action.
func (r *SQLiteRepository) ListRuns(ctx context.Context, action string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, action, trigger_kind, started_at, duration_ms, status, error
		FROM action_runs
		WHERE action = ?
		ORDER BY started_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, action, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt, status string
		var durationMS int64
		var errText sql.NullString
		if err := rows.Scan(&run.ID, &run.Action, &run.TriggerKind, &startedAt, &durationMS, &status, &errText); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if t, parseErr := time.Parse(runTimeLayout, startedAt); parseErr == nil {
			run.StartedAt = t
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		run.Status = RunStatus(status)
		run.Error = errText.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
