// Package storage persists the render transition journal in PostgreSQL.
package storage

import (
	"context"
	"embed"
	"fmt"

	"github.com/cuongbtq/render-studio/internal/studio/events"
	"github.com/jmoiron/sqlx"
)

// Migrations holds the schema of the journal
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations holding the scripts
const MigrationsDir = "migrations"

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
	}
}

// InsertTransition records ev and reports whether it was new.
// Redelivered events with a known event_id are ignored.
func (s *Storage) InsertTransition(ctx context.Context, ev *events.TransitionEvent) (bool, error) {
	query := `
		INSERT INTO render_transitions (
			event_id, session_id, seq, shop_id, job_id, phase,
			progress, result_location, error_detail, occurred_at
		) VALUES (
			:event_id, :session_id, :seq, :shop_id, :job_id, :phase,
			:progress, :result_location, :error_detail, :occurred_at
		)
		ON CONFLICT (event_id) DO NOTHING
	`

	res, err := s.db.NamedExecContext(ctx, query, ev)
	if err != nil {
		return false, fmt.Errorf("failed to insert transition: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n > 0, nil
}

type TransitionFilter struct {
	SessionID string
	PageSize  int
	Cursor    *TransitionCursor
}

// TransitionCursor points at the last row of the previous page
type TransitionCursor struct {
	Seq     int
	EventID string
}

// ListTransitions returns the journal of one session in seq order.
// One row beyond PageSize is fetched so callers can tell whether more exist.
func (s *Storage) ListTransitions(ctx context.Context, filter TransitionFilter) ([]events.TransitionEvent, error) {
	query := `
		SELECT
			event_id, session_id, seq, shop_id, job_id, phase,
			progress, result_location, error_detail, occurred_at
		FROM render_transitions
		WHERE session_id = $1
	`
	args := []interface{}{filter.SessionID}
	argIdx := 2

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (seq, event_id) > ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.Seq, filter.Cursor.EventID)
		argIdx += 2
	}

	query += " ORDER BY seq ASC, event_id ASC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []events.TransitionEvent
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}

	return rows, nil
}
