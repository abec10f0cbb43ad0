package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/sandboxd/internal/apperror"
	"github.com/sakif/sandboxd/internal/model"
	"github.com/sakif/sandboxd/internal/repository"
)

// Create inserts a new execution record, filling in ID and CreatedAt.
func (db *DB) Create(ctx context.Context, execution *model.Execution) error {
	execution.ID = xid.New().String()
	execution.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO executions (id, code, status, stdout, stderr, error, execution_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		execution.ID,
		execution.Code,
		execution.Status,
		execution.Stdout,
		execution.Stderr,
		execution.Error,
		execution.ExecutionCount,
		execution.DurationMS,
		execution.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}

	return nil
}

// GetByID retrieves a single execution record.
// Returns apperror.ErrNotFound if no row matches.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Execution, error) {
	var e model.Execution
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, code, status, stdout, stderr, error, execution_count, duration_ms, created_at
		FROM executions WHERE id = ?`, id,
	).Scan(
		&e.ID, &e.Code, &e.Status, &e.Stdout, &e.Stderr, &e.Error,
		&e.ExecutionCount, &e.DurationMS, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("execution", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying execution: %w", err)
	}

	return &e, nil
}

// List returns execution records, newest first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Execution, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, code, status, stdout, stderr, error, execution_count, duration_ms, created_at
		FROM executions
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	executions := []model.Execution{}
	for rows.Next() {
		var e model.Execution
		if err := rows.Scan(
			&e.ID, &e.Code, &e.Status, &e.Stdout, &e.Stderr, &e.Error,
			&e.ExecutionCount, &e.DurationMS, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning execution row: %w", err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating execution rows: %w", err)
	}

	return executions, nil
}
