package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dispatchd/dispatchd/internal/database/models"
)

// terminationLogRepo implements TerminationLogRepository.
type terminationLogRepo struct {
	db *DB
}

// NewTerminationLogRepository creates a new TerminationLogRepository.
func NewTerminationLogRepository(db *DB) TerminationLogRepository {
	return &terminationLogRepo{db: db}
}

// Create inserts an audit row. The id is assigned here when empty.
func (r *terminationLogRepo) Create(ctx context.Context, entry *models.TerminationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO termination_log (id, request_id, extension, channel, state, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		entry.ID, entry.RequestID, entry.Extension, entry.Channel, entry.State, entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting termination log: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries first.
func (r *terminationLogRepo) ListRecent(ctx context.Context, limit int) ([]models.TerminationLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, request_id, extension, channel, state, detail, created_at
		 FROM termination_log ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying termination log: %w", err)
	}
	defer rows.Close()

	var entries []models.TerminationLog
	for rows.Next() {
		var e models.TerminationLog
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Extension, &e.Channel, &e.State, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning termination log row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByState returns audit row counts grouped by outcome state.
func (r *terminationLogRepo) CountByState(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM termination_log GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("counting termination log: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scanning termination count row: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}
