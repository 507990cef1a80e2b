package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dispatchd/dispatchd/internal/database/models"
)

// channelStatusRepo implements ChannelStatusRepository.
type channelStatusRepo struct {
	db *DB
}

// NewChannelStatusRepository creates a new ChannelStatusRepository.
func NewChannelStatusRepository(db *DB) ChannelStatusRepository {
	return &channelStatusRepo{db: db}
}

// Seed installs the configured console request ids. Existing slots keep
// their state; ids no longer configured are removed so the table always
// mirrors the deployment exactly.
func (r *channelStatusRepo) Seed(ctx context.Context, requestIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed: %w", err)
	}
	defer tx.Rollback()

	for _, id := range requestIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO channel_status (request_id) VALUES (?)
			 ON CONFLICT (request_id) DO NOTHING`, id,
		); err != nil {
			return fmt.Errorf("seeding channel status %q: %w", id, err)
		}
	}

	// Drop slots for consoles removed from the configuration.
	if len(requestIDs) > 0 {
		args := make([]any, len(requestIDs))
		placeholders := ""
		for i, id := range requestIDs {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM channel_status WHERE request_id NOT IN (`+placeholders+`)`, args...,
		); err != nil {
			return fmt.Errorf("pruning channel status slots: %w", err)
		}
	}

	return tx.Commit()
}

// Get returns the slot for requestID, or ErrNotFound for an unknown console.
func (r *channelStatusRepo) Get(ctx context.Context, requestID string) (*models.ChannelStatus, error) {
	var st models.ChannelStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT request_id, channel_id, state, updated_at
		 FROM channel_status WHERE request_id = ?`, requestID,
	).Scan(&st.RequestID, &st.ChannelID, &st.State, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel status: %w", err)
	}
	return &st, nil
}

// List returns all slots ordered by request id.
func (r *channelStatusRepo) List(ctx context.Context) ([]models.ChannelStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT request_id, channel_id, state, updated_at
		 FROM channel_status ORDER BY request_id`)
	if err != nil {
		return nil, fmt.Errorf("querying channel statuses: %w", err)
	}
	defer rows.Close()

	var statuses []models.ChannelStatus
	for rows.Next() {
		var st models.ChannelStatus
		if err := rows.Scan(&st.RequestID, &st.ChannelID, &st.State, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning channel status row: %w", err)
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// Update mutates an existing slot in place.
func (r *channelStatusRepo) Update(ctx context.Context, st *models.ChannelStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE channel_status SET channel_id = ?, state = ?, updated_at = datetime('now')
		 WHERE request_id = ?`,
		st.ChannelID, st.State, st.RequestID,
	)
	if err != nil {
		return fmt.Errorf("updating channel status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
