package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dispatchd/dispatchd/internal/database/models"
)

// operatorRepo implements OperatorRepository.
type operatorRepo struct {
	db *DB
}

// NewOperatorRepository creates a new OperatorRepository.
func NewOperatorRepository(db *DB) OperatorRepository {
	return &operatorRepo{db: db}
}

// Create inserts a new operator account.
func (r *operatorRepo) Create(ctx context.Context, op *models.Operator) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO operators (username, password_hash, created_at)
		 VALUES (?, ?, datetime('now'))`,
		op.Username, op.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("inserting operator: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	op.ID = id
	return nil
}

// GetByUsername returns an operator by username, or ErrNotFound.
func (r *operatorRepo) GetByUsername(ctx context.Context, username string) (*models.Operator, error) {
	var op models.Operator
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at
		 FROM operators WHERE username = ?`, username,
	).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying operator: %w", err)
	}
	return &op, nil
}

// Count returns the number of operator accounts.
func (r *operatorRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operators`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting operators: %w", err)
	}
	return n, nil
}
