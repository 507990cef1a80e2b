package database

import (
	"context"
	"errors"

	"github.com/dispatchd/dispatchd/internal/database/models"
)

// ErrNotFound is returned when a lookup names a row that does not exist.
var ErrNotFound = errors.New("not found")

// OperatorRepository manages dispatch console operator accounts.
type OperatorRepository interface {
	Create(ctx context.Context, op *models.Operator) error
	GetByUsername(ctx context.Context, username string) (*models.Operator, error)
	Count(ctx context.Context) (int64, error)
}

// ChannelStatusRepository manages the fixed per-console termination slots.
// Seed installs the configured request ids; Update mutates a slot in place.
type ChannelStatusRepository interface {
	Seed(ctx context.Context, requestIDs []string) error
	Get(ctx context.Context, requestID string) (*models.ChannelStatus, error)
	List(ctx context.Context) ([]models.ChannelStatus, error)
	Update(ctx context.Context, st *models.ChannelStatus) error
}

// TerminationLogRepository records one audit row per termination attempt.
type TerminationLogRepository interface {
	Create(ctx context.Context, entry *models.TerminationLog) error
	ListRecent(ctx context.Context, limit int) ([]models.TerminationLog, error)
	CountByState(ctx context.Context) (map[string]int64, error)
}
