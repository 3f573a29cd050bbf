package ledger

import (
	"context"

	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository keeps the log of intents handed to the ledger collaborator
type Repository interface {
	// Record stores the intent once; recording the same ID again is a no-op.
	Record(ctx context.Context, intent *Intent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Intent, error)
	GetByCheckToken(ctx context.Context, token string, limit, offset int) ([]*Intent, error)
	CountByCheckToken(ctx context.Context, token string) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status shared.IntentStatus, reason string) error
}

// ErrIntentNotFound indicates missing intent log entry
type ErrIntentNotFound struct {
	ID uuid.UUID
}

func (e ErrIntentNotFound) Error() string {
	return "ledger intent not found: " + e.ID.String()
}

// Is implements the errors.Is interface for ErrIntentNotFound
func (e ErrIntentNotFound) Is(target error) bool {
	t, ok := target.(ErrIntentNotFound)
	if !ok {
		return false
	}
	// If the target ID is empty, consider it a match for any ErrIntentNotFound
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}
