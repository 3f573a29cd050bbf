package check

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// ListFilter narrows a listing at the storage level. Bucket filtering needs
// the resolved status and happens after loading.
type ListFilter struct {
	Direction Direction
	Source    Source
}

// Repository defines check persistence operations
type Repository interface {
	Create(ctx context.Context, c *Check) error
	GetByToken(ctx context.Context, token string) (*Check, error)
	List(ctx context.Context, filter ListFilter) ([]*Check, error)

	// Update writes c using optimistic locking: the stored row must still be
	// at c.Version-1.
	Update(ctx context.Context, c *Check) error

	// LockForUpdate acquires a row lock for the duration of the transaction
	LockForUpdate(ctx context.Context, token string) (*Check, error)

	// FirstIncomplete returns the oldest check missing a counterparty, bank
	// or check number, or "" when every check is complete.
	FirstIncomplete(ctx context.Context) (string, error)
	WithTx(tx pgx.Tx) Repository
}
