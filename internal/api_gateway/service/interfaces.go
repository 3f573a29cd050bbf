package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/garage-erp/check-lifecycle/internal/domain/check"
	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/report"
)

// CheckService defines the operations the HTTP API exposes on checks
type CheckService interface {
	// ListChecks returns the checks matching filter ordered by due date.
	// Returns a validation error for an unknown bucket name
	ListChecks(ctx context.Context, filter ListFilter) ([]*CheckView, error)

	// GetStatistics returns the overdue summaries per direction
	GetStatistics(ctx context.Context) (*report.Statistics, error)

	// GetDetails retrieves a check by its token
	// Returns ErrCheckNotFound if the check doesn't exist
	GetDetails(ctx context.Context, token string) (*CheckView, error)

	// GetIntents returns the published ledger intents of a check, newest first,
	// and the total number recorded
	GetIntents(ctx context.Context, token string, page, perPage int) ([]*ledger.Intent, int64, error)

	// CreateCheck records a new check and captures its issue exchange rate
	CreateCheck(ctx context.Context, caller Caller, req CreateRequest) (*CheckView, error)

	// UpdateDetails edits non-lifecycle fields. Owner only
	UpdateDetails(ctx context.Context, caller Caller, token string, patch check.DetailsPatch) (*CheckView, error)

	// UpdateStatus moves the check towards the requested status through the
	// transition state machine
	UpdateStatus(ctx context.Context, caller Caller, token string, req StatusRequest) (*CheckView, error)

	// Settle links a returned check to a compensating payment. Owner only
	Settle(ctx context.Context, caller Caller, token, paymentRef string) (*CheckView, error)

	// Unsettle reverses a settlement. Owner only
	Unsettle(ctx context.Context, caller Caller, token string) (*CheckView, error)

	// FirstIncomplete returns the token of the oldest check missing a required
	// field, or "" when there is none
	FirstIncomplete(ctx context.Context) (string, error)
}

// TxRunner runs fn inside one database transaction, committing only when fn
// returns nil. *persistence.PostgresDB satisfies it.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// RateResolver captures an exchange rate for a currency. *fx.Resolver satisfies it.
type RateResolver interface {
	Resolve(ctx context.Context, currency string, manual *decimal.Decimal) (*check.FXRate, error)
}

// Recorder counts engine outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	IncTransition(action, outcome string)
	IncSettlement(operation, outcome string)
}

// OutboxWriter stages ledger intents in the outbox inside the caller's transaction
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, intents []*ledger.Intent, correlationID string) error
}

// Caller identifies who issues a write and the request it belongs to
type Caller struct {
	Actor         check.Actor
	CorrelationID string
}

// ListFilter is the explicit filter object of a listing
type ListFilter struct {
	Direction check.Direction
	Bucket    string // Bucket name; empty or "all" lists everything
	Source    check.Source
}

// CreateRequest carries the fields of a newly recorded check
type CreateRequest struct {
	Source      check.Source
	Direction   check.Direction
	Amount      decimal.Decimal
	Currency    string
	FXRate      *decimal.Decimal // Manual issue rate, optional
	DueDate     time.Time
	Bank        string
	CheckNumber string
	EntityType  check.EntityType
	EntityID    string
	Notes       string
}

// StatusRequest asks for a status change
type StatusRequest struct {
	Status       check.Status
	Notes        string
	ReturnReason check.ReturnReason
	FXRate       *decimal.Decimal // Manual cash rate, optional
}
