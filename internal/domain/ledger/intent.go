package ledger

import (
	"time"

	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Intent describes a counterparty balance change implied by a check operation.
// The engine only computes it; the external ledger applies it.
//
// Delta follows the counterparty convention: positive means the counterparty
// owes the business more, negative means it owes less.
type Intent struct {
	ID            uuid.UUID           `json:"id"`
	Kind          shared.IntentKind   `json:"kind"`
	CheckToken    string              `json:"check_token"`
	Direction     string              `json:"direction"`
	EntityType    string              `json:"entity_type,omitempty"`
	EntityID      string              `json:"entity_id,omitempty"`
	Amount        decimal.Decimal     `json:"amount"`
	Delta         decimal.Decimal     `json:"delta"`
	Currency      string              `json:"currency"`
	PaymentRef    string              `json:"payment_ref,omitempty"`
	Actor         string              `json:"actor"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
	Status        shared.IntentStatus `json:"status,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	PublishedAt   *time.Time          `json:"published_at,omitempty"`
}

// IsZeroDelta reports whether the intent is informational only.
func (i *Intent) IsZeroDelta() bool {
	return i.Delta.IsZero()
}
