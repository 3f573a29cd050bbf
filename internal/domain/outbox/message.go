package outbox

import (
	"encoding/json"
	"time"

	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
	"github.com/google/uuid"
)

// Message carries one ledger intent from the check transaction to the relay
type Message struct {
	ID            int64               `json:"id"`
	IntentID      uuid.UUID           `json:"intent_id"`
	CheckToken    string              `json:"check_token"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(intent *ledger.Intent) (*Message, error) {
	payload, err := json.Marshal(intent)
	if err != nil {
		return nil, err
	}

	return &Message{
		IntentID:   intent.ID,
		CheckToken: intent.CheckToken,
		Payload:    payload,
		Status:     shared.OutboxStatusPending,
		CreatedAt:  time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// Intent decodes the ledger intent from the payload
func (m *Message) Intent() (*ledger.Intent, error) {
	var intent ledger.Intent
	if err := json.Unmarshal(m.Payload, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}
