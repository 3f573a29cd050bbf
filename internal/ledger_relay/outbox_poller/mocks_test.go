package outbox_poller

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/outbox"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
)

// MockOutboxRepo for testing
type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	args := m.Called(tx)
	return args.Get(0).(outbox.Repository)
}

// MockIntentRepo for testing
type MockIntentRepo struct {
	mock.Mock
}

func (m *MockIntentRepo) Record(ctx context.Context, intent *ledger.Intent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func (m *MockIntentRepo) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Intent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Intent), args.Error(1)
}

func (m *MockIntentRepo) GetByCheckToken(ctx context.Context, token string, limit, offset int) ([]*ledger.Intent, error) {
	args := m.Called(ctx, token, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Intent), args.Error(1)
}

func (m *MockIntentRepo) CountByCheckToken(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockIntentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status shared.IntentStatus, reason string) error {
	args := m.Called(ctx, id, status, reason)
	return args.Error(0)
}

// MockIntentProducer for testing
type MockIntentProducer struct {
	mock.Mock
}

func (m *MockIntentProducer) Publish(ctx context.Context, intent *ledger.Intent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func (m *MockIntentProducer) Close() error {
	return m.Called().Error(0)
}

// MockDLQ for testing
type MockDLQ struct {
	mock.Mock
}

func (m *MockDLQ) PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error {
	args := m.Called(ctx, key, originalMessageValue, reason)
	return args.Error(0)
}

func (m *MockDLQ) Close() error {
	return m.Called().Error(0)
}

// MockLedgerPublisher for testing
type MockLedgerPublisher struct {
	mock.Mock
}

func (m *MockLedgerPublisher) PublishToLedger(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// countingRecorder keeps "kind/result" counts and the last batch size
type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	batch  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: make(map[string]int)}
}

func (r *countingRecorder) IncIntent(kind, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[kind+"/"+result]++
}

func (r *countingRecorder) SetOutboxBatch(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batch = n
}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestMessage(t testing.TB, id int64, token string, kind shared.IntentKind, attempts int) *outbox.Message {
	intent := &ledger.Intent{
		ID:            uuid.New(),
		Kind:          kind,
		CheckToken:    token,
		Direction:     "INCOMING",
		EntityType:    "customer",
		EntityID:      "cust-1",
		Amount:        decimal.NewFromInt(250),
		Delta:         decimal.NewFromInt(250),
		Currency:      "ILS",
		Actor:         "owner-1",
		CorrelationID: "corr-relay",
		OccurredAt:    time.Now().UTC(),
	}
	msg, err := outbox.NewMessage(intent)
	require.NoError(t, err)
	msg.ID = id
	msg.Attempts = attempts
	return msg
}
