package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/garage-erp/check-lifecycle/internal/domain/check"
	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/outbox"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
)

type MockCheckRepository struct {
	mock.Mock
}

func (m *MockCheckRepository) Create(ctx context.Context, c *check.Check) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCheckRepository) GetByToken(ctx context.Context, token string) (*check.Check, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*check.Check), args.Error(1)
}

func (m *MockCheckRepository) List(ctx context.Context, filter check.ListFilter) ([]*check.Check, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*check.Check), args.Error(1)
}

func (m *MockCheckRepository) Update(ctx context.Context, c *check.Check) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCheckRepository) LockForUpdate(ctx context.Context, token string) (*check.Check, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*check.Check), args.Error(1)
}

func (m *MockCheckRepository) FirstIncomplete(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockCheckRepository) WithTx(tx pgx.Tx) check.Repository {
	args := m.Called(tx)
	return args.Get(0).(check.Repository)
}

type MockIntentRepository struct {
	mock.Mock
}

func (m *MockIntentRepository) Record(ctx context.Context, intent *ledger.Intent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func (m *MockIntentRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Intent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Intent), args.Error(1)
}

func (m *MockIntentRepository) GetByCheckToken(ctx context.Context, token string, limit, offset int) ([]*ledger.Intent, error) {
	args := m.Called(ctx, token, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Intent), args.Error(1)
}

func (m *MockIntentRepository) CountByCheckToken(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockIntentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status shared.IntentStatus, reason string) error {
	args := m.Called(ctx, id, status, reason)
	return args.Error(0)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	args := m.Called(tx)
	return args.Get(0).(outbox.Repository)
}

type MockOutboxWriter struct {
	mock.Mock
}

func (m *MockOutboxWriter) Enqueue(ctx context.Context, tx pgx.Tx, intents []*ledger.Intent, correlationID string) error {
	args := m.Called(ctx, tx, intents, correlationID)
	return args.Error(0)
}

type MockRateResolver struct {
	mock.Mock
}

func (m *MockRateResolver) Resolve(ctx context.Context, currency string, manual *decimal.Decimal) (*check.FXRate, error) {
	args := m.Called(ctx, currency, manual)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*check.FXRate), args.Error(1)
}

// stubTxRunner runs fn with a nil transaction and counts the outcomes.
type stubTxRunner struct {
	committed  int
	rolledBack int
}

func (r *stubTxRunner) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := fn(nil); err != nil {
		r.rolledBack++
		return err
	}
	r.committed++
	return nil
}

// memCheckRepository is an in-memory check.Repository honouring the version guard.
type memCheckRepository struct {
	mu     sync.Mutex
	checks map[string]*check.Check
}

func newMemCheckRepository(checks ...*check.Check) *memCheckRepository {
	r := &memCheckRepository{checks: make(map[string]*check.Check)}
	for _, c := range checks {
		r.checks[c.Token] = c.Clone()
	}
	return r
}

func (r *memCheckRepository) Create(ctx context.Context, c *check.Check) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[c.Token] = c.Clone()
	return nil
}

func (r *memCheckRepository) GetByToken(ctx context.Context, token string) (*check.Check, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.checks[token]
	if !ok {
		return nil, check.ErrCheckNotFound{Token: token}
	}
	return c.Clone(), nil
}

func (r *memCheckRepository) List(ctx context.Context, filter check.ListFilter) ([]*check.Check, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*check.Check, 0, len(r.checks))
	for _, c := range r.checks {
		if filter.Direction != "" && c.Direction != filter.Direction {
			continue
		}
		if filter.Source != "" && c.Source != filter.Source {
			continue
		}
		out = append(out, c.Clone())
	}
	return out, nil
}

func (r *memCheckRepository) Update(ctx context.Context, c *check.Check) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.checks[c.Token]
	if !ok || stored.Version != c.Version-1 {
		return check.ErrConcurrentModification{Token: c.Token}
	}
	r.checks[c.Token] = c.Clone()
	return nil
}

func (r *memCheckRepository) LockForUpdate(ctx context.Context, token string) (*check.Check, error) {
	return r.GetByToken(ctx, token)
}

func (r *memCheckRepository) FirstIncomplete(ctx context.Context) (string, error) {
	return "", nil
}

func (r *memCheckRepository) WithTx(tx pgx.Tx) check.Repository {
	return r
}

// stagedOutbox collects every enqueued intent.
type stagedOutbox struct {
	intents []*ledger.Intent
}

func (o *stagedOutbox) Enqueue(ctx context.Context, tx pgx.Tx, intents []*ledger.Intent, correlationID string) error {
	for _, i := range intents {
		i.CorrelationID = correlationID
	}
	o.intents = append(o.intents, intents...)
	return nil
}

type countingRecorder struct {
	transitions map[string]int
	settlements map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{transitions: map[string]int{}, settlements: map[string]int{}}
}

func (r *countingRecorder) IncTransition(action, outcome string) {
	r.transitions[action+"/"+outcome]++
}

func (r *countingRecorder) IncSettlement(operation, outcome string) {
	r.settlements[operation+"/"+outcome]++
}
