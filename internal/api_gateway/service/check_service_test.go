package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/garage-erp/check-lifecycle/internal/domain/check"
	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/report"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
	"github.com/garage-erp/check-lifecycle/internal/platform/fx"
)

var (
	testNow   = time.Date(2026, 5, 20, 11, 0, 0, 0, time.UTC)
	clerkCall = Caller{Actor: check.Actor{ID: "clerk-1"}, CorrelationID: "corr-1"}
	ownerCall = Caller{Actor: check.Actor{ID: "owner-1", IsOwner: true}, CorrelationID: "corr-2"}
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newServiceCheck(t *testing.T, dir check.Direction, dueInDays int) *check.Check {
	t.Helper()
	c, err := check.NewCheck(check.NewCheckParams{
		Direction:   dir,
		Amount:      decimal.RequireFromString("900"),
		Currency:    "ILS",
		DueDate:     testNow.AddDate(0, 0, dueInDays),
		Bank:        "Mizrahi",
		CheckNumber: "7001",
		EntityType:  check.EntityCustomer,
		EntityID:    "cust-3",
		CreatedAt:   testNow.AddDate(0, 0, -20),
	})
	require.NoError(t, err)
	return c
}

type serviceFixture struct {
	svc      *CheckServiceImpl
	repo     *memCheckRepository
	outbox   *stagedOutbox
	tx       *stubTxRunner
	rates    *MockRateResolver
	recorder *countingRecorder
}

func newServiceFixture(checks ...*check.Check) *serviceFixture {
	f := &serviceFixture{
		repo:     newMemCheckRepository(checks...),
		outbox:   &stagedOutbox{},
		tx:       &stubTxRunner{},
		rates:    new(MockRateResolver),
		recorder: newCountingRecorder(),
	}
	f.svc = NewCheckService(newTestLogger(), Deps{
		CheckRepo:     f.repo,
		Outbox:        f.outbox,
		Tx:            f.tx,
		Rates:         f.rates,
		Recorder:      f.recorder,
		DueSoonWindow: 72 * time.Hour,
	})
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestCheckService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("OverdueCheckIsCashed", func(t *testing.T) {
		c := newServiceCheck(t, check.DirectionIncoming, -1)
		f := newServiceFixture(c)
		rate := &check.FXRate{Rate: decimal.NewFromInt(1), Source: check.FXSourceDefault, RecordedAt: testNow}
		f.rates.On("Resolve", ctx, "ILS", (*decimal.Decimal)(nil)).Return(rate, nil).Once()

		before, err := f.svc.GetDetails(ctx, c.Token)
		require.NoError(t, err)
		assert.Equal(t, check.StatusOverdue, before.ResolvedStatus)
		assert.Equal(t, report.BucketOverdue, before.Bucket)

		view, err := f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusCashed})
		require.NoError(t, err)

		assert.Equal(t, report.BucketCashed, view.Bucket)
		assert.Equal(t, check.StatusCashed, view.ResolvedStatus)
		assert.Equal(t, 1, view.Check.ResubmitAllowedCount)
		require.NotNil(t, view.Check.FXRateCash)
		assert.Equal(t, check.FXSourceDefault, view.Check.FXRateCash.Source)

		stored, err := f.repo.GetByToken(ctx, c.Token)
		require.NoError(t, err)
		assert.Equal(t, check.StatusCashed, stored.Status)
		assert.Equal(t, 2, stored.Version)

		require.Len(t, f.outbox.intents, 1)
		assert.Equal(t, shared.IntentCheckCleared, f.outbox.intents[0].Kind)
		assert.Equal(t, "corr-1", f.outbox.intents[0].CorrelationID)
		assert.Equal(t, 1, f.tx.committed)
		assert.Equal(t, 1, f.recorder.transitions["CASH/applied"])
		f.rates.AssertExpectations(t)
	})

	t.Run("MissingRateStillCashes", func(t *testing.T) {
		c := newServiceCheck(t, check.DirectionIncoming, 3)
		f := newServiceFixture(c)
		f.rates.On("Resolve", ctx, "ILS", (*decimal.Decimal)(nil)).Return(nil, fx.ErrNoRate).Once()

		view, err := f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusCashed})
		require.NoError(t, err)
		assert.Nil(t, view.Check.FXRateCash)
		assert.Equal(t, report.BucketCashed, view.Bucket)
	})

	t.Run("InvalidManualRateRejectedBeforeTransaction", func(t *testing.T) {
		c := newServiceCheck(t, check.DirectionIncoming, 3)
		f := newServiceFixture(c)
		manual := decimal.NewFromInt(-2)
		f.rates.On("Resolve", ctx, "ILS", &manual).
			Return(nil, &check.ValidationError{Field: "fx_rate", Message: "exchange rate must be greater than zero"}).Once()

		_, err := f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusCashed, FXRate: &manual})
		var ve *check.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Zero(t, f.tx.committed+f.tx.rolledBack)
	})

	t.Run("ResubmitOnceThenCountExhausted", func(t *testing.T) {
		c := newServiceCheck(t, check.DirectionOutgoing, 2)
		f := newServiceFixture(c)

		_, err := f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusReturned})
		require.NoError(t, err)

		view, err := f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusPending})
		require.NoError(t, err)
		assert.Equal(t, report.BucketPending, view.Bucket)
		assert.Equal(t, 0, view.Check.ResubmitAllowedCount)

		_, err = f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusReturned})
		require.NoError(t, err)

		_, err = f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusResubmitted})
		assert.ErrorIs(t, err, check.ErrCountExhausted)

		stored, err := f.repo.GetByToken(ctx, c.Token)
		require.NoError(t, err)
		assert.Equal(t, 0, stored.ResubmitAllowedCount)
		assert.Equal(t, report.BucketReturned, report.BucketOf(stored, testNow))
		assert.Equal(t, 1, f.recorder.transitions["RESUBMIT/rejected"])
		assert.Equal(t, 1, f.tx.rolledBack)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.svc.UpdateStatus(ctx, clerkCall, "chk_x", StatusRequest{Status: "ARCHIVED"})
		var ve *check.ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("NotFound", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.svc.UpdateStatus(ctx, clerkCall, "chk_missing", StatusRequest{Status: check.StatusCancelled})
		assert.ErrorIs(t, err, check.ErrCheckNotFound{})
	})

	t.Run("IdempotentRequestWritesNothing", func(t *testing.T) {
		c := newServiceCheck(t, check.DirectionIncoming, 5)
		f := newServiceFixture(c)

		_, err := f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusCancelled})
		require.NoError(t, err)
		staged := len(f.outbox.intents)

		view, err := f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusCancelled})
		require.NoError(t, err)
		assert.Equal(t, 2, view.Check.Version)
		assert.Len(t, f.outbox.intents, staged)
		assert.Equal(t, 1, f.recorder.transitions["CANCEL/noop"])
	})
}

func TestCheckService_WritePathFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("ConcurrentModificationSkipsOutbox", func(t *testing.T) {
		c := newServiceCheck(t, check.DirectionIncoming, 5)
		repo := new(MockCheckRepository)
		writer := new(MockOutboxWriter)
		tx := &stubTxRunner{}
		svc := NewCheckService(newTestLogger(), Deps{CheckRepo: repo, Outbox: writer, Tx: tx})
		svc.now = func() time.Time { return testNow }

		repo.On("WithTx", mock.Anything).Return(repo)
		repo.On("LockForUpdate", ctx, c.Token).Return(c, nil).Once()
		repo.On("Update", ctx, mock.AnythingOfType("*check.Check")).
			Return(check.ErrConcurrentModification{Token: c.Token}).Once()

		_, err := svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusReturned})

		assert.ErrorIs(t, err, check.ErrConcurrentModification{})
		assert.Equal(t, 1, tx.rolledBack)
		writer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("OutboxFailureRollsBack", func(t *testing.T) {
		c := newServiceCheck(t, check.DirectionIncoming, 5)
		repo := new(MockCheckRepository)
		writer := new(MockOutboxWriter)
		tx := &stubTxRunner{}
		svc := NewCheckService(newTestLogger(), Deps{CheckRepo: repo, Outbox: writer, Tx: tx})

		repo.On("WithTx", mock.Anything).Return(repo)
		repo.On("LockForUpdate", ctx, c.Token).Return(c, nil).Once()
		repo.On("Update", ctx, mock.AnythingOfType("*check.Check")).Return(nil).Once()
		writer.On("Enqueue", ctx, mock.Anything, mock.AnythingOfType("[]*ledger.Intent"), "corr-1").
			Return(errors.New("insert failed")).Once()

		_, err := svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusReturned})

		assert.EqualError(t, err, "insert failed")
		assert.Equal(t, 1, tx.rolledBack)
		assert.Zero(t, tx.committed)
		writer.AssertExpectations(t)
	})

	t.Run("EngineRejectionTouchesNothing", func(t *testing.T) {
		c := newServiceCheck(t, check.DirectionIncoming, 5)
		repo := new(MockCheckRepository)
		writer := new(MockOutboxWriter)
		tx := &stubTxRunner{}
		svc := NewCheckService(newTestLogger(), Deps{CheckRepo: repo, Outbox: writer, Tx: tx})

		repo.On("WithTx", mock.Anything).Return(repo)
		repo.On("LockForUpdate", ctx, c.Token).Return(c, nil).Once()

		_, err := svc.UpdateDetails(ctx, ownerCall, c.Token, check.DetailsPatch{Amount: &decimal.Zero})

		var ve *check.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "amount", ve.Field)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		writer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCheckService_Settlement(t *testing.T) {
	ctx := context.Background()

	t.Run("SettleThenUnsettle", func(t *testing.T) {
		c := newServiceCheck(t, check.DirectionIncoming, 5)
		f := newServiceFixture(c)

		_, err := f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusReturned})
		require.NoError(t, err)

		settled, err := f.svc.Settle(ctx, ownerCall, c.Token, "pay-55")
		require.NoError(t, err)
		assert.Equal(t, report.BucketSettled, settled.Bucket)

		returned, err := f.svc.ListChecks(ctx, ListFilter{Bucket: "returned"})
		require.NoError(t, err)
		assert.Empty(t, returned)

		unsettled, err := f.svc.Unsettle(ctx, ownerCall, c.Token)
		require.NoError(t, err)
		assert.Equal(t, report.BucketReturned, unsettled.Bucket)

		kinds := make([]shared.IntentKind, 0, len(f.outbox.intents))
		for _, i := range f.outbox.intents {
			kinds = append(kinds, i.Kind)
		}
		assert.Equal(t, []shared.IntentKind{
			shared.IntentDebtReopened,
			shared.IntentSettlementLinked,
			shared.IntentSettlementReversed,
		}, kinds)
		assert.Equal(t, 1, f.recorder.settlements["settle/applied"])
		assert.Equal(t, 1, f.recorder.settlements["unsettle/applied"])
	})

	t.Run("ClerkCannotSettle", func(t *testing.T) {
		c := newServiceCheck(t, check.DirectionIncoming, 5)
		f := newServiceFixture(c)
		_, err := f.svc.UpdateStatus(ctx, clerkCall, c.Token, StatusRequest{Status: check.StatusReturned})
		require.NoError(t, err)

		_, err = f.svc.Settle(ctx, clerkCall, c.Token, "pay-1")
		assert.ErrorIs(t, err, check.ErrUnauthorized)
		assert.Equal(t, 1, f.recorder.settlements["settle/rejected"])
	})
}

func TestCheckService_UpdateDetails(t *testing.T) {
	ctx := context.Background()
	c := newServiceCheck(t, check.DirectionIncoming, 5)
	f := newServiceFixture(c)

	amount := decimal.RequireFromString("750")
	view, err := f.svc.UpdateDetails(ctx, ownerCall, c.Token, check.DetailsPatch{Amount: &amount})
	require.NoError(t, err)
	assert.True(t, view.Check.Amount.Equal(amount))

	require.Len(t, f.outbox.intents, 2)
	assert.Equal(t, "corr-2", f.outbox.intents[1].CorrelationID)
	assert.Equal(t, 1, f.recorder.transitions["UPDATE_DETAILS/applied"])
}

func TestCheckService_Reads(t *testing.T) {
	ctx := context.Background()
	overdueIn := newServiceCheck(t, check.DirectionIncoming, -2)
	overdueOut := newServiceCheck(t, check.DirectionOutgoing, -4)
	dueSoon := newServiceCheck(t, check.DirectionIncoming, 2)
	later := newServiceCheck(t, check.DirectionIncoming, 30)
	f := newServiceFixture(overdueIn, overdueOut, dueSoon, later)

	t.Run("ListByBucketAndDirection", func(t *testing.T) {
		views, err := f.svc.ListChecks(ctx, ListFilter{Direction: check.DirectionIncoming, Bucket: "overdue"})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, overdueIn.Token, views[0].Check.Token)
		assert.Equal(t, check.StatusOverdue, views[0].DisplayStatus)

		all, err := f.svc.ListChecks(ctx, ListFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("DueSoonDisplayState", func(t *testing.T) {
		view, err := f.svc.GetDetails(ctx, dueSoon.Token)
		require.NoError(t, err)
		assert.Equal(t, check.StatusPending, view.ResolvedStatus)
		assert.Equal(t, check.StatusDueSoon, view.DisplayStatus)
		assert.Equal(t, report.BucketPending, view.Bucket)
	})

	t.Run("UnknownBucket", func(t *testing.T) {
		_, err := f.svc.ListChecks(ctx, ListFilter{Bucket: "archived"})
		var ve *check.ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("Statistics", func(t *testing.T) {
		stats, err := f.svc.GetStatistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Incoming.OverdueCount)
		assert.Equal(t, 1, stats.Outgoing.OverdueCount)
		assert.True(t, stats.Incoming.OverdueAmount["ILS"].Equal(decimal.NewFromInt(900)))
	})
}

func TestCheckService_CreateCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("CapturesIssueRate", func(t *testing.T) {
		f := newServiceFixture()
		rate := &check.FXRate{Rate: decimal.RequireFromString("3.65"), Source: check.FXSourceOnline, RecordedAt: testNow}
		f.rates.On("Resolve", ctx, "USD", (*decimal.Decimal)(nil)).Return(rate, nil).Once()

		view, err := f.svc.CreateCheck(ctx, clerkCall, CreateRequest{
			Direction: check.DirectionOutgoing,
			Amount:    decimal.NewFromInt(400),
			Currency:  "usd",
			DueDate:   testNow.AddDate(0, 1, 0),
		})
		require.NoError(t, err)
		require.NotNil(t, view.Check.FXRateIssue)
		assert.Equal(t, check.FXSourceOnline, view.Check.FXRateIssue.Source)
		assert.Equal(t, "clerk-1", view.Check.CreatedBy)
		assert.Equal(t, []string{"entity", "bank", "check_number"}, view.MissingFields)

		stored, err := f.repo.GetByToken(ctx, view.Check.Token)
		require.NoError(t, err)
		assert.Equal(t, "USD", stored.Currency)
	})

	t.Run("InvalidAmountNeverStored", func(t *testing.T) {
		repo := new(MockCheckRepository)
		svc := NewCheckService(newTestLogger(), Deps{CheckRepo: repo})

		_, err := svc.CreateCheck(ctx, clerkCall, CreateRequest{
			Direction: check.DirectionIncoming,
			Amount:    decimal.Zero,
			DueDate:   testNow,
		})
		var ve *check.ValidationError
		require.ErrorAs(t, err, &ve)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestCheckService_GetIntents(t *testing.T) {
	ctx := context.Background()
	c := newServiceCheck(t, check.DirectionIncoming, 5)
	intentRepo := new(MockIntentRepository)
	svc := NewCheckService(newTestLogger(), Deps{CheckRepo: newMemCheckRepository(c), IntentRepo: intentRepo})

	intents := []*ledger.Intent{{Kind: shared.IntentDebtReopened, CheckToken: c.Token}}
	intentRepo.On("GetByCheckToken", ctx, c.Token, 10, 10).Return(intents, nil).Once()
	intentRepo.On("CountByCheckToken", ctx, c.Token).Return(int64(11), nil).Once()

	got, total, err := svc.GetIntents(ctx, c.Token, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, intents, got)
	assert.Equal(t, int64(11), total)
	intentRepo.AssertExpectations(t)

	_, _, err = svc.GetIntents(ctx, "chk_missing", 1, 10)
	assert.ErrorIs(t, err, check.ErrCheckNotFound{})
}

func TestCheckService_FirstIncomplete(t *testing.T) {
	ctx := context.Background()
	repo := new(MockCheckRepository)
	svc := NewCheckService(newTestLogger(), Deps{CheckRepo: repo})

	repo.On("FirstIncomplete", ctx).Return("chk_1", nil).Once()
	token, err := svc.FirstIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chk_1", token)
}
