package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/garage-erp/check-lifecycle/internal/domain/check"
	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/report"
	"github.com/garage-erp/check-lifecycle/internal/platform/fx"
	"github.com/garage-erp/check-lifecycle/internal/platform/metrics"
)

const (
	operationSettle   = "settle"
	operationUnsettle = "unsettle"
)

var _ CheckService = (*CheckServiceImpl)(nil)

// Deps groups the collaborators of the check service
type Deps struct {
	CheckRepo     check.Repository
	IntentRepo    ledger.Repository
	Outbox        OutboxWriter
	Tx            TxRunner
	Rates         RateResolver // Optional; without it cash and issue rates stay empty
	Recorder      Recorder     // Optional
	DueSoonWindow time.Duration
}

// CheckServiceImpl implements the CheckService interface
type CheckServiceImpl struct {
	checkRepo  check.Repository
	intentRepo ledger.Repository
	outbox     OutboxWriter
	tx         TxRunner
	rates      RateResolver
	recorder   Recorder
	dueSoon    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewCheckService creates a new check service
func NewCheckService(logger *slog.Logger, deps Deps) *CheckServiceImpl {
	s := &CheckServiceImpl{
		checkRepo:  deps.CheckRepo,
		intentRepo: deps.IntentRepo,
		outbox:     deps.Outbox,
		tx:         deps.Tx,
		rates:      deps.Rates,
		recorder:   deps.Recorder,
		dueSoon:    deps.DueSoonWindow,
		now:        time.Now,
		logger:     logger,
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	return s
}

// ListChecks loads the checks matching the storage filters and keeps those in
// the requested bucket.
func (s *CheckServiceImpl) ListChecks(ctx context.Context, filter ListFilter) ([]*CheckView, error) {
	if filter.Direction != "" && !filter.Direction.Valid() {
		return nil, &check.ValidationError{Field: "direction", Message: "direction must be INCOMING or OUTGOING"}
	}
	if filter.Source != "" && !filter.Source.Valid() {
		return nil, &check.ValidationError{Field: "source", Message: "unknown check source"}
	}
	bucket := report.BucketAll
	if filter.Bucket != "" {
		b, ok := report.ParseBucket(filter.Bucket)
		if !ok {
			return nil, &check.ValidationError{Field: "status", Message: "unknown status filter " + filter.Bucket}
		}
		bucket = b
	}

	checks, err := s.checkRepo.List(ctx, check.ListFilter{Direction: filter.Direction, Source: filter.Source})
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]*CheckView, 0, len(checks))
	for _, c := range checks {
		v := newView(c, now, s.dueSoon)
		if bucket != report.BucketAll && v.Bucket != bucket {
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

// GetStatistics computes the overdue summaries over every stored check
func (s *CheckServiceImpl) GetStatistics(ctx context.Context) (*report.Statistics, error) {
	checks, err := s.checkRepo.List(ctx, check.ListFilter{})
	if err != nil {
		return nil, err
	}
	stats := report.Compute(checks, s.now())
	return &stats, nil
}

// GetDetails retrieves a check by its token, returns ErrCheckNotFound if not found
func (s *CheckServiceImpl) GetDetails(ctx context.Context, token string) (*CheckView, error) {
	c, err := s.checkRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return newView(c, s.now(), s.dueSoon), nil
}

// GetIntents retrieves a page of the check's published intents and the total count
func (s *CheckServiceImpl) GetIntents(ctx context.Context, token string, page, perPage int) ([]*ledger.Intent, int64, error) {
	if _, err := s.checkRepo.GetByToken(ctx, token); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage

	intents, err := s.intentRepo.GetByCheckToken(ctx, token, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.intentRepo.CountByCheckToken(ctx, token)
	if err != nil {
		return nil, 0, err
	}

	return intents, total, nil
}

// CreateCheck validates req, captures the issue rate and stores the check
func (s *CheckServiceImpl) CreateCheck(ctx context.Context, caller Caller, req CreateRequest) (*CheckView, error) {
	logger := s.loggerFor(caller)
	now := s.now()

	c, err := check.NewCheck(check.NewCheckParams{
		Source:      req.Source,
		Direction:   req.Direction,
		Amount:      req.Amount,
		Currency:    req.Currency,
		DueDate:     req.DueDate,
		Bank:        req.Bank,
		CheckNumber: req.CheckNumber,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Notes:       req.Notes,
		CreatedBy:   caller.Actor.ID,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	if c.FXRateIssue, err = s.resolveRate(ctx, c.Currency, req.FXRate); err != nil {
		return nil, err
	}

	if err := s.checkRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	logger.Info("Check recorded",
		"token", c.Token,
		"direction", string(c.Direction),
		"amount", c.Amount.String(),
		"currency", c.Currency,
	)
	return newView(c, now, s.dueSoon), nil
}

// UpdateDetails applies an owner edit to the check's fields
func (s *CheckServiceImpl) UpdateDetails(ctx context.Context, caller Caller, token string, patch check.DetailsPatch) (*CheckView, error) {
	tc := s.transitionContext(caller)

	out, err := s.mutate(ctx, caller, token, string(check.ActionUpdateDetails), func(c *check.Check) (*check.Outcome, error) {
		return check.ApplyDetails(c, patch, tc)
	})
	s.recorder.IncTransition(string(check.ActionUpdateDetails), outcomeLabel(out, err))
	if err != nil {
		return nil, err
	}
	return newView(out.Check, tc.Now, s.dueSoon), nil
}

// UpdateStatus maps the requested status to an action and runs it. The cash
// exchange rate is resolved before the transaction starts.
func (s *CheckServiceImpl) UpdateStatus(ctx context.Context, caller Caller, token string, req StatusRequest) (*CheckView, error) {
	target, ok := check.ParseStatus(string(req.Status))
	if !ok {
		return nil, &check.ValidationError{Field: "status", Message: "unknown status " + string(req.Status)}
	}

	tc := s.transitionContext(caller)
	tc.ReturnReason = req.ReturnReason
	tc.Comment = req.Notes

	if target == check.StatusCashed {
		current, err := s.checkRepo.GetByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if current.FXRateCash == nil {
			if tc.FXRate, err = s.resolveRate(ctx, current.Currency, req.FXRate); err != nil {
				return nil, err
			}
		}
	}

	action := check.Action(target)
	out, err := s.mutate(ctx, caller, token, "update_status", func(c *check.Check) (*check.Outcome, error) {
		a, err := check.ActionForTarget(c, target, tc.Now)
		if err != nil {
			return nil, err
		}
		action = a
		return check.Transition(c, a, tc)
	})
	s.recorder.IncTransition(string(action), outcomeLabel(out, err))
	if err != nil {
		return nil, err
	}
	return newView(out.Check, tc.Now, s.dueSoon), nil
}

// Settle links a returned or bounced check to paymentRef
func (s *CheckServiceImpl) Settle(ctx context.Context, caller Caller, token, paymentRef string) (*CheckView, error) {
	tc := s.transitionContext(caller)

	out, err := s.mutate(ctx, caller, token, operationSettle, func(c *check.Check) (*check.Outcome, error) {
		return check.Settle(c, paymentRef, tc)
	})
	s.recorder.IncSettlement(operationSettle, outcomeLabel(out, err))
	if err != nil {
		return nil, err
	}
	return newView(out.Check, tc.Now, s.dueSoon), nil
}

// Unsettle reverses the check's settlement
func (s *CheckServiceImpl) Unsettle(ctx context.Context, caller Caller, token string) (*CheckView, error) {
	tc := s.transitionContext(caller)

	out, err := s.mutate(ctx, caller, token, operationUnsettle, func(c *check.Check) (*check.Outcome, error) {
		return check.Unsettle(c, tc)
	})
	s.recorder.IncSettlement(operationUnsettle, outcomeLabel(out, err))
	if err != nil {
		return nil, err
	}
	return newView(out.Check, tc.Now, s.dueSoon), nil
}

// FirstIncomplete returns the oldest check still missing required data
func (s *CheckServiceImpl) FirstIncomplete(ctx context.Context) (string, error) {
	return s.checkRepo.FirstIncomplete(ctx)
}

// mutate runs one guarded read-modify-write: lock the row, apply the engine,
// write the new version and stage its intents, all in a single transaction.
// No-op outcomes write nothing.
func (s *CheckServiceImpl) mutate(ctx context.Context, caller Caller, token, operation string, apply func(c *check.Check) (*check.Outcome, error)) (*check.Outcome, error) {
	logger := s.loggerFor(caller).With("token", token, "operation", operation)

	var outcome *check.Outcome
	err := s.tx.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repo := s.checkRepo.WithTx(tx)

		current, err := repo.LockForUpdate(ctx, token)
		if err != nil {
			return err
		}

		out, err := apply(current)
		if err != nil {
			return err
		}
		if out.NoOp {
			outcome = out
			return nil
		}

		if err := repo.Update(ctx, out.Check); err != nil {
			return err
		}
		if err := s.outbox.Enqueue(ctx, tx, out.Intents, caller.CorrelationID); err != nil {
			return err
		}

		outcome = out
		return nil
	})
	if err != nil {
		switch {
		case check.IsClientError(err):
			logger.Info("Check operation rejected", "actor", caller.Actor.ID, "reason", err.Error())
		case check.IsRetryable(err):
			logger.Warn("Check operation lost a concurrent update", "actor", caller.Actor.ID)
		default:
			logger.Error("Check operation failed", "actor", caller.Actor.ID, "error", err)
		}
		return nil, err
	}

	if outcome.NoOp {
		logger.Info("Check operation was a no-op", "actor", caller.Actor.ID)
	} else {
		logger.Info("Check operation applied",
			"actor", caller.Actor.ID,
			"version", outcome.Check.Version,
			"intents", len(outcome.Intents),
		)
	}
	return outcome, nil
}

// resolveRate returns nil without error when no rate is available; the event
// is then recorded without one.
func (s *CheckServiceImpl) resolveRate(ctx context.Context, currency string, manual *decimal.Decimal) (*check.FXRate, error) {
	if s.rates == nil {
		return nil, nil
	}
	rate, err := s.rates.Resolve(ctx, currency, manual)
	if err != nil {
		if errors.Is(err, fx.ErrNoRate) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve exchange rate: %w", err)
	}
	return rate, nil
}

func (s *CheckServiceImpl) transitionContext(caller Caller) check.TransitionContext {
	return check.TransitionContext{Actor: caller.Actor, Now: s.now()}
}

func (s *CheckServiceImpl) loggerFor(caller Caller) *slog.Logger {
	if caller.CorrelationID != "" {
		return s.logger.With("correlation_id", caller.CorrelationID)
	}
	return s.logger
}

func outcomeLabel(out *check.Outcome, err error) string {
	switch {
	case err != nil && check.IsClientError(err):
		return metrics.OutcomeRejected
	case err != nil:
		return metrics.OutcomeFailed
	case out.NoOp:
		return metrics.OutcomeNoOp
	}
	return metrics.OutcomeApplied
}

type nopRecorder struct{}

func (nopRecorder) IncTransition(string, string) {}
func (nopRecorder) IncSettlement(string, string) {}
