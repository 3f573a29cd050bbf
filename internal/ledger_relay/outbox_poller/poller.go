package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garage-erp/check-lifecycle/internal/config"
	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/outbox"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
	"github.com/garage-erp/check-lifecycle/internal/platform/messaging/producers"
)

// BatchDispatcher runs one polled batch. *Dispatcher satisfies it.
type BatchDispatcher interface {
	Dispatch(ctx context.Context, messages []*outbox.Message, handle HandleFunc) (succeeded, deferred int, err error)
}

// BatchRecorder receives relay metrics. *metrics.Metrics satisfies it.
type BatchRecorder interface {
	IntentRecorder
	SetOutboxBatch(n int)
}

// Poller relays pending outbox messages to the ledger topic
type Poller struct {
	outboxRepo       outbox.Repository
	intentRepo       ledger.Repository
	ledgerPublisher  LedgerPublisher
	dlq              producers.DeadLetterPublisher
	dispatcher       BatchDispatcher
	recorder         BatchRecorder
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

// PollerDeps groups the collaborators of a Poller
type PollerDeps struct {
	OutboxRepo      outbox.Repository
	IntentRepo      ledger.Repository
	LedgerPublisher LedgerPublisher
	DLQ             producers.DeadLetterPublisher
	Dispatcher      BatchDispatcher
	Recorder        BatchRecorder
}

func NewPoller(cfg *config.OutboxConfig, deps PollerDeps, logger *slog.Logger) *Poller {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopBatchRecorder{}
	}
	return &Poller{
		outboxRepo:       deps.OutboxRepo,
		intentRepo:       deps.IntentRepo,
		ledgerPublisher:  deps.LedgerPublisher,
		dlq:              deps.DLQ,
		dispatcher:       deps.Dispatcher,
		recorder:         recorder,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			p.logger.Debug("Outbox Poller tick: processing pending messages")
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	p.recorder.SetOutboxBatch(len(messages))

	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return nil
	}

	p.logger.Info("Fetched pending outbox messages", "count", len(messages))

	succeeded, deferred, err := p.dispatcher.Dispatch(ctx, messages, p.relay)
	p.logger.Info("Outbox batch finished", "published", succeeded, "deferred", deferred)
	if err != nil {
		return fmt.Errorf("failed to dispatch outbox batch: %w", err)
	}
	return nil
}

// relay publishes one message. A failed attempt is counted; once the attempts
// are exhausted the message is parked and nil is returned so the check's later
// intents are not held back behind it.
func (p *Poller) relay(ctx context.Context, msg *outbox.Message) error {
	err := p.ledgerPublisher.PublishToLedger(ctx, msg)
	if err == nil {
		return nil
	}

	logger := p.logger.With("outbox_id", msg.ID, "intent_id", msg.IntentID.String(), "check_token", msg.CheckToken)
	logger.Error("Failed to publish outbox message to ledger", "current_attempts", msg.Attempts, "error", err)

	if errors.Is(err, ErrUndecodable) {
		return p.deadLetter(ctx, msg, err, logger)
	}

	if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
		logger.Error("Failed to increment attempts for outbox message", "error", errInc)
		return err
	}
	msg.IncrementAttempts()

	if msg.Attempts >= p.maxRetryAttempts {
		logger.Warn("Max retry attempts reached for outbox message", "attempts_made", msg.Attempts)
		return p.deadLetter(ctx, msg, err, logger)
	}

	p.recorder.IncIntent(kindOf(msg), "failed")
	return err
}

// deadLetter parks msg on the DLQ topic, marks it FAILED_TO_PUBLISH and logs
// the intent as DEAD_LETTERED.
func (p *Poller) deadLetter(ctx context.Context, msg *outbox.Message, cause error, logger *slog.Logger) error {
	reason := cause.Error()

	if errDLQ := p.dlq.PublishToDLQ(ctx, msg.CheckToken, msg.Payload, reason); errDLQ != nil {
		// Leave the message pending so the next poll tries again.
		logger.Error("Failed to publish outbox message to DLQ", "error", errDLQ)
		return fmt.Errorf("failed to dead-letter outbox %d: %w", msg.ID, errDLQ)
	}

	if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); errUpdate != nil {
		logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH", "error", errUpdate)
		return fmt.Errorf("failed to mark outbox %d as FAILED_TO_PUBLISH: %w", msg.ID, errUpdate)
	}
	msg.MarkAsFailed()

	if intent, err := msg.Intent(); err == nil {
		intent.Status = shared.IntentStatusDeadLettered
		intent.FailureReason = reason
		if errRec := p.intentRepo.Record(ctx, intent); errRec != nil {
			logger.Error("Failed to record dead-lettered intent", "error", errRec)
		} else if errUpd := p.intentRepo.UpdateStatus(ctx, intent.ID, shared.IntentStatusDeadLettered, reason); errUpd != nil {
			logger.Error("Failed to mark intent as DEAD_LETTERED", "error", errUpd)
		}
	}

	p.recorder.IncIntent(kindOf(msg), "dead_lettered")
	logger.Warn("Outbox message dead-lettered", "reason", reason)
	return nil
}

func kindOf(msg *outbox.Message) string {
	intent, err := msg.Intent()
	if err != nil {
		return "unknown"
	}
	return string(intent.Kind)
}

type nopBatchRecorder struct{ nopRecorder }

func (nopBatchRecorder) SetOutboxBatch(int) {}
