package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/outbox"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
	"github.com/garage-erp/check-lifecycle/internal/platform/messaging/producers"
)

// ErrUndecodable marks an outbox payload that can never be published. The
// poller parks such messages immediately instead of retrying them.
var ErrUndecodable = errors.New("undecodable outbox payload")

// LedgerPublisher hands one outbox message to the ledger collaborator
type LedgerPublisher interface {
	PublishToLedger(ctx context.Context, message *outbox.Message) error
}

// IntentRecorder counts intents by delivery stage. *metrics.Metrics satisfies it.
type IntentRecorder interface {
	IncIntent(kind, result string)
}

// LedgerPublisherImpl implements LedgerPublisher on top of the intent topic
type LedgerPublisherImpl struct {
	outboxRepo outbox.Repository
	intentRepo ledger.Repository
	producer   producers.IntentPublisher
	recorder   IntentRecorder
	logger     *slog.Logger
}

// NewLedgerPublisher creates a new publisher
func NewLedgerPublisher(
	outboxRepo outbox.Repository,
	intentRepo ledger.Repository,
	producer producers.IntentPublisher,
	recorder IntentRecorder,
	logger *slog.Logger,
) LedgerPublisher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &LedgerPublisherImpl{
		outboxRepo: outboxRepo,
		intentRepo: intentRepo,
		producer:   producer,
		recorder:   recorder,
		logger:     logger,
	}
}

// PublishToLedger publishes the intent carried by message, records it in the
// intent log and marks the message processed. Delivery is at-least-once: a
// crash after the publish replays the intent, and the ledger deduplicates on
// the intent ID.
func (p *LedgerPublisherImpl) PublishToLedger(ctx context.Context, message *outbox.Message) error {
	intent, err := message.Intent()
	if err != nil {
		p.logger.Error("Failed to decode ledger intent from outbox payload",
			"outbox_id", message.ID, "intent_id", message.IntentID, "error", err,
		)
		return fmt.Errorf("%w: outbox %d: %v", ErrUndecodable, message.ID, err)
	}

	logger := p.logger
	if intent.CorrelationID != "" {
		logger = p.logger.With("correlation_id", intent.CorrelationID)
	}
	logger = logger.With("outbox_id", message.ID, "intent_id", intent.ID.String(), "check_token", intent.CheckToken)

	logger.Debug("Publishing ledger intent", "kind", intent.Kind, "attempts", message.Attempts)

	if err := p.producer.Publish(ctx, intent); err != nil {
		return fmt.Errorf("failed to publish ledger intent %s: %w", intent.ID, err)
	}

	intent.Status = shared.IntentStatusPublished
	if err := p.intentRepo.Record(ctx, intent); err != nil {
		return fmt.Errorf("intent %s published, but failed to record it: %w", intent.ID, err)
	}
	// A replayed intent may already be logged under another status.
	if err := p.intentRepo.UpdateStatus(ctx, intent.ID, shared.IntentStatusPublished, ""); err != nil {
		return fmt.Errorf("intent %s published, but failed to update its status: %w", intent.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to mark outbox message as PROCESSED", "error", err)
		return fmt.Errorf("intent %s published, but failed to mark outbox %d as PROCESSED: %w", intent.ID, message.ID, err)
	}
	message.MarkAsProcessed()

	p.recorder.IncIntent(string(intent.Kind), "published")
	logger.Info("Ledger intent published", "kind", intent.Kind)
	return nil
}

type nopRecorder struct{}

func (nopRecorder) IncIntent(string, string) {}
