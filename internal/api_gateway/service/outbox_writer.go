package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/outbox"
)

// OutboxWriterImpl writes one outbox row per ledger intent
type OutboxWriterImpl struct {
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

// NewOutboxWriter creates a new outbox writer
func NewOutboxWriter(outboxRepo outbox.Repository, logger *slog.Logger) OutboxWriter {
	return &OutboxWriterImpl{
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Enqueue stores intents in the outbox using tx, so they commit or roll back
// with the check update that produced them.
func (w *OutboxWriterImpl) Enqueue(ctx context.Context, tx pgx.Tx, intents []*ledger.Intent, correlationID string) error {
	if len(intents) == 0 {
		return nil
	}

	logger := w.logger
	if correlationID != "" {
		logger = w.logger.With("correlation_id", correlationID)
	}

	outboxRepoTx := w.outboxRepo.WithTx(tx)

	for _, intent := range intents {
		intent.CorrelationID = correlationID

		msg, err := outbox.NewMessage(intent)
		if err != nil {
			logger.Error("Failed to create outbox message (marshal payload)",
				"intent_id", intent.ID.String(),
				"error", err,
			)
			return fmt.Errorf("failed to create outbox message payload for intent %s: %w", intent.ID.String(), err)
		}

		if err := outboxRepoTx.Create(ctx, msg); err != nil {
			logger.Error("Failed to create outbox message",
				"intent_id", intent.ID.String(),
				"check_token", intent.CheckToken,
				"error", err,
			)
			return fmt.Errorf("failed to create outbox message for intent %s: %w", intent.ID.String(), err)
		}

		logger.Info("Outbox message created",
			"intent_id", intent.ID.String(),
			"kind", string(intent.Kind),
			"outbox_id", msg.ID,
		)
	}

	return nil
}
