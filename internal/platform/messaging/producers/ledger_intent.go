package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/garage-erp/check-lifecycle/internal/config"
	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
)

const (
	headerIntentKind    = "intent-kind"
	headerCorrelationID = "correlation-id"
)

// IntentProducer writes ledger intents keyed by check token, so every intent
// of one check lands on the same partition in commit order.
type IntentProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewIntentProducer ensures the ledger topic exists and returns a synchronous producer.
func NewIntentProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*IntentProducer, error) {
	if cfg.LedgerTopic == "" {
		return nil, fmt.Errorf("kafka ledger topic is not configured")
	}

	brokers := brokerList(cfg.Brokers)
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for intent producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.LedgerTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure ledger topic %s exists: %w", cfg.LedgerTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.LedgerTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false, // The relay only marks an outbox row processed after the ack
		WriteTimeout: cfg.WriteTimeout,
	}

	return &IntentProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.LedgerTopic,
	}, nil
}

// Publish writes one intent and waits for the broker acknowledgement.
func (p *IntentProducer) Publish(ctx context.Context, intent *ledger.Intent) error {
	value, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger intent %s: %w", intent.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(intent.CheckToken),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerIntentKind, Value: []byte(intent.Kind)},
			{Key: headerCorrelationID, Value: []byte(intent.CorrelationID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish ledger intent",
			"topic", p.topic,
			"intent_id", intent.ID.String(),
			"check_token", intent.CheckToken,
			"error", err,
		)
		return fmt.Errorf("failed to publish ledger intent to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published ledger intent",
		"topic", p.topic,
		"intent_id", intent.ID.String(),
		"kind", intent.Kind,
	)
	return nil
}

func (p *IntentProducer) Close() error {
	p.logger.Info("Closing ledger intent producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
