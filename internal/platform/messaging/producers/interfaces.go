package producers

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
)

// IntentPublisher hands ledger intents to the external ledger's topic
type IntentPublisher interface {
	Publish(ctx context.Context, intent *ledger.Intent) error
	Close() error
}

// DeadLetterPublisher handles publishing messages to a Dead Letter Queue
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
