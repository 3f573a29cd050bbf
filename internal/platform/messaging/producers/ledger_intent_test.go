package producers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
)

// MockKafkaWriter mocks KafkaWriter interface
type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testIntent() *ledger.Intent {
	return &ledger.Intent{
		ID:            uuid.New(),
		Kind:          shared.IntentDebtReopened,
		CheckToken:    "chk_42",
		Direction:     "INCOMING",
		EntityType:    "customer",
		EntityID:      "cust-1",
		Amount:        decimal.NewFromInt(300),
		Delta:         decimal.NewFromInt(300),
		Currency:      "ILS",
		Actor:         "clerk",
		CorrelationID: "corr-7",
		OccurredAt:    time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestIntentProducer_Publish(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	topic := "test-ledger-intents"
	ctx := context.Background()

	t.Run("KeyedByCheckToken", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &IntentProducer{logger: logger, writer: mockWriter, topic: topic}
		intent := testIntent()

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 {
				return false
			}
			msg := msgs[0]
			var decoded ledger.Intent
			if err := json.Unmarshal(msg.Value, &decoded); err != nil {
				return false
			}
			return string(msg.Key) == "chk_42" &&
				decoded.ID == intent.ID &&
				decoded.Delta.Equal(intent.Delta) &&
				headerValue(msg, headerIntentKind) == string(shared.IntentDebtReopened) &&
				headerValue(msg, headerCorrelationID) == "corr-7"
		})).Return(nil).Once()

		require.NoError(t, producer.Publish(ctx, intent))
		mockWriter.AssertExpectations(t)
	})

	t.Run("WriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &IntentProducer{logger: logger, writer: mockWriter, topic: topic}
		writerError := errors.New("leader not available")

		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerError).Once()

		err := producer.Publish(ctx, testIntent())
		require.Error(t, err)
		assert.ErrorIs(t, err, writerError)
		mockWriter.AssertExpectations(t)
	})
}

func TestIntentProducer_Close(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	t.Run("SuccessfulClose", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &IntentProducer{logger: logger, writer: mockWriter, topic: "t"}
		mockWriter.On("Close").Return(nil).Once()

		require.NoError(t, producer.Close())
		mockWriter.AssertExpectations(t)
	})

	t.Run("CloseError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &IntentProducer{logger: logger, writer: mockWriter, topic: "t"}
		closeError := errors.New("kafka close error")
		mockWriter.On("Close").Return(closeError).Once()

		assert.ErrorIs(t, producer.Close(), closeError)
		mockWriter.AssertExpectations(t)
	})
}

func TestBrokerList(t *testing.T) {
	assert.Equal(t, []string{"kafka1:9092", "kafka2:9092"}, brokerList("kafka1:9092, kafka2:9092,"))
	assert.Equal(t, []string{"localhost:9092"}, brokerList(""))
}

// Verify interface implementation
var (
	_ KafkaWriter         = (*MockKafkaWriter)(nil)
	_ IntentPublisher     = (*IntentProducer)(nil)
	_ DeadLetterPublisher = (*DLQProducer)(nil)
)
