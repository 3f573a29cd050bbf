package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
)

const (
	// IntentCollectionName is the name of the intent log collection in MongoDB
	IntentCollectionName = "ledger_intents"
)

// intentDocument is the stored shape of a ledger.Intent. Amounts are kept as
// Decimal128 so the log can be aggregated server side without float drift.
type intentDocument struct {
	IntentID      string               `bson:"intent_id"`
	Kind          string               `bson:"kind"`
	CheckToken    string               `bson:"check_token"`
	Direction     string               `bson:"direction"`
	EntityType    string               `bson:"entity_type,omitempty"`
	EntityID      string               `bson:"entity_id,omitempty"`
	Amount        primitive.Decimal128 `bson:"amount"`
	Delta         primitive.Decimal128 `bson:"delta"`
	Currency      string               `bson:"currency"`
	PaymentRef    string               `bson:"payment_ref,omitempty"`
	Actor         string               `bson:"actor"`
	CorrelationID string               `bson:"correlation_id,omitempty"`
	OccurredAt    time.Time            `bson:"occurred_at"`
	Status        string               `bson:"status"`
	FailureReason string               `bson:"failure_reason,omitempty"`
	PublishedAt   *time.Time           `bson:"published_at,omitempty"`
}

func toDocument(i *ledger.Intent) (*intentDocument, error) {
	amount, err := primitive.ParseDecimal128(i.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("failed to encode amount: %w", err)
	}
	delta, err := primitive.ParseDecimal128(i.Delta.String())
	if err != nil {
		return nil, fmt.Errorf("failed to encode delta: %w", err)
	}
	return &intentDocument{
		IntentID:      i.ID.String(),
		Kind:          string(i.Kind),
		CheckToken:    i.CheckToken,
		Direction:     i.Direction,
		EntityType:    i.EntityType,
		EntityID:      i.EntityID,
		Amount:        amount,
		Delta:         delta,
		Currency:      i.Currency,
		PaymentRef:    i.PaymentRef,
		Actor:         i.Actor,
		CorrelationID: i.CorrelationID,
		OccurredAt:    i.OccurredAt.UTC(),
		Status:        string(i.Status),
		FailureReason: i.FailureReason,
		PublishedAt:   i.PublishedAt,
	}, nil
}

func (d *intentDocument) toIntent() (*ledger.Intent, error) {
	id, err := uuid.Parse(d.IntentID)
	if err != nil {
		return nil, fmt.Errorf("invalid intent id %q: %w", d.IntentID, err)
	}
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("invalid amount for intent %s: %w", d.IntentID, err)
	}
	delta, err := decimal.NewFromString(d.Delta.String())
	if err != nil {
		return nil, fmt.Errorf("invalid delta for intent %s: %w", d.IntentID, err)
	}
	return &ledger.Intent{
		ID:            id,
		Kind:          shared.IntentKind(d.Kind),
		CheckToken:    d.CheckToken,
		Direction:     d.Direction,
		EntityType:    d.EntityType,
		EntityID:      d.EntityID,
		Amount:        amount,
		Delta:         delta,
		Currency:      d.Currency,
		PaymentRef:    d.PaymentRef,
		Actor:         d.Actor,
		CorrelationID: d.CorrelationID,
		OccurredAt:    d.OccurredAt,
		Status:        shared.IntentStatus(d.Status),
		FailureReason: d.FailureReason,
		PublishedAt:   d.PublishedAt,
	}, nil
}

// IntentRepository implements the ledger.Repository interface for MongoDB
type IntentRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewIntentRepository creates a new MongoDB intent log repository
func NewIntentRepository(logger *slog.Logger, db *mongo.Database) *IntentRepository {
	return &IntentRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique intent_id index and the per-check lookup index.
func (r *IntentRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(IntentCollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "intent_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "check_token", Value: 1}, {Key: "occurred_at", Value: -1}},
		},
	})
	if err != nil {
		r.logger.Error("Failed to create intent indexes", "error", err)
		return fmt.Errorf("failed to create intent indexes: %w", err)
	}
	return nil
}

// Record stores the intent keyed by its ID. A redelivered intent matches the
// existing document and leaves it untouched.
func (r *IntentRepository) Record(ctx context.Context, intent *ledger.Intent) error {
	doc, err := toDocument(intent)
	if err != nil {
		return err
	}

	collection := r.db.Collection(IntentCollectionName)
	_, err = collection.UpdateOne(ctx,
		bson.M{"intent_id": doc.IntentID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// Two relays racing on the same upsert surface as a duplicate key.
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		r.logger.Error("Failed to record ledger intent",
			"intent_id", doc.IntentID,
			"check_token", intent.CheckToken,
			"error", err)
		return fmt.Errorf("failed to record ledger intent: %w", err)
	}

	return nil
}

// GetByID retrieves an intent by its ID.
// Returns ErrIntentNotFound if no intent was recorded under that ID.
func (r *IntentRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Intent, error) {
	collection := r.db.Collection(IntentCollectionName)

	var doc intentDocument
	err := collection.FindOne(ctx, bson.M{"intent_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrIntentNotFound{ID: id}
		}
		r.logger.Error("Failed to get ledger intent",
			"intent_id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get ledger intent: %w", err)
	}

	return doc.toIntent()
}

// GetByCheckToken returns the intents of one check, newest first.
func (r *IntentRepository) GetByCheckToken(ctx context.Context, token string, limit, offset int) ([]*ledger.Intent, error) {
	collection := r.db.Collection(IntentCollectionName)

	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, bson.M{"check_token": token}, opts)
	if err != nil {
		r.logger.Error("Failed to list ledger intents",
			"check_token", token,
			"error", err)
		return nil, fmt.Errorf("failed to list ledger intents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []intentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode ledger intents",
			"check_token", token,
			"error", err)
		return nil, fmt.Errorf("failed to decode ledger intents: %w", err)
	}

	intents := make([]*ledger.Intent, 0, len(docs))
	for i := range docs {
		intent, err := docs[i].toIntent()
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	return intents, nil
}

// CountByCheckToken returns how many intents were recorded for a check.
func (r *IntentRepository) CountByCheckToken(ctx context.Context, token string) (int64, error) {
	collection := r.db.Collection(IntentCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"check_token": token})
	if err != nil {
		r.logger.Error("Failed to count ledger intents",
			"check_token", token,
			"error", err)
		return 0, fmt.Errorf("failed to count ledger intents: %w", err)
	}
	return count, nil
}

// UpdateStatus records the delivery outcome of an intent.
func (r *IntentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status shared.IntentStatus, reason string) error {
	collection := r.db.Collection(IntentCollectionName)

	set := bson.M{
		"status":         string(status),
		"failure_reason": reason,
	}
	if status == shared.IntentStatusPublished {
		set["published_at"] = time.Now().UTC()
	}

	result, err := collection.UpdateOne(ctx, bson.M{"intent_id": id.String()}, bson.M{"$set": set})
	if err != nil {
		r.logger.Error("Failed to update ledger intent status",
			"intent_id", id.String(),
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update ledger intent status: %w", err)
	}

	if result.MatchedCount == 0 {
		return ledger.ErrIntentNotFound{ID: id}
	}
	return nil
}
