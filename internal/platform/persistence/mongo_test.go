package persistence

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMongoDB_Database(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	// mongo.Connect does not dial, so an unreachable URI still yields a client.
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(context.Background()) }()

	mdb := &MongoDB{
		logger:   logger,
		client:   client,
		database: client.Database("garage_checks"),
	}
	assert.Equal(t, "garage_checks", mdb.Database().Name())

	t.Run("PingTimesOut", func(t *testing.T) {
		err := mdb.Ping(context.Background(), 50*time.Millisecond)
		assert.Error(t, err)
	})
}
