package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) (*MongoRepository, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	cleanup := func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return repo, cleanup
}

func TestMongoRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("AppendIsIdempotent", func(t *testing.T) {
		e := domain.TimelineEntry{EventID: 1, OrderID: 10, Type: domain.EventOrderPlaced, OccurredAt: base}
		require.NoError(t, repo.Append(ctx, e))
		e.Type = domain.EventOrderCompleted
		require.NoError(t, repo.Append(ctx, e))

		entries, err := repo.ListByOrder(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.EventOrderPlaced, entries[0].Type)
		assert.False(t, entries[0].ArchivedAt.IsZero())
	})

	t.Run("ListByOrderSortsByTime", func(t *testing.T) {
		require.NoError(t, repo.Append(ctx, domain.TimelineEntry{
			EventID: 3, OrderID: 20, SubOrderID: 5, VendorID: 2,
			Type: domain.EventSubOrderStatus, Status: domain.StatusAccepted, OccurredAt: base.Add(time.Minute),
		}))
		require.NoError(t, repo.Append(ctx, domain.TimelineEntry{
			EventID: 2, OrderID: 20, Type: domain.EventOrderPlaced, OccurredAt: base,
		}))

		entries, err := repo.ListByOrder(ctx, 20)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, int64(2), entries[0].EventID)
		assert.Equal(t, domain.StatusAccepted, entries[1].Status)
		assert.Equal(t, int64(5), entries[1].SubOrderID)
	})

	t.Run("UnknownOrderIsEmpty", func(t *testing.T) {
		entries, err := repo.ListByOrder(ctx, 999)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})
}
