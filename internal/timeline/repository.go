// Package timeline archives order events in MongoDB so an order's history can
// be replayed after the relational rows have moved on.
package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/fresh_grocery/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	// Append stores the entry once; a redelivered event id is ignored.
	Append(ctx context.Context, e domain.TimelineEntry) error
	ListByOrder(ctx context.Context, orderID int64) ([]domain.TimelineEntry, error)
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("order_timeline"),
	}
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "occurred_at", Value: 1}},
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoRepository) Append(ctx context.Context, e domain.TimelineEntry) error {
	if e.ArchivedAt.IsZero() {
		e.ArchivedAt = time.Now().UTC()
	}

	filter := bson.M{"event_id": e.EventID}
	update := bson.M{"$setOnInsert": e}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to append timeline entry: %w", err)
	}
	return nil
}

func (m *MongoRepository) ListByOrder(ctx context.Context, orderID int64) ([]domain.TimelineEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "event_id", Value: 1}})
	cursor, err := m.collection.Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]domain.TimelineEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode timeline: %w", err)
	}
	return entries, nil
}
