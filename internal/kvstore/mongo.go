package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type entry struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per key in the "kv" collection.
// Entries never expire unless WithExpiry is set.
type MongoStore struct {
	collection *mongo.Collection
	expiry     time.Duration
}

type MongoOption func(*MongoStore)

// WithExpiry drops entries not written for d, via a TTL index built by CreateIndexes.
func WithExpiry(d time.Duration) MongoOption {
	return func(m *MongoStore) { m.expiry = d }
}

func NewMongoStore(db *mongo.Database, opts ...MongoOption) *MongoStore {
	m := &MongoStore{
		collection: db.Collection("kv"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MongoStore) Get(ctx context.Context, key string) (string, error) {
	var e entry

	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get key: %w", err)
	}

	return e.Value, nil
}

func (m *MongoStore) Set(ctx context.Context, key, value string) error {
	e := entry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	opts := options.Replace().SetUpsert(true)

	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": key}, e, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert key: %w", err)
	}

	return nil
}

func (m *MongoStore) Remove(ctx context.Context, key string) error {
	_, err := m.collection.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// CreateIndexes indexes updated_at, as a TTL index when an expiry is configured.
func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateMany(ctx, m.indexModels())
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *MongoStore) indexModels() []mongo.IndexModel {
	updatedAt := mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: 1}},
	}
	if m.expiry > 0 {
		updatedAt.Options = options.Index().SetExpireAfterSeconds(int32(m.expiry.Seconds()))
	}
	return []mongo.IndexModel{updatedAt}
}
