package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const eventsCollection = "security_events"

// mongoRepository implements Repository on MongoDB.
type mongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a repository on db and ensures the per-user
// listing index exists.
func NewMongoRepository(ctx context.Context, db *mongo.Database) (Repository, error) {
	coll := db.Collection(eventsCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("idx_security_events_user"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating security events index: %w", err)
	}
	return &mongoRepository{coll: coll}, nil
}

// Log inserts a new event document with a fresh UUID.
func (r *mongoRepository) Log(ctx context.Context, event *Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.ID = uuid.NewString()

	if _, err := r.coll.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}
	return nil
}

// ListForUser returns the user's events, most recent first.
func (r *mongoRepository) ListForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.D{{Key: "user_id", Value: userID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing security events: %w", err)
	}

	var events []Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decoding security events: %w", err)
	}
	return events, nil
}
