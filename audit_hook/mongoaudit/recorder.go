// Package mongoaudit persists audit events to a MongoDB collection.
package mongoaudit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	audithook "github.com/Kushagra2569/transaction-service/audit_hook"
)

// DefaultCollection is the collection audit events are written to.
const DefaultCollection = "audit_logs"

// compile-time interface check
var _ audithook.Recorder = (*Recorder)(nil)

// Recorder writes audit events to MongoDB. Events are keyed by their ID,
// so recording the same event twice keeps the first copy.
type Recorder struct {
	col *mongo.Collection
}

// Option configures a Recorder.
type Option func(*config)

type config struct {
	collection string
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(c *config) { c.collection = name }
}

// New creates a Recorder on db.
func New(db *mongo.Database, opts ...Option) *Recorder {
	cfg := config{collection: DefaultCollection}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Recorder{col: db.Collection(cfg.collection)}
}

// EnsureIndexes creates the lookup indexes used by Find.
func (r *Recorder) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "actor", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "resource_id", Value: 1}}},
		{Keys: bson.D{{Key: "severity", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongoaudit: create indexes: %w", err)
	}
	return nil
}

// Record implements audithook.Recorder.
func (r *Recorder) Record(ctx context.Context, event *audithook.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mongoaudit: insert %s: %w", event.Action, err)
	}
	return nil
}

// Filter narrows Find. Empty fields match everything.
type Filter struct {
	Actor      string
	ResourceID string
	Severity   string
	Limit      int64
}

// Find returns events matching f, newest first.
func (r *Recorder) Find(ctx context.Context, f Filter) ([]*audithook.AuditEvent, error) {
	filter := bson.M{}
	if f.Actor != "" {
		filter["actor"] = f.Actor
	}
	if f.ResourceID != "" {
		filter["resource_id"] = f.ResourceID
	}
	if f.Severity != "" {
		filter["severity"] = f.Severity
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongoaudit: find: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*audithook.AuditEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("mongoaudit: decode: %w", err)
	}
	for _, e := range events {
		e.Timestamp = e.Timestamp.UTC()
	}
	return events, nil
}
