package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/skybrain/formrelay/internal/domain/ratelimit"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultDatabase   = "formrelay"
	defaultCollection = "rate_limits"
	defaultOpTimeout  = 2 * time.Second
	ttlIndexName      = "ttl_window_reset"
)

// MongoStore shares rate limit entries between instances through one
// collection keyed by limiter key. A TTL index on windowResetAt lets MongoDB
// reap expired windows on its own; Sweep does the same eagerly.
type MongoStore struct {
	client     *mongo.Client
	coll       *mongo.Collection
	database   string
	collection string
	opTimeout  time.Duration
	ownsClient bool
}

var _ ratelimit.Store = (*MongoStore)(nil)

type entryDocument struct {
	Key           string    `bson:"_id"`
	Attempts      int       `bson:"attempts"`
	WindowResetAt time.Time `bson:"windowResetAt"`
	// Allowed records the verdict of the last hit so it comes back with the
	// updated document.
	Allowed bool `bson:"allowed"`
}

// NewMongoStore connects to uri, verifies the connection and ensures the TTL index.
func NewMongoStore(ctx context.Context, uri string, opts ...MongoOption) (*MongoStore, error) {
	if uri == "" {
		return nil, ErrMissingURI
	}
	clientOptions := options.Client().ApplyURI(uri).SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping: %v", ErrConnect, err)
	}
	s, err := NewMongoStoreFromClient(ctx, client, opts...)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s.ownsClient = true
	return s, nil
}

// NewMongoStoreFromClient uses an existing client. Close leaves it connected.
func NewMongoStoreFromClient(ctx context.Context, client *mongo.Client, opts ...MongoOption) (*MongoStore, error) {
	s := &MongoStore{
		client:     client,
		database:   defaultDatabase,
		collection: defaultCollection,
		opTimeout:  defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.coll = client.Database(s.database).Collection(s.collection)
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "windowResetAt", Value: 1}},
		Options: options.Index().SetName(ttlIndexName).SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("%w: create ttl index: %v", ErrOperation, err)
	}
	return nil
}

// Hit applies ratelimit.Advance in a single FindOneAndUpdate, so concurrent
// hits from any number of instances are serialised by the server.
func (s *MongoStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, ceiling int) (ratelimit.Entry, bool, error) {
	if key == "" {
		return ratelimit.Entry{}, false, ErrEmptyKey
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	update := hitPipeline(now.UTC(), window, ceiling)
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc entryDocument
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Two first hits raced on the upsert; the loser now finds the document.
		err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&doc)
	}
	if err != nil {
		return ratelimit.Entry{}, false, fmt.Errorf("%w: hit %q: %v", ErrOperation, key, err)
	}
	return ratelimit.Entry{Attempts: doc.Attempts, WindowResetAt: doc.WindowResetAt}, doc.Allowed, nil
}

// hitPipeline is ratelimit.Advance as an update pipeline. Every expression in
// the $set stage sees the document as it was before the stage.
func hitPipeline(now time.Time, window time.Duration, ceiling int) mongo.Pipeline {
	// An upserted document has neither field; it counts as expired.
	expired := bson.M{"$lt": bson.A{bson.M{"$ifNull": bson.A{"$windowResetAt", time.Unix(0, 0).UTC()}}, now}}
	attempts := bson.M{"$ifNull": bson.A{"$attempts", 0}}
	underCeiling := bson.M{"$lt": bson.A{attempts, ceiling}}

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"allowed": bson.M{"$or": bson.A{expired, underCeiling}},
			"attempts": bson.M{"$cond": bson.A{
				expired,
				1,
				bson.M{"$cond": bson.A{underCeiling, bson.M{"$add": bson.A{attempts, 1}}, attempts}},
			}},
			"windowResetAt": bson.M{"$cond": bson.A{expired, now.Add(window), "$windowResetAt"}},
		}}},
	}
}

// Sweep deletes documents whose window ended before now.
func (s *MongoStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	res, err := s.coll.DeleteMany(ctx, bson.M{"windowResetAt": bson.M{"$lt": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("%w: sweep: %v", ErrOperation, err)
	}
	return int(res.DeletedCount), nil
}

func (s *MongoStore) Len(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrOperation, err)
	}
	return int(n), nil
}

// Close disconnects the client if this store created it.
func (s *MongoStore) Close(ctx context.Context) error {
	if !s.ownsClient {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("%w: disconnect: %v", ErrOperation, err)
	}
	return nil
}
