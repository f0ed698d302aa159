// Package replicate copies the distinct customers of the enriched sales batch
// into a MongoDB collection, replacing whatever the collection held.
package replicate

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/logging"
	"github.com/JonMunkholm/retail-etl/internal/metrics"
)

// DefaultBatchSize is the number of documents per InsertMany call.
const DefaultBatchSize = 100_000

// DefaultCollection is the collection customers are replicated into.
const DefaultCollection = "clientes"

// Collection is the subset of *mongo.Collection the replicator uses.
type Collection interface {
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// Connect opens a client for uri and verifies it with a ping.
// Failures are reported as *core.SinkConnectionError.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &core.SinkConnectionError{Sink: "mongodb", Err: err}
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, &core.SinkConnectionError{Sink: "mongodb", Err: err}
	}
	return client, nil
}

// Result summarizes a replication.
type Result struct {
	Deleted  int64
	Inserted int
	Batches  int
}

// Replicator writes distinct key/attribute pairs as documents.
type Replicator struct {
	coll      Collection
	columns   []string
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a replicator writing the given columns of each distinct row to coll.
func New(coll Collection, columns []string, batchSize int, logger *slog.Logger, m *metrics.Metrics) *Replicator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Replicator{coll: coll, columns: columns, batchSize: batchSize, logger: logger, metrics: m}
}

// Replicate empties the collection, then inserts one document per distinct
// combination of the configured columns, in first-seen order.
func (r *Replicator) Replicate(ctx context.Context, b *core.Batch) (Result, error) {
	var result Result

	distinct, err := b.Distinct(r.columns...)
	if err != nil {
		return result, fmt.Errorf("replicate: %w", err)
	}
	docs := Documents(distinct)

	deleted, err := r.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return result, fmt.Errorf("clear collection: %w", err)
	}
	if deleted != nil {
		result.Deleted = deleted.DeletedCount
	}

	for start := 0; start < len(docs); start += r.batchSize {
		end := min(start+r.batchSize, len(docs))
		res, err := r.coll.InsertMany(ctx, docs[start:end])
		if err != nil {
			return result, fmt.Errorf("insert documents %d-%d: %w", start, end, err)
		}
		n := end - start
		if res != nil {
			n = len(res.InsertedIDs)
		}
		result.Inserted += n
		result.Batches++
		r.metrics.Replicated(n)
	}

	r.logger.Info("documents replicated",
		"deleted", result.Deleted,
		"inserted", result.Inserted,
		"batches", result.Batches,
	)
	return result, nil
}

// Documents converts each row of b into an ordered BSON document keyed by
// column name. Nulls become BSON null.
func Documents(b *core.Batch) []interface{} {
	docs := make([]interface{}, len(b.Rows))
	for i, row := range b.Rows {
		doc := make(bson.D, len(b.Columns))
		for j, col := range b.Columns {
			doc[j] = bson.E{Key: col.Name, Value: bsonValue(col, row[j])}
		}
		docs[i] = doc
	}
	return docs
}

func bsonValue(col core.Column, v core.Value) interface{} {
	if v.IsNull() {
		return nil
	}
	switch v.Type {
	case core.TypeInt:
		if col.Bits <= 32 {
			return int32(v.Int)
		}
		return v.Int
	case core.TypeFloat:
		return v.Float
	default:
		return v.Str
	}
}
