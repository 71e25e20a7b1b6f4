// Package pipeline moves collections between a MongoDB deployment and a
// backup set on disk, in bounded batches, through the type-preserving codec.
// Backup tolerates transient connection failures by resuming the cursor past
// the last document already flushed; restore is all-or-nothing up to the
// first insert failure.
package pipeline

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// DefaultBatchSize bounds how many documents are held in memory at once.
const DefaultBatchSize = 1000

// Stats is a collection's approximate footprint as reported by the server.
type Stats struct {
	Count     int64
	SizeBytes int64
}

// Cursor iterates a collection's documents in ascending _id order.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(out *bson.D) error
	Err() error
	Close(ctx context.Context) error
}

// Source is the read side of a MongoDB deployment.
type Source interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListCollections(ctx context.Context, database string) ([]string, error)
	// CollectionStats is best effort; callers treat a failure as unknown
	// size, never as a correctness signal.
	CollectionStats(ctx context.Context, database, collection string) (Stats, error)
	// FindOrdered returns a cursor over the collection sorted by ascending
	// _id, so a resume filter of {_id: {$gt: last}} continues exactly where
	// a broken cursor left off.
	FindOrdered(ctx context.Context, database, collection string, filter bson.D, batchSize int32) (Cursor, error)
}

// Destination is the write side of a MongoDB deployment.
type Destination interface {
	CollectionExists(ctx context.Context, database, collection string) (bool, error)
	CreateCollection(ctx context.Context, database, collection string) error
	DropCollection(ctx context.Context, database, collection string) error
	InsertMany(ctx context.Context, database, collection string, docs []bson.D) error
}

// Result reports how many documents a pipeline run moved. On a failed
// restore the count covers the batches inserted before the failure.
type Result struct {
	Documents int64
}

// ProgressFunc receives the cumulative document count after each flushed
// batch. Rendering is the caller's business; nil disables reporting.
type ProgressFunc func(done int64)

func (f ProgressFunc) report(done int64) {
	if f != nil {
		f(done)
	}
}
