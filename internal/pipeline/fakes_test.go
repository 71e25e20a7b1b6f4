package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeSource serves in-memory collections in ascending _id order, with
// scripted cursor failures to exercise the retry path.
type fakeSource struct {
	database    string
	collections map[string][]bson.D

	// failures[i] is how many documents cursor attempt i delivers before
	// failing with failErr; attempts beyond the slice run to completion.
	failures []int
	failErr  error

	finds   int
	filters []bson.D

	statsErr error
}

func newFakeSource(docs []bson.D) *fakeSource {
	return &fakeSource{
		database:    "app",
		collections: map[string][]bson.D{"events": docs},
	}
}

func (s *fakeSource) ListDatabases(ctx context.Context) ([]string, error) {
	return []string{s.database}, nil
}

func (s *fakeSource) ListCollections(ctx context.Context, database string) ([]string, error) {
	if database != s.database {
		return nil, nil
	}
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeSource) CollectionStats(ctx context.Context, database, collection string) (Stats, error) {
	if s.statsErr != nil {
		return Stats{}, s.statsErr
	}
	docs := s.collections[collection]
	return Stats{Count: int64(len(docs)), SizeBytes: int64(len(docs) * 64)}, nil
}

func (s *fakeSource) FindOrdered(
	ctx context.Context,
	database, collection string,
	filter bson.D,
	batchSize int32,
) (Cursor, error) {
	attempt := s.finds
	s.finds++
	s.filters = append(s.filters, filter)

	docs := s.collections[collection]
	if len(filter) == 1 && filter[0].Key == "_id" {
		gt := filter[0].Value.(bson.D)[0].Value.(primitive.ObjectID)
		for len(docs) > 0 {
			id := mustID(docs[0])
			if bytes.Compare(id[:], gt[:]) > 0 {
				break
			}
			docs = docs[1:]
		}
	}

	limit := -1
	if attempt < len(s.failures) {
		limit = s.failures[attempt]
	}
	return &fakeCursor{docs: docs, limit: limit, err: s.failErr}, nil
}

// fakeCursor yields docs until its scripted limit, then reports err.
type fakeCursor struct {
	docs   []bson.D
	limit  int
	err    error
	pos    int
	cur    bson.D
	failed bool
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if c.limit >= 0 && c.pos >= c.limit {
		c.failed = true
		return false
	}
	if c.pos >= len(c.docs) {
		return false
	}
	c.cur = c.docs[c.pos]
	c.pos++
	return true
}

func (c *fakeCursor) Decode(out *bson.D) error {
	*out = c.cur
	return nil
}

func (c *fakeCursor) Err() error {
	if c.failed {
		return c.err
	}
	return nil
}

func (c *fakeCursor) Close(ctx context.Context) error { return nil }

// fakeDest records mutations against in-memory collections.
type fakeDest struct {
	collections map[string][]bson.D
	created     []string
	dropped     []string

	inserts      int
	failOnInsert int // 1-based InsertMany call to fail; 0 = never
}

func newFakeDest() *fakeDest {
	return &fakeDest{collections: map[string][]bson.D{}}
}

func (d *fakeDest) CollectionExists(ctx context.Context, database, collection string) (bool, error) {
	_, ok := d.collections[collection]
	return ok, nil
}

func (d *fakeDest) CreateCollection(ctx context.Context, database, collection string) error {
	d.created = append(d.created, collection)
	d.collections[collection] = []bson.D{}
	return nil
}

func (d *fakeDest) DropCollection(ctx context.Context, database, collection string) error {
	d.dropped = append(d.dropped, collection)
	delete(d.collections, collection)
	return nil
}

func (d *fakeDest) InsertMany(ctx context.Context, database, collection string, docs []bson.D) error {
	d.inserts++
	if d.failOnInsert > 0 && d.inserts == d.failOnInsert {
		return fmt.Errorf("bulk write exception")
	}
	d.collections[collection] = append(d.collections[collection], docs...)
	return nil
}

// seqDocs builds n documents with strictly ascending ObjectIds.
func seqDocs(n int) []bson.D {
	docs := make([]bson.D, n)
	for i := range docs {
		docs[i] = bson.D{
			{Key: "_id", Value: seqID(i)},
			{Key: "n", Value: int64(i)},
			{Key: "name", Value: fmt.Sprintf("doc-%03d", i)},
		}
	}
	return docs
}

func seqID(i int) primitive.ObjectID {
	var id primitive.ObjectID
	id[10] = byte(i >> 8)
	id[11] = byte(i)
	return id
}

func mustID(doc bson.D) primitive.ObjectID {
	id, ok := documentID(doc)
	if !ok {
		panic("document without _id")
	}
	return id.(primitive.ObjectID)
}
