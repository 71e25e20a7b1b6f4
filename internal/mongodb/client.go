// Package mongodb adapts the official driver to the pipeline's Source and
// Destination interfaces.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/rdjellab/mongosnap/internal/logger"
	"github.com/rdjellab/mongosnap/internal/pipeline"
)

const defaultConnectTimeout = 10 * time.Second

// Options configures a connection.
type Options struct {
	URI            string
	ConnectTimeout time.Duration
	Log            logger.Logger
}

// Client wraps a driver client behind the pipeline interfaces.
type Client struct {
	mc  *mongo.Client
	log logger.Logger
}

var (
	_ pipeline.Source      = (*Client)(nil)
	_ pipeline.Destination = (*Client)(nil)
)

// Connect dials the deployment and verifies it with a ping.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mc, err := mongo.Connect(dialCtx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", classify(err))
	}
	if err := mc.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", classify(err))
	}

	log.Debug("connected to mongodb")
	return &Client{mc: mc, log: log}, nil
}

// Close tears the connection down.
func (c *Client) Close(ctx context.Context) error {
	return c.mc.Disconnect(ctx)
}

func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	names, err := c.mc.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, classify(err)
	}
	return names, nil
}

func (c *Client) ListCollections(ctx context.Context, database string) ([]string, error) {
	names, err := c.mc.Database(database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, classify(err)
	}
	return names, nil
}

// CollectionStats runs collStats and picks out the count and size fields.
// The command's shape varies across server versions, so the reply is decoded
// loosely with mapstructure rather than a fixed struct.
func (c *Client) CollectionStats(ctx context.Context, database, collection string) (pipeline.Stats, error) {
	res := c.mc.Database(database).RunCommand(ctx, bson.D{{Key: "collStats", Value: collection}})

	var raw bson.M
	if err := res.Decode(&raw); err != nil {
		return pipeline.Stats{}, classify(err)
	}

	var decoded struct {
		Count int64 `mapstructure:"count"`
		Size  int64 `mapstructure:"size"`
	}
	cfg := &mapstructure.DecoderConfig{
		Result:           &decoded,
		WeaklyTypedInput: true,
	}
	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return pipeline.Stats{}, err
	}
	if err := dec.Decode(map[string]any(raw)); err != nil {
		return pipeline.Stats{}, fmt.Errorf("decode collStats reply: %w", err)
	}

	return pipeline.Stats{Count: decoded.Count, SizeBytes: decoded.Size}, nil
}

func (c *Client) FindOrdered(
	ctx context.Context,
	database, collection string,
	filter bson.D,
	batchSize int32,
) (pipeline.Cursor, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetBatchSize(batchSize)
	cur, err := c.mc.Database(database).Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, classify(err)
	}
	return &cursor{cur: cur}, nil
}

func (c *Client) CollectionExists(ctx context.Context, database, collection string) (bool, error) {
	names, err := c.mc.Database(database).ListCollectionNames(
		ctx,
		bson.D{{Key: "name", Value: collection}},
	)
	if err != nil {
		return false, classify(err)
	}
	return len(names) > 0, nil
}

func (c *Client) CreateCollection(ctx context.Context, database, collection string) error {
	if err := c.mc.Database(database).CreateCollection(ctx, collection); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) DropCollection(ctx context.Context, database, collection string) error {
	if err := c.mc.Database(database).Collection(collection).Drop(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) InsertMany(ctx context.Context, database, collection string, docs []bson.D) error {
	payload := make([]any, len(docs))
	for i, doc := range docs {
		payload[i] = doc
	}
	_, err := c.mc.Database(database).Collection(collection).InsertMany(ctx, payload)
	if err != nil {
		return classify(err)
	}
	return nil
}

// cursor adapts *mongo.Cursor, classifying iteration errors so the backup
// pipeline can tell a dropped connection from a real failure.
type cursor struct {
	cur *mongo.Cursor
}

func (c *cursor) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

func (c *cursor) Decode(out *bson.D) error {
	return c.cur.Decode(out)
}

func (c *cursor) Err() error {
	return classify(c.cur.Err())
}

func (c *cursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}
