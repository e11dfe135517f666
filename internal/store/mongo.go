package store

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"github.com/anusha9573/SmartRefridgerator/internal/inventory"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// MongoLedger stores one document per item in a collection with a unique
// index on name.
type MongoLedger struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects, pings the primary and ensures the name index.
func OpenMongo(ctx context.Context, cfg Config) (*MongoLedger, error) {
	cctx, cancel := withTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout).SetServerSelectionTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.MinConns))
	}

	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "store: mongo connect")
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrapf(err, "store: mongo ping %s", Redact(cfg.URI))
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(cctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("name_unique"),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "store: mongo ensure name index")
	}

	logger.Info("Store", "MongoDB ledger ready: %s db=%s collection=%s",
		Redact(cfg.URI), cfg.Database, cfg.Collection)
	return &MongoLedger{client: client, coll: coll}, nil
}

// Find implements inventory.Ledger.
func (m *MongoLedger) Find(ctx context.Context, name string) (types.InventoryRecord, bool, error) {
	var rec types.InventoryRecord
	err := m.coll.FindOne(ctx, bson.M{"name": name}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return types.InventoryRecord{}, false, nil
	}
	if err != nil {
		return types.InventoryRecord{}, false, errors.Wrapf(err, "store: find %s", name)
	}
	return rec, true, nil
}

// Increment upserts the record, creating {name, n, unit: null} when absent.
func (m *MongoLedger) Increment(ctx context.Context, name string, n int) (int, error) {
	update := bson.M{
		"$inc":         bson.M{"quantity": n},
		"$setOnInsert": bson.M{"unit": nil},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var rec types.InventoryRecord
	err := m.coll.FindOneAndUpdate(ctx, bson.M{"name": name}, update, opts).Decode(&rec)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced on a new name; the loser now finds the document.
		err = m.coll.FindOneAndUpdate(ctx, bson.M{"name": name}, update, opts).Decode(&rec)
	}
	if err != nil {
		return 0, errors.Wrapf(mongoWriteError(err), "store: increment %s", name)
	}
	return rec.Quantity, nil
}

// Decrement lowers quantity by n, clamped at zero, using an update pipeline.
// It never inserts.
func (m *MongoLedger) Decrement(ctx context.Context, name string, n int) (int, bool, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "quantity", Value: bson.D{{Key: "$max", Value: bson.A{
			0,
			bson.D{{Key: "$subtract", Value: bson.A{"$quantity", n}}},
		}}}}}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rec types.InventoryRecord
	err := m.coll.FindOneAndUpdate(ctx, bson.M{"name": name}, pipeline, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(mongoWriteError(err), "store: decrement %s", name)
	}
	return rec.Quantity, true, nil
}

// mongoWriteError marks failures that happen before a connection is in hand:
// no server could be selected or the pool had no connection to give. The
// driver already retries writes that fail after sending.
func mongoWriteError(err error) error {
	var sel topology.ServerSelectionError
	var wait topology.WaitQueueTimeoutError
	if errors.As(err, &sel) || errors.As(err, &wait) {
		return inventory.NotApplied(err)
	}
	return err
}

// List implements inventory.Ledger.
func (m *MongoLedger) List(ctx context.Context) ([]types.InventoryRecord, error) {
	cur, err := m.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "store: list")
	}
	out := []types.InventoryRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "store: list decode")
	}
	return out, nil
}

// Close disconnects the client.
func (m *MongoLedger) Close(ctx context.Context) error {
	return errors.Wrap(m.client.Disconnect(ctx), "store: mongo disconnect")
}
