package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/3disturbed/BlackBoard/pkg/compress"
)

// mongoBackend stores one document per (section, key) in a single collection.
// The composite "section/key" string is the document _id; the section is kept
// as an indexed field so DeleteMany stays a single server-side operation.
type mongoBackend struct {
	client     *mongo.Client
	coll       *mongo.Collection
	compressor compress.Compressor
}

// mongoDoc is the collection schema. Value holds the compressed JSON
// encoding of the opaque payload.
type mongoDoc struct {
	ID        string    `bson:"_id"`
	Section   string    `bson:"section"`
	Key       string    `bson:"key"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func newMongo(ctx context.Context, cfg Config, comp compress.Compressor) (*mongoBackend, error) {
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, errors.New("mongo backend requires database and collection names")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	// Index the section field so DeleteMany is a single indexed pass.
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "section", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create section index: %w", err)
	}

	return &mongoBackend{client: client, coll: coll, compressor: comp}, nil
}

func (m *mongoBackend) Read(ctx context.Context, section, key string) (any, error) {
	var doc mongoDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": docID(section, key)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: find one: %w", ErrUnavailable, err)
	}

	value, err := decodeValue(doc.Value, m.compressor)
	if err != nil {
		return nil, fmt.Errorf("decode document %q: %w", doc.ID, err)
	}
	return value, nil
}

func (m *mongoBackend) UpsertOne(ctx context.Context, section, key string, value any) error {
	doc, err := m.document(section, key, value)
	if err != nil {
		return err
	}

	_, err = m.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: upsert %q: %w", ErrUnavailable, doc.ID, err)
	}
	return nil
}

func (m *mongoBackend) DeleteOne(ctx context.Context, section, key string) error {
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": docID(section, key)})
	if err != nil {
		return fmt.Errorf("%w: delete one: %w", ErrUnavailable, err)
	}
	return nil
}

func (m *mongoBackend) DeleteMany(ctx context.Context, section string) error {
	_, err := m.coll.DeleteMany(ctx, bson.M{"section": section})
	if err != nil {
		return fmt.Errorf("%w: delete section %q: %w", ErrUnavailable, section, err)
	}
	return nil
}

func (m *mongoBackend) BulkUpsert(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		doc, err := m.document(w.Section, w.Key, w.Value)
		if err != nil {
			return err
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	// Ordered keeps issuance order within the batch.
	_, err := m.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("%w: bulk upsert of %d writes: %w", ErrUnavailable, len(writes), err)
	}
	return nil
}

func (m *mongoBackend) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return nil
}

func (m *mongoBackend) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

func (m *mongoBackend) document(section, key string, value any) (mongoDoc, error) {
	b, err := encodeValue(value, m.compressor)
	if err != nil {
		return mongoDoc{}, err
	}
	return mongoDoc{
		ID:        docID(section, key),
		Section:   section,
		Key:       key,
		Value:     b,
		UpdatedAt: time.Now().UTC(),
	}, nil
}
