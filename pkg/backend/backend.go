// Package backend abstracts the durable document store behind the blackboard.
//
// A backend is keyed by (section, key) and only ever asked for exact lookups,
// single upserts/deletes, section-wide deletes, and bulk upserts. Two adapters
// are provided (MongoDB and Valkey) plus a no-op backend used when no durable
// tier is configured.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/3disturbed/BlackBoard/pkg/compress"
)

var (
	// ErrNotFound reports an exact-lookup miss.
	ErrNotFound = errors.New("backend: not found")

	// ErrUnavailable reports a failed backend call (network error, timeout).
	// The caller is expected to keep serving from the cache tier.
	ErrUnavailable = errors.New("backend: unavailable")
)

// Write is a single pending upsert destined for the backend.
type Write struct {
	Section string
	Key     string
	Value   any
}

// Backend is the durable document-store adapter.
type Backend interface {
	// Read returns the value stored under (section, key), or ErrNotFound.
	Read(ctx context.Context, section, key string) (any, error)

	// UpsertOne writes a single (section, key, value) document.
	UpsertOne(ctx context.Context, section, key string, value any) error

	// DeleteOne removes a single (section, key) document. Deleting an
	// absent document is not an error.
	DeleteOne(ctx context.Context, section, key string) error

	// DeleteMany removes every document under a section.
	DeleteMany(ctx context.Context, section string) error

	// BulkUpsert writes a batch of documents in one round trip.
	BulkUpsert(ctx context.Context, writes []Write) error

	// Ping verifies the connection.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Config describes a backend connection.
type Config struct {
	URL        string // connection URL; scheme selects the adapter
	Database   string
	Collection string
}

// Open connects to the backend described by cfg. The URL scheme selects the
// adapter: mongodb:// and mongodb+srv:// open a MongoDB collection,
// valkey:// and redis:// open a Valkey keyspace. An empty URL yields the
// no-op backend.
func Open(ctx context.Context, cfg Config, comp compress.Compressor) (Backend, error) {
	if cfg.URL == "" {
		return None(), nil
	}
	if comp == nil {
		comp = compress.None()
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}

	switch {
	case u.Scheme == "mongodb" || u.Scheme == "mongodb+srv":
		return newMongo(ctx, cfg, comp)
	case u.Scheme == "valkey" || u.Scheme == "redis":
		return newValkey(ctx, cfg, comp, u.Host)
	default:
		return nil, fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
}

// None returns a backend where every call is a no-op success and every
// lookup misses. Used when no durable tier is configured.
func None() Backend { return noop{} }

type noop struct{}

func (noop) Read(context.Context, string, string) (any, error) { return nil, ErrNotFound }
func (noop) UpsertOne(context.Context, string, string, any) error {
	return nil
}
func (noop) DeleteOne(context.Context, string, string) error { return nil }
func (noop) DeleteMany(context.Context, string) error        { return nil }
func (noop) BulkUpsert(context.Context, []Write) error       { return nil }
func (noop) Ping(context.Context) error                      { return nil }
func (noop) Close(context.Context) error                     { return nil }

// docID joins section and key into the composite document identifier.
// Sections and keys are validated upstream to never contain "/".
func docID(section, key string) string {
	return section + "/" + key
}

// encodeValue serializes an opaque value for storage: JSON then compression.
func encodeValue(value any, comp compress.Compressor) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	b, err := comp.Encode(raw)
	if err != nil {
		return nil, fmt.Errorf("compress value: %w", err)
	}
	return b, nil
}

// decodeValue is the inverse of encodeValue.
func decodeValue(b []byte, comp compress.Compressor) (any, error) {
	raw, err := comp.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decompress value: %w", err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return value, nil
}
