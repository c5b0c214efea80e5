package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/3disturbed/BlackBoard/pkg/compress"
)

// valkeyBackend stores each section as one hash: the hash key is
// "database:collection:section" and each hash field is a blackboard key.
// Section-wide deletes become a single DEL and bulk upserts a pipeline
// of HSETs.
type valkeyBackend struct {
	client     valkey.Client
	prefix     string // "database:collection:"
	compressor compress.Compressor
}

func newValkey(ctx context.Context, cfg Config, comp compress.Compressor, addr string) (*valkeyBackend, error) {
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, errors.New("valkey backend requires database and collection names")
	}
	if addr == "" {
		addr = "localhost:6379"
	}

	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping failed: %w", err)
	}

	return &valkeyBackend{
		client:     client,
		prefix:     cfg.Database + ":" + cfg.Collection + ":",
		compressor: comp,
	}, nil
}

// hashKey returns the Valkey hash holding a section.
func (v *valkeyBackend) hashKey(section string) string {
	return v.prefix + section
}

func (v *valkeyBackend) Read(ctx context.Context, section, key string) (any, error) {
	cmd := v.client.B().Hget().Key(v.hashKey(section)).Field(key).Build()
	b, err := v.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: hget: %w", ErrUnavailable, err)
	}

	value, err := decodeValue(b, v.compressor)
	if err != nil {
		return nil, fmt.Errorf("decode field %s/%s: %w", section, key, err)
	}
	return value, nil
}

func (v *valkeyBackend) UpsertOne(ctx context.Context, section, key string, value any) error {
	b, err := encodeValue(value, v.compressor)
	if err != nil {
		return err
	}

	cmd := v.client.B().Hset().Key(v.hashKey(section)).FieldValue().FieldValue(key, string(b)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: hset %s/%s: %w", ErrUnavailable, section, key, err)
	}
	return nil
}

func (v *valkeyBackend) DeleteOne(ctx context.Context, section, key string) error {
	cmd := v.client.B().Hdel().Key(v.hashKey(section)).Field(key).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: hdel: %w", ErrUnavailable, err)
	}
	return nil
}

func (v *valkeyBackend) DeleteMany(ctx context.Context, section string) error {
	cmd := v.client.B().Del().Key(v.hashKey(section)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: del section %q: %w", ErrUnavailable, section, err)
	}
	return nil
}

func (v *valkeyBackend) BulkUpsert(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}

	cmds := make([]valkey.Completed, 0, len(writes))
	for _, w := range writes {
		b, err := encodeValue(w.Value, v.compressor)
		if err != nil {
			return err
		}
		cmds = append(cmds, v.client.B().Hset().
			Key(v.hashKey(w.Section)).
			FieldValue().FieldValue(w.Key, string(b)).
			Build())
	}

	for _, resp := range v.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("%w: bulk upsert of %d writes: %w", ErrUnavailable, len(writes), err)
		}
	}
	return nil
}

func (v *valkeyBackend) Ping(ctx context.Context) error {
	if err := v.client.Do(ctx, v.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return nil
}

func (v *valkeyBackend) Close(context.Context) error {
	v.client.Close()
	return nil
}
