package blackboard

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/3disturbed/BlackBoard/pkg/backend"
)

const (
	// DefaultCacheCapacity is the bounded-cache item limit.
	DefaultCacheCapacity = 500

	// DefaultCacheTTL is the bounded-cache time-to-live, measured from
	// last write.
	DefaultCacheTTL = 600_000 * time.Millisecond

	// DefaultBatchThreshold is the queue length that triggers an
	// automatic flush of pending backend writes.
	DefaultBatchThreshold = 10

	// DefaultSnapshotPath is the snapshot file written in the working
	// directory when no path is configured.
	DefaultSnapshotPath = "blackboard.json"

	// DefaultShutdownStepTimeout bounds each shutdown step so an
	// unreachable backend cannot hang process exit.
	DefaultShutdownStepTimeout = 5 * time.Second
)

// config holds the resolved Board configuration.
type config struct {
	backend      backend.Config
	adapter      backend.Backend
	capacity     int
	ttl          time.Duration
	threshold    int
	snapshotPath string
	compression  string
	stepTimeout  time.Duration
	logger       *slog.Logger
	disableWatch bool
}

func defaultConfig() *config {
	return &config{
		capacity:     DefaultCacheCapacity,
		ttl:          DefaultCacheTTL,
		threshold:    DefaultBatchThreshold,
		snapshotPath: DefaultSnapshotPath,
		compression:  "none",
		stepTimeout:  DefaultShutdownStepTimeout,
		logger:       slog.Default(),
	}
}

// Option configures a Board.
type Option func(*config)

// WithBackend enables the durable tier (and with it the bounded cache mode).
// The URL scheme selects the adapter: mongodb:// or valkey://.
func WithBackend(url, database, collection string) Option {
	return func(c *config) {
		c.backend = backend.Config{URL: url, Database: database, Collection: collection}
	}
}

// WithBackendAdapter injects an already constructed backend, bypassing the
// URL dispatch in Connect. It enables the bounded cache mode the same way a
// connection URL does. Intended for tests and embedders with bespoke
// backends.
func WithBackendAdapter(be backend.Backend) Option {
	return func(c *config) {
		c.adapter = be
	}
}

// WithCacheCapacity sets the bounded-cache item limit.
func WithCacheCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithCacheTTL sets the bounded-cache time-to-live.
func WithCacheTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithBatchThreshold sets the pending-write count that triggers an
// automatic backend flush.
func WithBatchThreshold(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithSnapshotPath sets the snapshot file location.
func WithSnapshotPath(path string) Option {
	return func(c *config) {
		if path != "" {
			c.snapshotPath = path
		}
	}
}

// WithCompression selects the codec for backend payloads:
// none, s2, zstd, or lz4.
func WithCompression(name string) Option {
	return func(c *config) {
		c.compression = name
	}
}

// WithShutdownStepTimeout bounds each step of Shutdown.
func WithShutdownStepTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.stepTimeout = d
		}
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithoutWatcher disables the snapshot change watcher. Intended for
// consumers that own the snapshot file exclusively.
func WithoutWatcher() Option {
	return func(c *config) {
		c.disableWatch = true
	}
}

// FromEnv builds options from BLACKBOARD_* environment variables:
// BACKEND_URL, BACKEND_DATABASE, BACKEND_COLLECTION, CACHE_CAPACITY,
// CACHE_TTL_MS, BATCH_THRESHOLD, SNAPSHOT_PATH, COMPRESSION.
func FromEnv() ([]Option, error) {
	var opts []Option

	if url := os.Getenv("BLACKBOARD_BACKEND_URL"); url != "" {
		opts = append(opts, WithBackend(url,
			os.Getenv("BLACKBOARD_BACKEND_DATABASE"),
			os.Getenv("BLACKBOARD_BACKEND_COLLECTION")))
	}
	if path := os.Getenv("BLACKBOARD_SNAPSHOT_PATH"); path != "" {
		opts = append(opts, WithSnapshotPath(path))
	}
	if name := os.Getenv("BLACKBOARD_COMPRESSION"); name != "" {
		opts = append(opts, WithCompression(name))
	}

	n, err := envInt("BLACKBOARD_CACHE_CAPACITY")
	if err != nil {
		return nil, err
	}
	if n > 0 {
		opts = append(opts, WithCacheCapacity(n))
	}

	ms, err := envInt("BLACKBOARD_CACHE_TTL_MS")
	if err != nil {
		return nil, err
	}
	if ms > 0 {
		opts = append(opts, WithCacheTTL(time.Duration(ms)*time.Millisecond))
	}

	n, err = envInt("BLACKBOARD_BATCH_THRESHOLD")
	if err != nil {
		return nil, err
	}
	if n > 0 {
		opts = append(opts, WithBatchThreshold(n))
	}

	return opts, nil
}

func envInt(name string) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", name, s, err)
	}
	return n, nil
}
