package blackboard_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	blackboard "github.com/3disturbed/BlackBoard"
)

func Example() {
	ctx := context.Background()

	dir, _ := os.MkdirTemp("", "blackboard")
	defer os.RemoveAll(dir)

	board, err := blackboard.New(
		blackboard.WithSnapshotPath(filepath.Join(dir, "blackboard.json")),
	)
	if err != nil {
		panic(err)
	}
	if err := board.Connect(ctx); err != nil {
		panic(err)
	}
	defer board.Shutdown(ctx)

	if err := board.Set(ctx, "app", "version", "1.0.0"); err != nil {
		panic(err)
	}

	v, found, _ := board.Get(ctx, "app", "version")
	fmt.Println(found, v)
	// Output: true 1.0.0
}

func Example_durableBackend() {
	// With a durable backend the cache tier is bounded: LRU eviction plus
	// TTL expiry, misses fall through to the document store.
	board, err := blackboard.New(
		blackboard.WithBackend("mongodb://localhost:27017", "blackboard", "entries"),
		blackboard.WithCacheCapacity(1000),
		blackboard.WithCompression("zstd"),
	)
	if err != nil {
		panic(err)
	}
	_ = board // board.Connect(ctx) establishes the connection
}
