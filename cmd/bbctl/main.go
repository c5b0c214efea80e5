// Command bbctl is a thin CLI consumer of the blackboard store: get, set,
// and remove values, dump the full contents, or sit and watch the snapshot
// for external edits. Configuration comes from BLACKBOARD_* environment
// variables, optionally loaded from a .env file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	blackboard "github.com/3disturbed/BlackBoard"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "bbctl:", err)
		os.Exit(1)
	}
}

func usage() error {
	return fmt.Errorf(`usage:
  bbctl get <section> <key>
  bbctl set <section> <key> <value-json> [--no-cache]
  bbctl remove <section> <key>
  bbctl remove-section <section>
  bbctl list <section>
  bbctl dump
  bbctl ping
  bbctl watch`)
}

func run(args []string) error {
	if len(args) == 0 {
		return usage()
	}

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, using system environment")
	}

	opts, err := blackboard.FromEnv()
	if err != nil {
		return err
	}

	board, err := blackboard.New(opts...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := board.Connect(ctx); err != nil {
		// A corrupt snapshot is reported but the store stays usable.
		slog.Error("connect", "error", err)
	}
	defer func() {
		if err := board.Shutdown(ctx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	switch cmd := args[0]; cmd {
	case "get":
		if len(args) != 3 {
			return usage()
		}
		v, found, err := board.Get(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s/%s: not found", args[1], args[2])
		}
		return printJSON(v)

	case "set":
		if len(args) < 4 || len(args) > 5 {
			return usage()
		}
		cacheable := true
		if len(args) == 5 {
			if args[4] != "--no-cache" {
				return usage()
			}
			cacheable = false
		}
		var value any
		if err := json.Unmarshal([]byte(args[3]), &value); err != nil {
			// Not JSON: treat the argument as a plain string.
			value = args[3]
		}
		return board.Set(ctx, args[1], args[2], value, cacheable)

	case "remove":
		if len(args) != 3 {
			return usage()
		}
		return board.RemoveKey(ctx, args[1], args[2])

	case "remove-section":
		if len(args) != 2 {
			return usage()
		}
		return board.RemoveSection(ctx, args[1])

	case "list":
		if len(args) != 2 {
			return usage()
		}
		section := map[string]any{}
		if err := board.ForEach(args[1], func(key string, value any) {
			section[key] = value
		}); err != nil {
			return err
		}
		return printJSON(section)

	case "dump":
		if err := board.Flush(ctx); err != nil {
			return err
		}
		raw, err := os.ReadFile(snapshotPath())
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(raw)
		return err

	case "ping":
		if err := board.Ping(ctx); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	case "watch":
		slog.Info("watching for snapshot changes, interrupt to exit", "path", snapshotPath())
		<-board.ShutdownOnSignal(ctx)
		return nil

	default:
		return usage()
	}
}

func snapshotPath() string {
	if p := os.Getenv("BLACKBOARD_SNAPSHOT_PATH"); p != "" {
		return p
	}
	return blackboard.DefaultSnapshotPath
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
