package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"imgview/internal/collection"
	"imgview/internal/contenthash"
	"imgview/internal/loader"
	"imgview/internal/scanner"
	"imgview/internal/scheduler"
	"imgview/internal/thumbstore"
	"imgview/internal/workers"

	"golang.org/x/term"
)

const (
	// Default timeout for store operations
	defaultTimeout = 30 * time.Second
	// How often warm checks for completion
	pollInterval = 50 * time.Millisecond
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	// Create a context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return
	}

	storePath, err := resolveStorePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store, err := thumbstore.Open(ctx, storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open thumbnail store: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure IMGVIEW_DATA_DIR is set correctly (current: %s)\n", filepath.Dir(storePath))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close thumbnail store: %v\n", err)
		}
	}()

	var ok bool
	switch command {
	case "status":
		ok = showStatus(ctx, store)
	case "hash":
		ok = showHash(store, args)
	case "get":
		ok = getThumbnail(store, args)
	case "delete":
		ok = deleteThumbnail(ctx, store, args)
	case "vacuum":
		ok = vacuum(ctx, store)
	case "warm":
		ok = warm(ctx, store, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage()
		ok = false
	}

	if !ok {
		// os.Exit skips deferred calls
		_ = store.Close()
		os.Exit(1)
	}
}

func resolveStorePath() (string, error) {
	if dir := os.Getenv("IMGVIEW_DATA_DIR"); dir != "" {
		return thumbstore.PathIn(dir)
	}
	return thumbstore.DefaultPath()
}

// sanitizeCommand replaces anything but [a-zA-Z0-9_-] with '_' so a
// command echoed back to the terminal cannot carry control sequences.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage() {
	fmt.Println("imgview thumbnail store utility")
	fmt.Println("")
	fmt.Println("Usage: thumbctl <command> [arguments]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  status                 - Show store location, row count and size")
	fmt.Println("  hash <file>...         - Print the lookup key of each file and whether it is stored")
	fmt.Println("  get <hash> <out.jpg>   - Write a stored thumbnail to a file")
	fmt.Println("  delete <hash>          - Remove a stored thumbnail")
	fmt.Println("  vacuum                 - Reclaim space left by deletes")
	fmt.Println("  warm <path>...         - Generate thumbnails for files and directories")
	fmt.Println("")
	fmt.Println("Environment:")
	fmt.Println("  IMGVIEW_DATA_DIR  - Directory holding thumbs.db (default: per-user data directory)")
	fmt.Println("  IMGVIEW_WORKERS   - Number of warm workers (default: one per CPU)")
	fmt.Println("  IMGVIEW_RECURSIVE - Descend into subdirectories when warming (default: false)")
}

func showStatus(ctx context.Context, store *thumbstore.Store) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats, err := store.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}

	fmt.Printf("Store:      %s\n", store.Path())
	fmt.Printf("Thumbnails: %d\n", stats.Rows)
	fmt.Printf("Blob bytes: %d\n", stats.Bytes)
	if fi, err := os.Stat(store.Path()); err == nil {
		fmt.Printf("File bytes: %d\n", fi.Size())
	}
	return true
}

func showHash(store *thumbstore.Store, args []string) bool {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: hash needs at least one file")
		return false
	}

	ok := true
	for _, path := range args {
		abs, err := filepath.Abs(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			ok = false
			continue
		}
		fi, err := os.Stat(abs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			ok = false
			continue
		}

		hash := contenthash.FromIdentity(abs, fi.Size(), fi.ModTime())
		state := "missing"
		if _, found := store.Get(hash); found {
			state = "stored"
		}
		fmt.Printf("%s  %-7s  %s\n", hash, state, abs)
	}
	return ok
}

func parseHashArg(args []string, want int, usage string) (contenthash.Hash, bool) {
	if len(args) != want {
		fmt.Fprintf(os.Stderr, "Usage: thumbctl %s\n", usage)
		return contenthash.Hash{}, false
	}
	hash, err := contenthash.ParseHex(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return contenthash.Hash{}, false
	}
	return hash, true
}

func getThumbnail(store *thumbstore.Store, args []string) bool {
	hash, ok := parseHashArg(args, 2, "get <hash> <out.jpg>")
	if !ok {
		return false
	}

	blob, found := store.Get(hash)
	if !found {
		fmt.Fprintf(os.Stderr, "Error: no thumbnail stored under %s\n", hash)
		return false
	}
	if err := os.WriteFile(args[1], blob, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to write %s: %v\n", args[1], err)
		return false
	}

	fmt.Printf("Wrote %d bytes to %s\n", len(blob), args[1])
	return true
}

func deleteThumbnail(ctx context.Context, store *thumbstore.Store, args []string) bool {
	hash, ok := parseHashArg(args, 1, "delete <hash>")
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := store.Delete(ctx, hash); err != nil {
		if errors.Is(err, thumbstore.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Error: no thumbnail stored under %s\n", hash)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return false
	}

	fmt.Printf("Deleted %s\n", hash)
	return true
}

func vacuum(ctx context.Context, store *thumbstore.Store) bool {
	before, _ := os.Stat(store.Path())

	if err := store.Vacuum(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}

	if after, err := os.Stat(store.Path()); err == nil && before != nil {
		fmt.Printf("Vacuum complete: %d -> %d bytes\n", before.Size(), after.Size())
	} else {
		fmt.Println("Vacuum complete")
	}
	return true
}

// warm runs the thumbnail pass of the scheduler over the given paths
// without prefetching full images, then waits for it to drain.
func warm(ctx context.Context, store *thumbstore.Store, args []string) bool {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: thumbctl warm <path>...")
		return false
	}

	start := time.Now()
	pool := workers.NewPool(workers.ForCPU(0))
	defer pool.Close()

	coll := collection.New()
	sched := scheduler.New(coll, pool, loader.New(loader.Options{Store: store}), scheduler.Options{
		Cores:         pool.Size(),
		DisableWindow: true,
	})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go sched.Run(runCtx)

	cfg := scanner.DefaultConfig()
	cfg.Recursive = os.Getenv("IMGVIEW_RECURSIVE") == "true" || os.Getenv("IMGVIEW_RECURSIVE") == "1"
	found, err := scanner.New(cfg).Scan(ctx, args, func(batch []collection.FileInfo) {
		sched.AddBatch(batch)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	if found == 0 {
		fmt.Fprintln(os.Stderr, "Error: no images found")
		return false
	}

	progress := term.IsTerminal(int(os.Stdout.Fd()))
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !sched.Idle() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		if progress {
			c := coll.Counts()
			fmt.Printf("\r%d/%d", c.ThumbResident+c.Errors, c.Entries)
		}
	}
	if progress {
		fmt.Print("\r")
	}

	c := coll.Counts()
	fmt.Printf("Warmed %d thumbnails (%d failed) in %v\n", c.ThumbResident, c.Errors, time.Since(start).Round(time.Millisecond))
	return c.Errors == 0
}
