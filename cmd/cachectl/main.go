package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"photo-gallery/internal/catalog"
	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/imagecache"
	"photo-gallery/internal/logging"
	"photo-gallery/internal/startup"
	"photo-gallery/internal/transcoder"
	"photo-gallery/internal/workers"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// maxWarmWorkers caps concurrent derivations regardless of CPU count.
const maxWarmWorkers = 8

// closeTimeout bounds how long the tool waits for running derivations on exit.
const closeTimeout = 30 * time.Second

// readOnlyCommands can run next to a live server; the rest need the data
// directory lock.
var readOnlyCommands = map[string]bool{"stats": true, "inspect": true}

func main() {
	args, forceJSON := splitFlags(os.Args[1:])
	if len(args) < 1 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	command := args[0]
	if command == "help" {
		printUsage(os.Stdout)
		return
	}

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

	if os.Getenv("LOG_LEVEL") == "" && os.Getenv("DEBUG") == "" {
		logging.SetLevel(logging.LevelWarn)
	}
	startup.LoadDotEnv()

	config, err := startup.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Only warm decodes images, so the other commands skip libvips startup.
	backend := transcoder.BackendImaging
	if command == "warm" {
		backend = config.Transcoder
	}
	trans, err := transcoder.New(backend, config.StagingDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize transcoder: %v\n", err)
		os.Exit(1)
	}

	a, err := newApp(config, trans, os.Stdout, forceJSON || !term.IsTerminal(int(os.Stdout.Fd())), readOnlyCommands[command])
	if err != nil {
		transcoder.ShutdownVips()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, filesystem.ErrLocked) {
			fmt.Fprintln(os.Stderr, "The data directory is in use, probably by the server. Use its /api/cache endpoints instead.")
		} else {
			fmt.Fprintf(os.Stderr, "Make sure DATA_DIR is set correctly (current: %s)\n", config.DataDir)
		}
		os.Exit(1)
	}

	code := a.run(ctx, command, args[1:])
	if err := a.close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code = 1
	} else {
		transcoder.ShutdownVips()
	}
	os.Exit(code)
}

// splitFlags removes --json from args.
func splitFlags(args []string) ([]string, bool) {
	out := make([]string, 0, len(args))
	jsonOut := false
	for _, a := range args {
		if a == "--json" || a == "-json" {
			jsonOut = true
			continue
		}
		out = append(out, a)
	}
	return out, jsonOut
}

type app struct {
	cache *imagecache.Cache
	// catalog is nil in read-only mode.
	catalog *catalog.Catalog
	out     io.Writer
	jsonOut bool
}

// newApp opens the cache and catalog. Unless readOnly is set it takes the
// data directory lock, so it fails while the server is running.
func newApp(config *startup.Config, trans transcoder.Transcoder, out io.Writer, jsonOut, readOnly bool) (*app, error) {
	cache, err := imagecache.New(imagecache.Options{
		Dir:        config.DataDir,
		Transcoder: trans,
		Config:     config.CacheConfig(),
		KeyMode:    config.CacheKeyMode,
		ReadOnly:   readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open image cache: %w", err)
	}
	a := &app{cache: cache, out: out, jsonOut: jsonOut}
	if readOnly {
		return a, nil
	}

	a.catalog, err = catalog.New(catalog.Options{Dir: config.DataDir, Transcoder: trans})
	if err != nil {
		_ = cache.Close(context.Background())
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return a, nil
}

// close waits for running derivations and releases the data directory.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return a.cache.Close(ctx)
}

// run executes command and returns the process exit code.
func (a *app) run(ctx context.Context, command string, args []string) int {
	switch command {
	case "stats":
		return a.stats(ctx)
	case "inspect":
		return a.inspect(ctx)
	case "warm":
		return a.warm(ctx, args)
	case "clear":
		return a.clear(ctx)
	case "prune":
		return a.prune(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage(os.Stderr)
		return 1
	}
}

// sanitizeCommand replaces anything outside [a-zA-Z0-9_-] with '_' so
// arbitrary input is safe to echo.
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

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Photo Gallery Image Cache Tool")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: cachectl [--json] <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  stats            - Show entry count and disk usage")
	fmt.Fprintln(w, "  inspect          - List entries, missing files and orphans")
	fmt.Fprintln(w, "  warm [uri...]    - Cache the given images (default: every catalogued photo)")
	fmt.Fprintln(w, "  clear            - Delete all derived images and the index")
	fmt.Fprintln(w, "  prune            - Delete derived images no entry references")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "stats and inspect run alongside the server; the other commands")
	fmt.Fprintln(w, "need exclusive use of DATA_DIR.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  DATA_DIR         - Path to the data directory (default: ./data)")
	fmt.Fprintln(w, "  CACHE_KEY_MODE   - segment or hash, must match the server")
	fmt.Fprintf(w, "  %-16s - Worker count for warm\n", workers.OverrideEnv)
}

func (a *app) writeJSON(v interface{}) int {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) stats(ctx context.Context) int {
	s := a.cache.Stats(ctx)
	if a.jsonOut {
		return a.writeJSON(s)
	}
	cfg := a.cache.Config()
	fmt.Fprintf(a.out, "Directory:    %s\n", a.cache.Dir())
	fmt.Fprintf(a.out, "Key mode:     %s\n", a.cache.KeyMode())
	fmt.Fprintf(a.out, "Entries:      %d\n", s.Count)
	fmt.Fprintf(a.out, "Disk usage:   %.2f MB of %.1f MB\n", s.SizeMB, cfg.MaxCacheSize)
	fmt.Fprintf(a.out, "Pixels:       %d\n", s.LogicalSize)
	return 0
}

func (a *app) inspect(ctx context.Context) int {
	report, err := a.cache.Inspect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: inspection failed: %v\n", err)
		return 1
	}
	if a.jsonOut {
		return a.writeJSON(report)
	}

	fmt.Fprintf(a.out, "Index: present=%v (%d bytes)\n", report.IndexPresent, report.IndexBytes)
	fmt.Fprintf(a.out, "Dirs:  thumbnails=%v compressed=%v\n", report.ThumbnailsDirPresent, report.CompressedDirPresent)
	fmt.Fprintln(a.out, "")

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCACHED AT\tTHUMB\tCOMPRESSED\tSOURCE")
	for _, e := range report.Entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", e.SourceKey, e.CachedAt,
			fileState(e.ThumbnailExists, e.ThumbnailBytes), fileState(e.CompressedExists, e.CompressedBytes), e.SourceURI)
	}
	_ = tw.Flush()

	if len(report.Orphans) > 0 {
		fmt.Fprintf(a.out, "\n%d orphaned files (%d bytes), run 'cachectl prune' to remove:\n", len(report.Orphans), report.OrphanBytes)
		for _, o := range report.Orphans {
			fmt.Fprintf(a.out, "  %s\n", o)
		}
	}
	return 0
}

func fileState(exists bool, size int64) string {
	if !exists {
		return "MISSING"
	}
	return fmt.Sprintf("%dB", size)
}

type warmResult struct {
	URI        string `json:"uri"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Compressed string `json:"compressed,omitempty"`
	Error      string `json:"error,omitempty"`
}

// warm caches uris, or every catalogued photo when none are given, with a
// bounded number of concurrent derivations.
func (a *app) warm(ctx context.Context, uris []string) int {
	if len(uris) == 0 {
		if a.catalog == nil {
			fmt.Fprintln(os.Stderr, "Error: no catalog open, pass image URIs to warm")
			return 1
		}
		for _, p := range a.catalog.Photos() {
			uris = append(uris, p.URI)
		}
	}

	results := make([]warmResult, len(uris))
	var g errgroup.Group
	g.SetLimit(workers.ForMixed(maxWarmWorkers))
	for i, uri := range uris {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := warmResult{URI: uri}
			if e, err := a.cache.CacheImage(ctx, uri); err != nil {
				res.Error = err.Error()
			} else {
				res.Thumbnail, res.Compressed = e.ThumbnailURI, e.CompressedURI
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	code := 0
	if failed > 0 {
		code = 1
	}
	if a.jsonOut {
		if c := a.writeJSON(results); c != 0 {
			return c
		}
		return code
	}

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(a.out, "FAIL  %s: %s\n", r.URI, r.Error)
		} else {
			fmt.Fprintf(a.out, "OK    %s\n", r.URI)
		}
	}
	fmt.Fprintf(a.out, "Warmed %d of %d images.\n", len(results)-failed, len(results))
	return code
}

func (a *app) clear(ctx context.Context) int {
	before := a.cache.Stats(ctx)
	if err := a.cache.ClearCache(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: clear failed: %v\n", err)
		return 1
	}
	if a.jsonOut {
		return a.writeJSON(map[string]int{"removed": before.Count})
	}
	fmt.Fprintf(a.out, "Cleared %d entries (%.2f MB).\n", before.Count, before.SizeMB)
	return 0
}

func (a *app) prune(ctx context.Context) int {
	res, err := a.cache.PruneOrphans(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: prune failed: %v\n", err)
		return 1
	}
	if a.jsonOut {
		return a.writeJSON(res)
	}
	fmt.Fprintf(a.out, "Removed %d orphaned files (%d bytes).\n", res.Removed, res.Bytes)
	if res.Failed > 0 {
		fmt.Fprintf(a.out, "%d files could not be removed.\n", res.Failed)
		return 1
	}
	return 0
}
