package imagecache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// =============================================================================
// Directory lock
// =============================================================================

func TestNew_DirectoryLock(t *testing.T) {
	c, fake, dir := newTestCache(t, nil)
	ctx := context.Background()

	e, err := c.CacheImage(ctx, "/src/a.jpg")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New(Options{Dir: dir, Transcoder: fake}); !errors.Is(err, filesystem.ErrLocked) {
		t.Fatalf("second writer New() error = %v, want ErrLocked", err)
	}

	ro, err := New(Options{Dir: dir, Transcoder: fake, ReadOnly: true})
	if err != nil {
		t.Fatalf("read-only New() error = %v", err)
	}
	if got, ok := ro.GetCachedImage(ctx, e.SourceURI); !ok || got.ThumbnailURI != e.ThumbnailURI {
		t.Errorf("read-only GetCachedImage() = %+v, %v", got, ok)
	}
	if _, err := ro.CacheImage(ctx, "/src/b.jpg"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("read-only CacheImage() error = %v, want ErrReadOnly", err)
	}
	if err := ro.ClearCache(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("read-only ClearCache() error = %v, want ErrReadOnly", err)
	}
	if _, err := ro.PruneOrphans(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("read-only PruneOrphans() error = %v, want ErrReadOnly", err)
	}
	if err := ro.Close(ctx); err != nil {
		t.Errorf("read-only Close() error = %v", err)
	}
	if got := fake.derivations(); got != 1 {
		t.Errorf("derivations = %d, want 1", got)
	}
	if _, ok := c.GetCachedImage(ctx, e.SourceURI); !ok {
		t.Error("read-only instance must not disturb the writer's entries")
	}

	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	next, err := New(Options{Dir: dir, Transcoder: fake})
	if err != nil {
		t.Fatalf("New() after Close error = %v", err)
	}
	defer next.Close(ctx)
	if _, ok := next.GetCachedImage(ctx, e.SourceURI); !ok {
		t.Error("entry written by the first instance should load")
	}
}

// =============================================================================
// Close
// =============================================================================

func TestClose_WaitsForRunningDerivation(t *testing.T) {
	c, fake, dir := newTestCache(t, nil)
	fake.gate = make(chan struct{})
	fake.started = make(chan struct{}, 1)
	ctx := context.Background()

	reqCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := c.CacheImage(reqCtx, "/src/slow.jpg")
		done <- err
	}()

	<-fake.started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("CacheImage() error = %v, want context.Canceled", err)
	}

	closed := make(chan error, 1)
	go func() { closed <- c.Close(ctx) }()

	select {
	case err := <-closed:
		t.Fatalf("Close() returned %v while a derivation was running", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(fake.gate)
	if err := <-closed; err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := fake.compCalls.Load(); got != 1 {
		t.Errorf("compressed transcodes = %d, want the derivation to finish before Close", got)
	}

	if _, err := c.CacheImage(ctx, "/src/late.jpg"); !errors.Is(err, ErrClosed) {
		t.Errorf("CacheImage() after Close error = %v, want ErrClosed", err)
	}
	if err := c.ClearCache(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("ClearCache() after Close error = %v, want ErrClosed", err)
	}
	if _, ok := c.GetCachedImage(ctx, "/src/slow.jpg"); !ok {
		t.Error("reads should keep working after Close")
	}

	reopened, err := New(Options{Dir: dir, Transcoder: fake})
	if err != nil {
		t.Fatalf("New() after Close error = %v", err)
	}
	defer reopened.Close(ctx)
	if _, ok := reopened.GetCachedImage(ctx, "/src/slow.jpg"); !ok {
		t.Error("derivation finished during Close should be persisted")
	}
}

func TestClose_Deadline(t *testing.T) {
	c, fake, _ := newTestCache(t, nil)
	fake.gate = make(chan struct{})
	fake.started = make(chan struct{}, 1)

	go func() { _, _ = c.CacheImage(context.Background(), "/src/stuck.jpg") }()
	<-fake.started
	defer close(fake.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want DeadlineExceeded", err)
	}
}

// =============================================================================
// Delete failures
// =============================================================================

// pinFile replaces path with a non-empty directory of the same name, which
// os.Remove cannot delete even when running as root.
func pinFile(t *testing.T, path string) {
	t.Helper()
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "pin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEvict_DeleteFailureStillDropsEntry(t *testing.T) {
	c, fake, dir := newTestCache(t, func(o *Options) {
		o.Config = DefaultConfig()
		o.Config.MaxCacheSize = 0
	})
	ctx := context.Background()

	old, err := c.CacheImage(ctx, "/src/old.jpg")
	if err != nil {
		t.Fatal(err)
	}
	pinFile(t, old.ThumbnailURI)

	failures := metrics.CacheDeleteErrors.WithLabelValues("evict")
	before := testutil.ToFloat64(failures)

	if _, err := c.CacheImage(ctx, "/src/new.jpg"); err != nil {
		t.Fatal(err)
	}

	if d := testutil.ToFloat64(failures) - before; d != 1 {
		t.Errorf("evict delete errors delta = %v, want 1", d)
	}
	if _, ok := c.GetCachedImage(ctx, old.SourceURI); ok {
		t.Error("evicted entry should be gone from the index despite the failed delete")
	}
	if got := c.Stats(ctx).Count; got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
	if _, err := os.Stat(old.CompressedURI); !os.IsNotExist(err) {
		t.Error("the deletable file of the evicted entry should still be removed")
	}
	if _, err := os.Stat(old.ThumbnailURI); err != nil {
		t.Errorf("pinned thumbnail should be left behind: %v", err)
	}

	if err := c.Close(ctx); err != nil {
		t.Fatal(err)
	}
	reloaded, err := New(Options{Dir: dir, Transcoder: fake})
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close(ctx)
	if _, ok := reloaded.GetCachedImage(ctx, old.SourceURI); ok {
		t.Error("evicted entry should not come back from the persisted index")
	}
}

func TestClearCache_DeleteFailure(t *testing.T) {
	c, _, _ := newTestCache(t, nil)
	ctx := context.Background()

	pinned, err := c.CacheImage(ctx, "/src/pinned.jpg")
	if err != nil {
		t.Fatal(err)
	}
	other, err := c.CacheImage(ctx, "/src/other.jpg")
	if err != nil {
		t.Fatal(err)
	}
	pinFile(t, pinned.ThumbnailURI)

	failures := metrics.CacheDeleteErrors.WithLabelValues("clear")
	before := testutil.ToFloat64(failures)

	if err := c.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache() error = %v, want delete failures swallowed", err)
	}

	if d := testutil.ToFloat64(failures) - before; d != 1 {
		t.Errorf("clear delete errors delta = %v, want 1", d)
	}
	if got := c.Stats(ctx).Count; got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
	for _, e := range []*Entry{pinned, other} {
		if _, ok := c.GetCachedImage(ctx, e.SourceURI); ok {
			t.Errorf("%s still reachable after ClearCache", e.SourceURI)
		}
	}

	again, err := c.CacheImage(ctx, pinned.SourceURI)
	if err != nil {
		t.Fatal(err)
	}
	if again.ThumbnailURI == pinned.ThumbnailURI {
		t.Error("re-deriving after clear must not hand out the undeleted file")
	}
}
