package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"photo-gallery/internal/imagecache"
	"photo-gallery/internal/location"
	"photo-gallery/internal/transcoder"
)

type fakeTranscoder struct {
	dir  string
	err  error
	last transcoder.Resize
	opts transcoder.Options
}

func (f *fakeTranscoder) Name() string { return "fake" }

func (f *fakeTranscoder) Transcode(_ context.Context, _ string, resize transcoder.Resize, opts transcoder.Options) (*transcoder.Result, error) {
	f.last, f.opts = resize, opts
	if f.err != nil {
		return nil, f.err
	}
	out, err := os.CreateTemp(f.dir, "staged-*.jpg")
	if err != nil {
		return nil, err
	}
	_, _ = out.WriteString("jpeg")
	_ = out.Close()
	return &transcoder.Result{URI: out.Name(), Width: 1920, Height: 1440}, nil
}

type fakeWarmer struct {
	mu   sync.Mutex
	uris []string
	err  error
}

func (f *fakeWarmer) CacheImage(_ context.Context, uri string) (*imagecache.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uris = append(f.uris, uri)
	if f.err != nil {
		return nil, f.err
	}
	return &imagecache.Entry{SourceURI: uri}, nil
}

type testEnv struct {
	catalog *Catalog
	tr      *fakeTranscoder
	warmer  *fakeWarmer
	dir     string
	source  string
}

func newTestCatalog(t *testing.T, resolver location.Resolver) *testEnv {
	t.Helper()
	dir := t.TempDir()
	staging := filepath.Join(dir, ".staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	source := filepath.Join(dir, "camera.jpg")
	if err := os.WriteFile(source, make([]byte, 4321), 0o644); err != nil {
		t.Fatal(err)
	}

	clock := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	env := &testEnv{
		tr:     &fakeTranscoder{dir: staging},
		warmer: &fakeWarmer{},
		dir:    dir,
		source: source,
	}
	c, err := New(Options{
		Dir:        dir,
		Transcoder: env.tr,
		Cache:      env.warmer,
		Location:   resolver,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	env.catalog = c
	return env
}

func TestSavePhoto(t *testing.T) {
	env := newTestCatalog(t, location.NewStatic(-23.56, -46.65, "Av. Paulista"))
	ctx := context.Background()

	p, err := env.catalog.SavePhoto(ctx, "file://"+env.source, "")
	if err != nil {
		t.Fatalf("SavePhoto() error = %v", err)
	}

	if !strings.HasPrefix(p.ID, "photo_") || p.ID != strings.TrimSuffix(filepath.Base(p.URI), ".jpg") {
		t.Errorf("ID = %s, URI = %s", p.ID, p.URI)
	}
	if filepath.Dir(p.URI) != filepath.Join(env.dir, PhotosDir) {
		t.Errorf("URI %s not under photos/", p.URI)
	}
	if _, err := os.Stat(p.URI); err != nil {
		t.Errorf("saved file missing: %v", err)
	}
	if p.Title != "Photo "+p.Date || p.Date != "03/09/2024" {
		t.Errorf("Title = %q, Date = %q", p.Title, p.Date)
	}
	if p.Time != "2:05:07 PM" {
		t.Errorf("Time = %q", p.Time)
	}
	if p.Size != 4321 {
		t.Errorf("Size = %d, want source size 4321", p.Size)
	}
	if p.Width != 1920 || p.Height != 1440 {
		t.Errorf("dims = %dx%d, want transcoder output", p.Width, p.Height)
	}
	if p.Location == nil || p.Location.Address != "Av. Paulista" {
		t.Errorf("Location = %+v", p.Location)
	}

	if env.tr.last != (transcoder.Resize{Width: 1920, Height: 1920, Mode: transcoder.ModeFit}) || env.tr.opts.Quality != SavedQuality {
		t.Errorf("transcode request = %+v %+v", env.tr.last, env.tr.opts)
	}
	if len(env.warmer.uris) != 1 || env.warmer.uris[0] != p.URI {
		t.Errorf("cache warmed with %v, want [%s]", env.warmer.uris, p.URI)
	}
	if _, err := os.Stat(filepath.Join(env.dir, MetadataFile)); err != nil {
		t.Errorf("metadata not persisted: %v", err)
	}
}

func TestSavePhoto_NewestFirst(t *testing.T) {
	env := newTestCatalog(t, nil)
	ctx := context.Background()

	first, err := env.catalog.SavePhoto(ctx, env.source, "first")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.catalog.SavePhoto(ctx, env.source, "second")
	if err != nil {
		t.Fatal(err)
	}

	photos := env.catalog.Photos()
	if len(photos) != 2 || photos[0].ID != second.ID || photos[1].ID != first.ID {
		t.Errorf("Photos() order = %v", photos)
	}
	if first.Location != nil {
		t.Error("no resolver should mean no location")
	}
}

func TestSavePhoto_CacheFailureIsNotFatal(t *testing.T) {
	env := newTestCatalog(t, nil)
	env.warmer.err = errors.New("disk full")

	if _, err := env.catalog.SavePhoto(context.Background(), env.source, "x"); err != nil {
		t.Fatalf("SavePhoto() error = %v, want cache failure swallowed", err)
	}
	if env.catalog.Len() != 1 {
		t.Error("photo should be saved despite the cache failure")
	}
}

func TestSavePhoto_TranscodeFailure(t *testing.T) {
	env := newTestCatalog(t, nil)
	env.tr.err = transcoder.ErrUnsupported

	if _, err := env.catalog.SavePhoto(context.Background(), env.source, "x"); !errors.Is(err, transcoder.ErrUnsupported) {
		t.Fatalf("error = %v, want ErrUnsupported", err)
	}
	if env.catalog.Len() != 0 || len(env.warmer.uris) != 0 {
		t.Error("failed save must not record or warm anything")
	}
	if _, err := env.catalog.SavePhoto(context.Background(), "", "x"); err == nil {
		t.Error("expected error for empty source")
	}
}

func TestPhotoLookupAndUpdate(t *testing.T) {
	env := newTestCatalog(t, nil)
	ctx := context.Background()

	p, err := env.catalog.SavePhoto(ctx, env.source, "old")
	if err != nil {
		t.Fatal(err)
	}

	if err := env.catalog.UpdatePhotoTitle(ctx, p.ID, "new"); err != nil {
		t.Fatalf("UpdatePhotoTitle() error = %v", err)
	}
	got, ok := env.catalog.Photo(p.ID)
	if !ok || got.Title != "new" {
		t.Errorf("Photo() = %+v, %v", got, ok)
	}

	got.Title = "mutated copy"
	if again, _ := env.catalog.Photo(p.ID); again.Title != "new" {
		t.Error("Photo() must return a copy")
	}

	if err := env.catalog.UpdatePhotoTitle(ctx, "photo_0", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if _, ok := env.catalog.Photo("photo_0"); ok {
		t.Error("Photo() found an unknown id")
	}
}

func TestDeletePhoto(t *testing.T) {
	env := newTestCatalog(t, nil)
	ctx := context.Background()

	p, err := env.catalog.SavePhoto(ctx, env.source, "doomed")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.catalog.DeletePhoto(ctx, p.ID); err != nil {
		t.Fatalf("DeletePhoto() error = %v", err)
	}
	if _, err := os.Stat(p.URI); !os.IsNotExist(err) {
		t.Error("backing file should be deleted")
	}
	if env.catalog.Len() != 0 {
		t.Error("record should be removed")
	}
	if err := env.catalog.DeletePhoto(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestReload(t *testing.T) {
	env := newTestCatalog(t, nil)
	ctx := context.Background()

	p, err := env.catalog.SavePhoto(ctx, env.source, "persisted")
	if err != nil {
		t.Fatal(err)
	}

	other, err := New(Options{Dir: env.dir, Transcoder: env.tr})
	if err != nil {
		t.Fatal(err)
	}
	got, ok := other.Photo(p.ID)
	if !ok || got.Title != "persisted" || got.Timestamp != p.Timestamp {
		t.Errorf("reloaded photo = %+v, %v", got, ok)
	}

	metadata := filepath.Join(env.dir, MetadataFile)
	if err := os.WriteFile(metadata, []byte("[{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := other.Reload(); err == nil {
		t.Error("Reload() should report a corrupt document")
	}
	if other.Len() != 0 {
		t.Error("corrupt document should leave the catalog empty")
	}

	aside, err := os.ReadFile(metadata + CorruptSuffix)
	if err != nil {
		t.Fatalf("corrupt document not moved aside: %v", err)
	}
	if string(aside) != "[{" {
		t.Errorf("moved document = %q, want the original bytes", aside)
	}

	// A save after the failed load must not destroy the moved-aside copy.
	if _, err := other.SavePhoto(ctx, env.source, "after"); err != nil {
		t.Fatal(err)
	}
	if data, err := os.ReadFile(metadata + CorruptSuffix); err != nil || string(data) != "[{" {
		t.Errorf("moved-aside copy changed: %q, %v", data, err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Transcoder: &fakeTranscoder{}}); err == nil {
		t.Error("expected error without data directory")
	}
	if _, err := New(Options{Dir: t.TempDir()}); err == nil {
		t.Error("expected error without transcoder")
	}
}
