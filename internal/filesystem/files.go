package filesystem

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PathFromURI converts a file:// URI into a local path. Anything that is not
// a file URI is returned unchanged so plain paths pass straight through.
func PathFromURI(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return strings.TrimPrefix(uri, "file://")
	}
	return u.Path
}

// Exists reports whether path (or file URI) names an existing file.
func Exists(path string) bool {
	_, err := StatWithRetry(PathFromURI(path), DefaultRetryConfig())
	return err == nil
}

// FileSize returns the byte size of path and whether it exists.
func FileSize(path string) (int64, bool) {
	info, err := StatWithRetry(PathFromURI(path), DefaultRetryConfig())
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// WriteFileAtomic writes data to a temporary file in the destination
// directory and renames it over path, so readers never observe a partially
// written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	start := time.Now()
	volume := defaultResolver.Resolve(path)
	defer func() {
		observe().ObserveOperation(volume, "write", time.Since(start).Seconds(), err)
	}()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err = tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = RenameWithRetry(tmpName, path, DefaultRetryConfig()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
