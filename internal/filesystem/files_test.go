package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPathFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{uri: "file:///a/x.jpg", want: "/a/x.jpg"},
		{uri: "file:///data/My%20Photos/x.jpg", want: "/data/My Photos/x.jpg"},
		{uri: "/plain/path.jpg", want: "/plain/path.jpg"},
		{uri: "relative.jpg", want: "relative.jpg"},
		{uri: "content://media/external/1", want: "content://media/external/1"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			if got := PathFromURI(tt.uri); got != tt.want {
				t.Errorf("PathFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestExistsAndFileSize(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "a.jpg")
	if err := os.WriteFile(path, []byte("12345"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !Exists(path) {
		t.Error("Exists() = false for existing file")
	}
	if !Exists("file://" + path) {
		t.Error("Exists() = false for existing file URI")
	}
	if Exists(filepath.Join(tmpDir, "missing.jpg")) {
		t.Error("Exists() = true for missing file")
	}

	size, ok := FileSize(path)
	if !ok || size != 5 {
		t.Errorf("FileSize() = (%d, %v), want (5, true)", size, ok)
	}
	if _, ok := FileSize(filepath.Join(tmpDir, "missing.jpg")); ok {
		t.Error("FileSize() ok = true for missing file")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "image_cache.json")

	if err := WriteFileAtomic(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte(`{"b":2}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != `{"b":2}` {
		t.Errorf("content = %q, want overwritten value", data)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestWriteFileAtomic_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "x.json")
	if err := WriteFileAtomic(path, []byte("{}"), 0o644); err == nil {
		t.Error("WriteFileAtomic() error = nil, want error for missing directory")
	}
}
