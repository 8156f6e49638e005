package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/logging"

	"github.com/cespare/xxhash/v2"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Encoding errors are only logged since the status line is already out.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": status})
}

// fileETag is a strong validator for a file on disk built from its path,
// size and modification time.
func fileETag(path string, info os.FileInfo) string {
	d := xxhash.New()
	_, _ = d.WriteString(path)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(strconv.FormatInt(info.Size(), 10))
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(strconv.FormatInt(info.ModTime().UnixNano(), 10))
	return fmt.Sprintf(`"%016x"`, d.Sum64())
}

// serveImage writes the JPEG at path with an ETag. Conditional and range
// requests are handled by http.ServeContent.
func serveImage(w http.ResponseWriter, r *http.Request, path string) {
	f, info, err := openImage(path)
	if err != nil {
		writeImageError(w, path, err)
		return
	}
	defer f.Close()
	writeImage(w, r, path, f, info)
}

func openImage(path string) (*os.File, os.FileInfo, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

func writeImageError(w http.ResponseWriter, path string, err error) {
	if errors.Is(err, os.ErrNotExist) {
		writeJSONError(w, "image not found", http.StatusNotFound)
		return
	}
	logging.Error("failed to open image %s: %v", path, err)
	writeJSONError(w, "failed to open image", http.StatusInternalServerError)
}

func writeImage(w http.ResponseWriter, r *http.Request, path string, f *os.File, info os.FileInfo) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Header().Set("ETag", fileETag(path, info))
	http.ServeContent(w, r, "", info.ModTime(), f)
}
