package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"photo-gallery/internal/catalog"
	"photo-gallery/internal/filesystem"
	"photo-gallery/internal/logging"
	"photo-gallery/internal/transcoder"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ListPhotos returns the catalog, newest first. Optional query parameters
// narrow it: q (title, date or address text), from/to (RFC3339) and
// lat/lon/radius (km).
func (h *Handlers) ListPhotos(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePhotoFilter(r)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.catalog.Filter(filter))
}

func parsePhotoFilter(r *http.Request) (catalog.PhotoFilter, error) {
	q := r.URL.Query()
	filter := catalog.PhotoFilter{SearchText: q.Get("q")}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.DateFrom}, {"to", &filter.DateTo}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid " + p.name + ": expected RFC3339 time")
		}
		*p.dst = &t
	}

	lat, lon, radius := q.Get("lat"), q.Get("lon"), q.Get("radius")
	if lat == "" && lon == "" && radius == "" {
		return filter, nil
	}
	var near catalog.Radius
	var err error
	if near.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
		return filter, errors.New("invalid lat")
	}
	if near.Longitude, err = strconv.ParseFloat(lon, 64); err != nil {
		return filter, errors.New("invalid lon")
	}
	if near.Km, err = strconv.ParseFloat(radius, 64); err != nil || near.Km < 0 {
		return filter, errors.New("invalid radius")
	}
	filter.Near = &near
	return filter, nil
}

// GetPhoto returns one photo record.
func (h *Handlers) GetPhoto(w http.ResponseWriter, r *http.Request) {
	p, ok := h.catalog.Photo(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, "photo not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, p)
}

// UploadPhoto saves the multipart "photo" file into the catalog with an
// optional "title" field.
func (h *Handlers) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("photo")
	if err != nil {
		writeJSONError(w, "multipart field \"photo\" is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	staged, err := h.stageUpload(file)
	if err != nil {
		logging.Error("failed to stage upload: %v", err)
		writeJSONError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("failed to remove staged upload %s: %v", staged, err)
		}
	}()

	photo, err := h.catalog.SavePhoto(r.Context(), staged, r.FormValue("title"))
	if err != nil {
		if errors.Is(err, transcoder.ErrUnsupported) {
			writeJSONError(w, "unsupported image format", http.StatusUnsupportedMediaType)
			return
		}
		if errors.Is(err, transcoder.ErrTooLarge) {
			writeJSONError(w, "image too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "failed to save photo", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", "/api/photos/"+photo.ID)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, photo)
}

func (h *Handlers) stageUpload(src io.Reader) (string, error) {
	if err := os.MkdirAll(h.stagingDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(h.stagingDir, "upload-"+uuid.NewString())
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// UpdatePhotoTitle renames a photo from a {"title": "..."} body.
func (h *Handlers) UpdatePhotoTitle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title *string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == nil {
		writeJSONError(w, "body must be {\"title\": string}", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.catalog.UpdatePhotoTitle(r.Context(), id, *body.Title); err != nil {
		writeCatalogError(w, err)
		return
	}

	p, _ := h.catalog.Photo(id)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, p)
}

// DeletePhoto removes a photo and its backing file. Derived images are
// left to the cache's own eviction.
func (h *Handlers) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeletePhoto(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeCatalogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCatalogError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSONError(w, "photo not found", http.StatusNotFound)
		return
	}
	writeJSONError(w, "catalog update failed", http.StatusInternalServerError)
}

// GetPhotoFile serves the stored photo.
func (h *Handlers) GetPhotoFile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.catalog.Photo(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, "photo not found", http.StatusNotFound)
		return
	}
	serveImage(w, r, filesystem.PathFromURI(p.URI))
}

// GetThumbnail serves the photo's cached thumbnail.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	h.serveDerived(w, r, "thumbnail", h.cache.GetThumbnailURI)
}

// GetCompressed serves the photo's cached compressed variant.
func (h *Handlers) GetCompressed(w http.ResponseWriter, r *http.Request) {
	h.serveDerived(w, r, "compressed", h.cache.GetCompressedURI)
}

// serveDerived resolves a derived image through the cache, deriving it on
// a miss. If the cache cannot produce it the original photo is served and
// X-Cache-Fallback is set.
func (h *Handlers) serveDerived(w http.ResponseWriter, r *http.Request, variant string, resolve func(context.Context, string) (string, error)) {
	p, ok := h.catalog.Photo(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, "photo not found", http.StatusNotFound)
		return
	}

	uri, err := resolve(r.Context(), p.URI)
	if err == nil {
		// An eviction or clear may delete the file after resolve returns.
		path := filesystem.PathFromURI(uri)
		f, info, oerr := openImage(path)
		if oerr == nil {
			defer f.Close()
			writeImage(w, r, path, f, info)
			return
		}
		if !errors.Is(oerr, os.ErrNotExist) {
			writeImageError(w, path, oerr)
			return
		}
		err = oerr
	} else if r.Context().Err() != nil {
		return
	}

	logging.Warn("%s for %s unavailable, serving original: %v", variant, p.ID, err)
	w.Header().Set("X-Cache-Fallback", "true")
	serveImage(w, r, filesystem.PathFromURI(p.URI))
}
