package handlers

import (
	"encoding/json"
	"net/http"

	"photo-gallery/internal/imagecache"
	"photo-gallery/internal/logging"
)

// CacheStatsResponse is the body of GET /api/cache/stats.
type CacheStatsResponse struct {
	imagecache.Stats
	KeyMode imagecache.KeyMode `json:"keyMode"`
	Config  imagecache.Config  `json:"config"`
}

// GetCacheStats returns the entry count, on-disk size and active config.
func (h *Handlers) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, CacheStatsResponse{
		Stats:   h.cache.Stats(r.Context()),
		KeyMode: h.cache.KeyMode(),
		Config:  h.cache.Config(),
	})
}

// InspectCache returns the diagnostic report for the cache directory.
func (h *Handlers) InspectCache(w http.ResponseWriter, r *http.Request) {
	report, err := h.cache.Inspect(r.Context())
	if err != nil {
		logging.Error("cache inspection failed: %v", err)
		writeJSONError(w, "cache inspection failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, report)
}

// ClearCache deletes every derived file and empties the index.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.ClearCache(r.Context()); err != nil {
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSONStatus(w, "cleared")
}

// PatchCacheConfig merges a partial config into the cache settings. The
// change applies to future derivations only.
func (h *Handlers) PatchCacheConfig(w http.ResponseWriter, r *http.Request) {
	var patch imagecache.ConfigPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeJSONError(w, "invalid config: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.cache.SetConfig(patch); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.cache.Config())
}

// WarmCache derives the cached variants for one photo, named by "id" or
// by its stored "uri". Only catalogued photos can be warmed.
func (h *Handlers) WarmCache(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID  string `json:"id"`
		URI string `json:"uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || (body.ID == "" && body.URI == "") {
		writeJSONError(w, "body must name an \"id\" or \"uri\"", http.StatusBadRequest)
		return
	}

	uri, ok := h.photoURI(body.ID, body.URI)
	if !ok {
		writeJSONError(w, "photo not found", http.StatusNotFound)
		return
	}

	entry, err := h.cache.CacheImage(r.Context(), uri)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeJSONError(w, "failed to cache image", http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, entry)
}

func (h *Handlers) photoURI(id, uri string) (string, bool) {
	if id != "" {
		p, ok := h.catalog.Photo(id)
		if !ok {
			return "", false
		}
		return p.URI, true
	}
	for _, p := range h.catalog.Photos() {
		if p.URI == uri {
			return uri, true
		}
	}
	return "", false
}

// PruneCache deletes derived files that no entry references.
func (h *Handlers) PruneCache(w http.ResponseWriter, r *http.Request) {
	res, err := h.cache.PruneOrphans(r.Context())
	if err != nil {
		logging.Error("cache prune failed: %v", err)
		writeJSONError(w, "cache prune failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, res)
}
