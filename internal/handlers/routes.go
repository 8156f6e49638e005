package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Routes registers the API and probe endpoints on r.
func (h *Handlers) Routes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	photos := api.PathPrefix("/photos").Subrouter()
	photos.HandleFunc("", h.ListPhotos).Methods(http.MethodGet)
	photos.HandleFunc("", h.UploadPhoto).Methods(http.MethodPost)
	photos.HandleFunc("/{id}", h.GetPhoto).Methods(http.MethodGet)
	photos.HandleFunc("/{id}", h.DeletePhoto).Methods(http.MethodDelete)
	photos.HandleFunc("/{id}/title", h.UpdatePhotoTitle).Methods(http.MethodPut)
	photos.HandleFunc("/{id}/file", h.GetPhotoFile).Methods(http.MethodGet, http.MethodHead)
	photos.HandleFunc("/{id}/thumbnail", h.GetThumbnail).Methods(http.MethodGet, http.MethodHead)
	photos.HandleFunc("/{id}/compressed", h.GetCompressed).Methods(http.MethodGet, http.MethodHead)

	cache := api.PathPrefix("/cache").Subrouter()
	cache.HandleFunc("", h.ClearCache).Methods(http.MethodDelete)
	cache.HandleFunc("/stats", h.GetCacheStats).Methods(http.MethodGet)
	cache.HandleFunc("/inspect", h.InspectCache).Methods(http.MethodGet)
	cache.HandleFunc("/config", h.PatchCacheConfig).Methods(http.MethodPatch)
	cache.HandleFunc("/warm", h.WarmCache).Methods(http.MethodPost)
	cache.HandleFunc("/prune", h.PruneCache).Methods(http.MethodPost)
}
