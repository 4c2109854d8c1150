package controlplane

import (
	"net/http"

	"github.com/lumeris/hub/internal/api/respond"
	"github.com/lumeris/hub/internal/cache"
)

// Handler serves cache administration endpoints.
type Handler struct {
	Cache       *cache.Store
	Invalidator *cache.Invalidator
}

// RegisterRoutes registers all control plane routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/cache", h.ClearCache)
}

// CacheStats handles GET /api/cache/stats
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respond.Success(w, http.StatusOK, "Cache statistics retrieved", h.Cache.Stats(r.Context()))
}

// ClearCache handles DELETE /api/cache
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if !h.Invalidator.Clear(r.Context()) {
		respond.Error(w, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	respond.Success(w, http.StatusOK, "Cache cleared", nil)
}
