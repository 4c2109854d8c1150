package dataplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lumeris/hub/internal/api/respond"
	"github.com/lumeris/hub/internal/cache"
	"github.com/lumeris/hub/internal/circuitbreaker"
	"github.com/lumeris/hub/internal/dashboard"
	"github.com/lumeris/hub/internal/domain"
	"github.com/lumeris/hub/internal/logging"
	"github.com/lumeris/hub/internal/metrics"
	"github.com/lumeris/hub/internal/store"
)

// Route patterns served by the data plane.
const (
	DashboardRoute = "/api/analytics/user/{userId}/dashboard"
	ActivityRoute  = "/api/analytics/user/{userId}/activity"
)

// DashboardPath returns the concrete dashboard path of a user.
func DashboardPath(userID string) string {
	return "/api/analytics/user/" + userID + "/dashboard"
}

// Handler handles user-facing HTTP requests (dashboard reads, activity writes
// and health probes).
type Handler struct {
	Dashboard *dashboard.Service
	Records   store.RecordStore
	Cache     *cache.Store
	Breakers  *circuitbreaker.Registry
	Started   time.Time
}

// Wrap holds the per-route middleware chains applied at registration.
type Wrap struct {
	Dashboard func(http.Handler) http.Handler
	Activity  func(http.Handler) http.Handler
}

// RegisterRoutes registers all data plane routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, wrap Wrap) {
	mux.Handle("GET "+DashboardRoute, apply(wrap.Dashboard, http.HandlerFunc(h.GetDashboard)))
	mux.Handle("POST "+ActivityRoute, apply(wrap.Activity, http.HandlerFunc(h.LogActivity)))

	// Health probes
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)

	mux.Handle("GET /metrics/prometheus", metrics.PrometheusHandler())
}

func apply(mw func(http.Handler) http.Handler, h http.Handler) http.Handler {
	if mw == nil {
		return h
	}
	return mw(h)
}

// GetDashboard handles GET /api/analytics/user/{userId}/dashboard
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := h.Dashboard.GetDashboard(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeDashboardError(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, "User dashboard successfully retrieved", view)
}

func writeDashboardError(w http.ResponseWriter, r *http.Request, err error) {
	var depErr *dashboard.DependencyUnavailableError
	switch {
	case errors.Is(err, dashboard.ErrUserIDRequired):
		respond.Error(w, http.StatusBadRequest, "User ID is required")
	case errors.Is(err, dashboard.ErrUserNotFound):
		respond.Error(w, http.StatusNotFound, "User not found")
	case errors.As(err, &depErr):
		respond.Error(w, http.StatusBadGateway, "Dashboard data source unavailable: "+depErr.Dependency)
	default:
		logging.Op().Error("get dashboard", "user_id", r.PathValue("userId"), "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to retrieve user dashboard")
	}
}

// activityRequest is the body of an activity write.
type activityRequest struct {
	Type        string            `json:"type"`
	Category    string            `json:"category"`
	Action      string            `json:"action"`
	Description string            `json:"description"`
	Value       float64           `json:"value"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata"`
}

// LogActivity handles POST /api/analytics/user/{userId}/activity
func (h *Handler) LogActivity(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		respond.Error(w, http.StatusBadRequest, "User ID is required")
		return
	}

	var req activityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Category) == "" || strings.TrimSpace(req.Action) == "" {
		respond.Error(w, http.StatusBadRequest, "category and action are required")
		return
	}
	if req.Status == "" {
		req.Status = "completed"
	}

	activity := &domain.Activity{
		UserID:      userID,
		Type:        req.Type,
		Category:    req.Category,
		Action:      req.Action,
		Description: req.Description,
		Value:       req.Value,
		Status:      req.Status,
		Metadata:    req.Metadata,
	}
	if err := h.Records.LogActivity(r.Context(), activity); err != nil {
		logging.Op().Error("log activity", "user_id", userID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to log activity")
		return
	}
	respond.Success(w, http.StatusCreated, "Activity logged successfully", activity)
}

// Health handles GET /health - detailed status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	recordsOK := h.Records.Ping(ctx) == nil
	cacheStats := h.Cache.Stats(ctx)

	openBreakers := h.Breakers.Open()

	status := "ok"
	if !recordsOK || h.Cache.Mode() != cache.ModeShared || len(openBreakers) > 0 {
		status = "degraded"
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"status": status,
		"components": map[string]any{
			"records": recordsOK,
			"cache": map[string]any{
				"backend": cacheStats.Backend,
				"mode":    cacheStats.Mode,
				"size":    cacheStats.Size,
			},
			"breakers": h.Breakers.Snapshot(),
		},
		"uptime_seconds": int64(time.Since(h.Started).Seconds()),
	})
}

// HealthLive handles GET /health/live - liveness probe
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready - readiness probe. A degraded cache
// does not make the service unready; an unreachable record store does.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Records.Ping(ctx); err != nil {
		respond.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  "record store unavailable: " + err.Error(),
		})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
