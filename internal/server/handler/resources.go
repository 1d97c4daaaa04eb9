package handler

import (
	"context"
	"net/http"
	"time"

	monitoringdomain "caresight/backend/internal/monitoring/domain"
	"caresight/backend/internal/server/middleware"
)

// MonitoringRepo is the minimal monitoring repository needed by the resource handlers.
type MonitoringRepo interface {
	ListCamerasByTenant(ctx context.Context, tenantID string) ([]*monitoringdomain.Camera, error)
	GetCamera(ctx context.Context, tenantID, id string) (*monitoringdomain.Camera, error)
	ListSitesByTenant(ctx context.Context, tenantID string) ([]*monitoringdomain.Site, error)
}

// ResourceHandler serves the gated monitoring resource endpoints. The gate
// middleware runs before these; handlers only read the resolved identity.
type ResourceHandler struct {
	repo MonitoringRepo
}

// NewResourceHandler returns a ResourceHandler over the monitoring repository.
func NewResourceHandler(repo MonitoringRepo) *ResourceHandler {
	return &ResourceHandler{repo: repo}
}

type cameraResponse struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type siteResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ListCameras returns the caller tenant's cameras.
func (h *ResourceHandler) ListCameras(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "token_invalid")
		return
	}
	cams, err := h.repo.ListCamerasByTenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	out := make([]cameraResponse, 0, len(cams))
	for _, c := range cams {
		out = append(out, cameraResponse{ID: c.ID, SiteID: c.SiteID, Name: c.Name, CreatedAt: c.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cameras": out})
}

// GetCamera returns a single camera for live view.
func (h *ResourceHandler) GetCamera(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "token_invalid")
		return
	}
	cam, err := h.repo.GetCamera(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	if cam == nil {
		writeError(w, http.StatusNotFound, "camera_not_found")
		return
	}
	writeJSON(w, http.StatusOK, cameraResponse{ID: cam.ID, SiteID: cam.SiteID, Name: cam.Name, CreatedAt: cam.CreatedAt})
}

// ListSites returns the caller tenant's sites.
func (h *ResourceHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenantID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "token_invalid")
		return
	}
	sites, err := h.repo.ListSitesByTenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	out := make([]siteResponse, 0, len(sites))
	for _, s := range sites {
		out = append(out, siteResponse{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": out})
}

// Dashboard is the browser landing route behind the session guard.
func (h *ResourceHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	tenantID, _ := middleware.GetTenantID(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":   userID,
		"tenant_id": tenantID,
	})
}
