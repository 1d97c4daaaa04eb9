package repository

import (
	"context"

	"caresight/backend/internal/monitoring/domain"
)

// Repository defines persistence for sites and cameras.
type Repository interface {
	ListCamerasByTenant(ctx context.Context, tenantID string) ([]*domain.Camera, error)
	GetCamera(ctx context.Context, tenantID, id string) (*domain.Camera, error)
	CreateCamera(ctx context.Context, c *domain.Camera) error
	ListSitesByTenant(ctx context.Context, tenantID string) ([]*domain.Site, error)
	CreateSite(ctx context.Context, s *domain.Site) error
}
