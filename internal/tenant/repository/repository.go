package repository

import (
	"context"

	"caresight/backend/internal/tenant/domain"
)

// Repository defines persistence for tenants.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	Create(ctx context.Context, t *domain.Tenant) error
	List(ctx context.Context) ([]*domain.Tenant, error)
}
