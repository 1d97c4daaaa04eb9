package repository

import (
	"context"

	"caresight/backend/internal/identity/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.User, error)
}
