package repository

import (
	"context"
	"database/sql"
	"errors"

	"caresight/backend/internal/monitoring/domain"
)

// PostgresRepository persists sites and cameras.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a monitoring repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListCamerasByTenant returns the tenant's cameras, oldest first.
func (r *PostgresRepository) ListCamerasByTenant(ctx context.Context, tenantID string) ([]*domain.Camera, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, COALESCE(site_id, ''), name, created_at
		FROM cameras WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Camera
	for rows.Next() {
		var c domain.Camera
		if err := rows.Scan(&c.ID, &c.TenantID, &c.SiteID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetCamera returns the camera by id within the tenant, or nil if not found.
func (r *PostgresRepository) GetCamera(ctx context.Context, tenantID, id string) (*domain.Camera, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, COALESCE(site_id, ''), name, created_at
		FROM cameras WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	var c domain.Camera
	err := row.Scan(&c.ID, &c.TenantID, &c.SiteID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// CreateCamera persists the camera. The camera must have ID set.
func (r *PostgresRepository) CreateCamera(ctx context.Context, c *domain.Camera) error {
	var siteID any
	if c.SiteID != "" {
		siteID = c.SiteID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cameras (id, tenant_id, site_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.TenantID, siteID, c.Name, c.CreatedAt)
	return err
}

// ListSitesByTenant returns the tenant's sites, oldest first.
func (r *PostgresRepository) ListSitesByTenant(ctx context.Context, tenantID string) ([]*domain.Site, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, created_at
		FROM sites WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Site
	for rows.Next() {
		var s domain.Site
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// CreateSite persists the site. The site must have ID set.
func (r *PostgresRepository) CreateSite(ctx context.Context, s *domain.Site) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sites (id, tenant_id, name, created_at)
		VALUES ($1, $2, $3, $4)`,
		s.ID, s.TenantID, s.Name, s.CreatedAt)
	return err
}
