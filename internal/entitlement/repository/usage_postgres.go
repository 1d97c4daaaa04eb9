package repository

import (
	"context"
	"database/sql"
	"time"

	"caresight/backend/internal/entitlement/domain"
)

// PostgresUsageCounter counts a tenant's cameras and sites directly from the
// provisioning tables.
type PostgresUsageCounter struct {
	db *sql.DB
}

// NewPostgresUsageCounter returns a usage counter backed by the given db.
func NewPostgresUsageCounter(db *sql.DB) *PostgresUsageCounter {
	return &PostgresUsageCounter{db: db}
}

// CountUsage returns a fresh usage snapshot for the tenant.
func (c *PostgresUsageCounter) CountUsage(ctx context.Context, tenantID string) (*domain.UsageSnapshot, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM cameras WHERE tenant_id = $1),
			(SELECT count(*) FROM sites   WHERE tenant_id = $1)`, tenantID)
	var cameras, sites int
	if err := row.Scan(&cameras, &sites); err != nil {
		return nil, err
	}
	return &domain.UsageSnapshot{
		TenantID:    tenantID,
		CameraCount: cameras,
		SiteCount:   sites,
		AsOf:        time.Now().UTC(),
	}, nil
}
