package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"caresight/backend/internal/entitlement/domain"
)

// PostgresRepository persists subscription plans in the subscription_plans table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a plan repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const planColumns = `id, tenant_id, plan_code, license_active, max_cameras, max_sites, activated_at, superseded_at`

// GetActiveByTenant returns the tenant's current plan, or nil if the tenant has none.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetActiveByTenant(ctx context.Context, tenantID string) (*domain.SubscriptionPlan, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+planColumns+` FROM subscription_plans
		WHERE tenant_id = $1 AND superseded_at IS NULL`, tenantID)
	p, err := scanPlan(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Activate supersedes the tenant's current plan and inserts the new one in a
// single transaction, so there is never a moment with two active plans. The
// partial unique index on (tenant_id) WHERE superseded_at IS NULL backs this up.
func (r *PostgresRepository) Activate(ctx context.Context, p *domain.SubscriptionPlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE subscription_plans SET superseded_at = $2
		WHERE tenant_id = $1 AND superseded_at IS NULL`,
		p.TenantID, time.Now().UTC()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO subscription_plans (id, tenant_id, plan_code, license_active, max_cameras, max_sites, activated_at, superseded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)`,
		p.ID, p.TenantID, p.PlanCode, p.LicenseActive, p.MaxCameras, p.MaxSites, p.ActivatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// ListByTenant returns the tenant's plan history, newest activation first.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.SubscriptionPlan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+planColumns+` FROM subscription_plans
		WHERE tenant_id = $1 ORDER BY activated_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPlan(scan func(dest ...any) error) (*domain.SubscriptionPlan, error) {
	var p domain.SubscriptionPlan
	var superseded sql.NullTime
	err := scan(&p.ID, &p.TenantID, &p.PlanCode, &p.LicenseActive, &p.MaxCameras, &p.MaxSites, &p.ActivatedAt, &superseded)
	if err != nil {
		return nil, err
	}
	if superseded.Valid {
		t := superseded.Time
		p.SupersededAt = &t
	}
	return &p, nil
}
