// seed inserts development sample data for local testing. Run via ./scripts/seed.sh.
// Idempotent: skips inserts if the dev user (+15550100001) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"caresight/backend/internal/config"
	"caresight/backend/internal/db"
	entdomain "caresight/backend/internal/entitlement/domain"
	entrepo "caresight/backend/internal/entitlement/repository"
	identitydomain "caresight/backend/internal/identity/domain"
	identityrepo "caresight/backend/internal/identity/repository"
	monitoringdomain "caresight/backend/internal/monitoring/domain"
	monitoringrepo "caresight/backend/internal/monitoring/repository"
	tenantdomain "caresight/backend/internal/tenant/domain"
	tenantrepo "caresight/backend/internal/tenant/repository"
)

const (
	devTenantID   = "dev-tenant-001"
	devUserPhone  = "+15550100001"
	devUserID     = "dev-user-001"
	devUser2Phone = "+15550100002"
	devUser2ID    = "dev-user-002"
	devPlanID     = "dev-plan-001"
	devSiteID     = "dev-site-001"
	devCameraID   = "dev-camera-001"
	devCamera2ID  = "dev-camera-002"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	tenants := tenantrepo.NewPostgresRepository(conn)
	users := identityrepo.NewPostgresRepository(conn)
	plans := entrepo.NewPostgresRepository(conn)
	monitoring := monitoringrepo.NewPostgresRepository(conn)

	existing, err := users.GetByPhone(ctx, devUserPhone)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", devUserPhone)
		os.Exit(0)
	}

	now := time.Now().UTC()

	if err := tenants.Create(ctx, &tenantdomain.Tenant{
		ID:        devTenantID,
		Name:      "Riverside Care Group",
		CreatedAt: now,
	}); err != nil {
		log.Fatalf("create tenant: %v", err)
	}

	if err := users.Create(ctx, &identitydomain.User{
		ID:        devUserID,
		TenantID:  devTenantID,
		Phone:     devUserPhone,
		Name:      "Dev Admin",
		Status:    identitydomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		log.Fatalf("create dev user: %v", err)
	}

	if err := users.Create(ctx, &identitydomain.User{
		ID:        devUser2ID,
		TenantID:  devTenantID,
		Phone:     devUser2Phone,
		Name:      "Night Shift",
		Status:    identitydomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		log.Fatalf("create shift user: %v", err)
	}

	if err := plans.Activate(ctx, &entdomain.SubscriptionPlan{
		ID:            devPlanID,
		TenantID:      devTenantID,
		PlanCode:      "pro",
		LicenseActive: true,
		MaxCameras:    16,
		MaxSites:      4,
		ActivatedAt:   now,
	}); err != nil {
		log.Fatalf("activate plan: %v", err)
	}

	if err := monitoring.CreateSite(ctx, &monitoringdomain.Site{
		ID:        devSiteID,
		TenantID:  devTenantID,
		Name:      "Riverside House",
		CreatedAt: now,
	}); err != nil {
		log.Fatalf("create site: %v", err)
	}

	for i, cam := range []monitoringdomain.Camera{
		{ID: devCameraID, TenantID: devTenantID, SiteID: devSiteID, Name: "Common Room", CreatedAt: now},
		{ID: devCamera2ID, TenantID: devTenantID, SiteID: devSiteID, Name: "Corridor East", CreatedAt: now},
	} {
		cam := cam
		if err := monitoring.CreateCamera(ctx, &cam); err != nil {
			log.Fatalf("create camera %d: %v", i, err)
		}
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login phone: %s (tenant %s, plan pro)\n", devUserPhone, devTenantID)
	fmt.Printf("Shift login phone: %s\n", devUser2Phone)
}
