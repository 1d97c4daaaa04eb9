// Server runs the caresight auth and resource HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caresight/backend/internal/audit"
	auditproducer "caresight/backend/internal/audit/producer"
	authservice "caresight/backend/internal/auth/service"
	"caresight/backend/internal/billing"
	"caresight/backend/internal/config"
	"caresight/backend/internal/db"
	"caresight/backend/internal/devotp"
	entrepo "caresight/backend/internal/entitlement/repository"
	entservice "caresight/backend/internal/entitlement/service"
	"caresight/backend/internal/gate"
	"caresight/backend/internal/gate/engine"
	"caresight/backend/internal/health"
	identityrepo "caresight/backend/internal/identity/repository"
	"caresight/backend/internal/logging"
	monitoringrepo "caresight/backend/internal/monitoring/repository"
	otprepo "caresight/backend/internal/otp/repository"
	otpservice "caresight/backend/internal/otp/service"
	"caresight/backend/internal/security"
	"caresight/backend/internal/server"
	"caresight/backend/internal/server/handler"
	sessionrepo "caresight/backend/internal/session/repository"
	"caresight/backend/internal/sms"
	tenantrepo "caresight/backend/internal/tenant/repository"
)

const (
	smsMaxAttempts = 3
	smsBaseDelay   = 500 * time.Millisecond
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	logger := logging.NewDefault(cfg.Env, cfg.LogLevel)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	if cfg.JWTPreviousPublicKey != "" {
		previous, err := security.ParsePublicKey(cfg.JWTPreviousPublicKey)
		if err != nil {
			log.Fatalf("jwt previous public key: %v", err)
		}
		tokens = tokens.WithPreviousKey(previous)
	}

	var (
		notifier sms.Notifier
		devStore devotp.Store
	)
	if cfg.OTPReturnToClient {
		devStore = devotp.NewMemoryStore()
		logger.Warn().Msg("dev OTP mode enabled; codes are readable via GET /dev/otp")
	} else {
		if cfg.SMSLocalAPIKey == "" {
			log.Fatal("SMS_LOCAL_API_KEY is required unless OTP_RETURN_TO_CLIENT is set")
		}
		notifier = sms.NewRetryingNotifier(
			sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender),
			smsMaxAttempts, smsBaseDelay,
		)
	}

	challenges := otpservice.NewChallengeService(
		otprepo.NewPostgresRepository(conn),
		security.NewHasher(cfg.BcryptCost),
		notifier,
		devStore,
		cfg.OTPCodeLength,
		cfg.ChallengeTTL(),
		cfg.OTPMaxAttempts,
		logging.Component(logger, "otp"),
	)

	users := identityrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	authSvc := authservice.NewAuthService(challenges, users, sessions, tokens, cfg.RefreshTTL(), logging.Component(logger, "auth"))
	validator := authservice.NewSessionValidator(tokens, sessions)

	plans := entrepo.NewPostgresRepository(conn)
	resolver := entservice.NewResolver(
		plans,
		entrepo.NewPostgresUsageCounter(conn),
		cfg.CacheTTL(),
		cfg.MaxStaleness(),
		logging.Component(logger, "entitlement"),
	)

	evaluator, err := engine.NewOPAEvaluator()
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	requirements := gate.NewRegistry()
	server.RegisterRequirements(requirements)
	authGate := gate.New(validator, requirements, resolver, evaluator, logging.Component(logger, "gate"))

	producer, err := auditproducer.NewKafkaProducer(cfg.AuditKafkaBrokersList(), cfg.AuditKafkaTopic)
	if err != nil {
		log.Fatalf("audit producer: %v", err)
	}
	emitter := audit.NewEmitter(producer, logging.Component(logger, "audit"))

	var billingSvc *billing.Service
	if cfg.StripeWebhookSecret != "" {
		billingSvc = billing.NewService(
			plans,
			tenantrepo.NewPostgresRepository(conn),
			resolver,
			cfg.StripeWebhookSecret,
			billing.PriceMap(cfg.StripePricePlanCodes()),
			logging.Component(logger, "billing"),
		)
	}

	var devOTPHandler *handler.DevOTPHandler
	if devStore != nil {
		devOTPHandler = handler.NewDevOTPHandler(devStore)
	}

	srv := server.New(server.Options{
		Addr:      cfg.HTTPAddr,
		LoginPath: cfg.LoginPath,
		Auth:      handler.NewAuthHandler(authSvc, validator, emitter, logging.Component(logger, "http")),
		Resources: handler.NewResourceHandler(monitoringrepo.NewPostgresRepository(conn)),
		Webhook:   billing.NewWebhookHandler(billingSvc, logging.Component(logger, "billing")),
		DevOTP:    devOTPHandler,
		Health:    health.NewHandler(conn, evaluator),
		Gate:      authGate,
		Validator: validator,
		Audit:     emitter,
	}, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down http server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}

	if producer != nil {
		// Let in-flight audit emits drain before closing the writer.
		time.Sleep(audit.ShutdownDrainDuration)
		if err := producer.Close(); err != nil {
			logger.Error().Err(err).Msg("audit producer close")
		}
	}
	logger.Info().Msg("http server stopped")
}
