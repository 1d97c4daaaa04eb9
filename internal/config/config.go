// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; pairs with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPreviousPublicKey is an optional PEM public key (or path) from before the last
	// signing-key rotation. Tokens signed with the old key stay valid until their expiry;
	// clear this once the refresh TTL has elapsed after a rotation.
	JWTPreviousPublicKey string `mapstructure:"JWT_PREVIOUS_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "caresight-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "caresight-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31) used for OTP code hashes; default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTPCodeLength is the number of digits in a one-time passcode (4–10); default 6.
	OTPCodeLength int `mapstructure:"OTP_CODE_LENGTH"`
	// OTPTTL is how long a challenge stays verifiable (e.g. "5m").
	OTPTTL string `mapstructure:"OTP_TTL"`
	// OTPMaxAttempts is the wrong-code budget per challenge; default 5.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPReturnToClient when true enables dev OTP mode: no SMS, plain code retrievable via
	// GET /dev/otp. Must not be true when Env is production (startup error).
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// SMSLocalAPIKey is the API key for SMS Local. Required for real OTP delivery.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// UsageMaxStaleness bounds how old a usage snapshot may be when a quota check runs
	// (e.g. "30s"). Staler reads fail closed.
	UsageMaxStaleness string `mapstructure:"USAGE_MAX_STALENESS"`
	// EntitlementCacheTTL is how long resolved plan/usage entries may be served from
	// cache (e.g. "10s"). Must not exceed USAGE_MAX_STALENESS.
	EntitlementCacheTTL string `mapstructure:"ENTITLEMENT_CACHE_TTL"`

	// StripeWebhookSecret verifies Stripe webhook signatures for plan sync. Empty disables the webhook.
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	// StripePricePlans maps Stripe price IDs to plan codes as comma-separated
	// "price_id=plan_code" pairs (e.g. "price_1AbC=basic,price_2DeF=pro").
	// Unmapped prices are logged and skipped by the webhook.
	StripePricePlans string `mapstructure:"STRIPE_PRICE_PLANS"`

	// LoginPath is where the session guard redirects unauthenticated dashboard requests.
	LoginPath string `mapstructure:"LOGIN_PATH"`

	// AuditKafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables audit events.
	AuditKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for audit events (default caresight-audit).
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the audit worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL the audit worker pushes to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zerolog level (trace, debug, info, warn, error); default info.
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "caresight-auth")
	v.SetDefault("JWT_AUDIENCE", "caresight-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("OTP_CODE_LENGTH", 6)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://www.smslocal.com/dev/bulkV2")
	v.SetDefault("USAGE_MAX_STALENESS", "30s")
	v.SetDefault("ENTITLEMENT_CACHE_TTL", "10s")
	v.SetDefault("STRIPE_PRICE_PLANS", "")
	v.SetDefault("LOGIN_PATH", "/login")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "caresight-audit")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_GROUP_ID", "caresight-audit-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.OTPCodeLength < 4 || cfg.OTPCodeLength > 10 {
		return nil, errors.New("config: OTP_CODE_LENGTH must be between 4 and 10")
	}
	if cfg.OTPMaxAttempts < 1 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}

	if cfg.CacheTTL() > cfg.MaxStaleness() {
		return nil, errors.New("config: ENTITLEMENT_CACHE_TTL must not exceed USAGE_MAX_STALENESS")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// ChallengeTTL parses OTPTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	d, err := time.ParseDuration(c.OTPTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// MaxStaleness parses UsageMaxStaleness as a time.Duration. Returns 30s if unset or invalid.
func (c *Config) MaxStaleness() time.Duration {
	d, err := time.ParseDuration(c.UsageMaxStaleness)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// CacheTTL parses EntitlementCacheTTL as a time.Duration. Returns 10s if unset or invalid.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.EntitlementCacheTTL)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// StripePricePlanCodes parses StripePricePlans into a price ID to plan code map.
// Malformed pairs are dropped.
func (c *Config) StripePricePlanCodes() map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.StripePricePlans, ",") {
		priceID, planCode, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || priceID == "" || planCode == "" {
			continue
		}
		out[priceID] = planCode
	}
	return out
}

// AuditKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// A non-empty list means audit events are enabled.
func (c *Config) AuditKafkaBrokersList() []string {
	if c == nil || c.AuditKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AuditKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
