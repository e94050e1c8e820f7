package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Sweep trigger modes.
const (
	SweepModeTicker = "ticker"
	SweepModeCron   = "cron"
)

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort         string
	DatabaseURL      string // empty selects the in-memory store
	DatabaseMaxConns int32
	RedisURL         string // empty disables the distributed sweep lock

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	PlatformFeePercent   decimal.Decimal
	DefaultMinimumPayout int64
	Currency             string

	SweepMode      string
	SweepInterval  time.Duration
	SweepCron      string
	SweepLockTTL   time.Duration
	ClaimBatchSize int32

	GatewayFailureRate float64

	PublicRateLimitRPS int
	AuthRateLimitRPS   int
	LogLevel           string
	CORSOrigins        []string
}

// Load reads environment variables using viper and returns a typed config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	bindEnv(v, "port", "PORT", "PAYOUT_PORT")
	bindEnv(v, "database_url", "DATABASE_URL", "PAYOUT_DATABASE_URL")
	bindEnv(v, "database_max_conns", "DATABASE_MAX_CONNS", "PAYOUT_DATABASE_MAX_CONNS")
	bindEnv(v, "redis_url", "REDIS_URL", "PAYOUT_REDIS_URL")
	bindEnv(v, "jwt_secret", "JWT_SECRET", "PAYOUT_JWT_SECRET")
	bindEnv(v, "jwt_issuer", "JWT_ISSUER", "PAYOUT_JWT_ISSUER")
	bindEnv(v, "jwt_audience", "JWT_AUDIENCE", "PAYOUT_JWT_AUDIENCE")
	bindEnv(v, "platform_fee_percent", "PLATFORM_FEE_PERCENT", "PAYOUT_PLATFORM_FEE_PERCENT")
	bindEnv(v, "default_minimum_payout", "DEFAULT_MINIMUM_PAYOUT", "PAYOUT_DEFAULT_MINIMUM")
	bindEnv(v, "currency", "CURRENCY", "PAYOUT_CURRENCY")
	bindEnv(v, "sweep_mode", "SWEEP_MODE", "PAYOUT_SWEEP_MODE")
	bindEnv(v, "sweep_interval", "SWEEP_INTERVAL", "PAYOUT_SWEEP_INTERVAL")
	bindEnv(v, "sweep_cron", "SWEEP_CRON", "PAYOUT_SWEEP_CRON")
	bindEnv(v, "sweep_lock_ttl", "SWEEP_LOCK_TTL", "PAYOUT_SWEEP_LOCK_TTL")
	bindEnv(v, "claim_batch_size", "CLAIM_BATCH_SIZE", "PAYOUT_CLAIM_BATCH_SIZE")
	bindEnv(v, "gateway_failure_rate", "GATEWAY_FAILURE_RATE", "PAYOUT_GATEWAY_FAILURE_RATE")
	bindEnv(v, "public_rate_limit_rps", "PUBLIC_RATE_LIMIT_RPS", "PAYOUT_PUBLIC_RATE_LIMIT_RPS")
	bindEnv(v, "auth_rate_limit_rps", "AUTH_RATE_LIMIT_RPS", "PAYOUT_AUTH_RATE_LIMIT_RPS")
	bindEnv(v, "log_level", "LOG_LEVEL", "PAYOUT_LOG_LEVEL")
	bindEnv(v, "cors_origins", "CORS_ORIGINS", "PAYOUT_CORS_ORIGINS")

	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("database_max_conns", 10)
	v.SetDefault("redis_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "restaurant-payouts")
	v.SetDefault("jwt_audience", "restaurant-dashboard")
	v.SetDefault("platform_fee_percent", "5")
	v.SetDefault("default_minimum_payout", 0)
	v.SetDefault("currency", "USD")
	v.SetDefault("sweep_mode", SweepModeTicker)
	v.SetDefault("sweep_interval", "1m")
	v.SetDefault("sweep_cron", "0 9 * * *")
	v.SetDefault("sweep_lock_ttl", "5m")
	v.SetDefault("claim_batch_size", 500)
	v.SetDefault("gateway_failure_rate", 0.0)
	v.SetDefault("public_rate_limit_rps", 10)
	v.SetDefault("auth_rate_limit_rps", 100)
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", "*")

	feePercent, err := decimal.NewFromString(v.GetString("platform_fee_percent"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_PERCENT: %w", err)
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %s", feePercent)
	}

	sweepInterval, err := time.ParseDuration(v.GetString("sweep_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	lockTTL, err := time.ParseDuration(v.GetString("sweep_lock_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_LOCK_TTL: %w", err)
	}

	sweepMode := strings.ToLower(v.GetString("sweep_mode"))
	switch sweepMode {
	case SweepModeTicker, SweepModeCron:
	default:
		return nil, fmt.Errorf("SWEEP_MODE must be %q or %q, got %q", SweepModeTicker, SweepModeCron, sweepMode)
	}

	batchSize := v.GetInt("claim_batch_size")
	if batchSize <= 0 {
		batchSize = 500
	}

	failureRate := v.GetFloat64("gateway_failure_rate")
	if failureRate < 0 || failureRate > 1 {
		return nil, fmt.Errorf("GATEWAY_FAILURE_RATE must be between 0 and 1, got %v", failureRate)
	}

	minimum := v.GetInt64("default_minimum_payout")
	if minimum < 0 {
		return nil, fmt.Errorf("DEFAULT_MINIMUM_PAYOUT must not be negative, got %d", minimum)
	}

	maxConns := v.GetInt("database_max_conns")
	if maxConns <= 0 {
		return nil, fmt.Errorf("DATABASE_MAX_CONNS must be positive, got %d", maxConns)
	}

	cfg := &Config{
		HTTPPort:             v.GetString("port"),
		DatabaseURL:          v.GetString("database_url"),
		DatabaseMaxConns:     int32(maxConns),
		RedisURL:             v.GetString("redis_url"),
		JWTSecret:            v.GetString("jwt_secret"),
		JWTIssuer:            v.GetString("jwt_issuer"),
		JWTAudience:          v.GetString("jwt_audience"),
		PlatformFeePercent:   feePercent,
		DefaultMinimumPayout: minimum,
		Currency:             strings.ToUpper(v.GetString("currency")),
		SweepMode:            sweepMode,
		SweepInterval:        sweepInterval,
		SweepCron:            v.GetString("sweep_cron"),
		SweepLockTTL:         lockTTL,
		ClaimBatchSize:       int32(batchSize),
		GatewayFailureRate:   failureRate,
		PublicRateLimitRPS:   max(v.GetInt("public_rate_limit_rps"), 1),
		AuthRateLimitRPS:     max(v.GetInt("auth_rate_limit_rps"), 1),
		LogLevel:             v.GetString("log_level"),
		CORSOrigins:          splitOrigins(v.GetString("cors_origins")),
	}

	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if strings.TrimSpace(cfg.JWTIssuer) == "" {
		return nil, fmt.Errorf("JWT_ISSUER is required")
	}
	if strings.TrimSpace(cfg.JWTAudience) == "" {
		return nil, fmt.Errorf("JWT_AUDIENCE is required")
	}

	return cfg, nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}
