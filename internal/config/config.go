package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	AutoMigrate   bool   `envconfig:"DATABASE_AUTO_MIGRATE" default:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	Timezone              string `envconfig:"SHOP_TIMEZONE" default:"Asia/Jakarta"`
	MaxLookbackDays       int    `envconfig:"LEDGER_MAX_LOOKBACK_DAYS" default:"400"`
	MaxRangeDays          int    `envconfig:"LEDGER_MAX_RANGE_DAYS" default:"366"`
	ReconcileTolerance    string `envconfig:"LEDGER_RECONCILE_TOLERANCE" default:"0.01"`
	LockTTLSeconds        int    `envconfig:"LEDGER_LOCK_TTL_SECONDS" default:"30"`
	ReportCacheTTLSeconds int    `envconfig:"REPORT_CACHE_TTL_SECONDS" default:"120"`

	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`
	AdminPassword         string `envconfig:"ADMIN_PASSWORD"`
	CashierPassword       string `envconfig:"CASHIER_PASSWORD"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.AdminPassword = strings.TrimSpace(cfg.AdminPassword)
	cfg.CashierPassword = strings.TrimSpace(cfg.CashierPassword)
	if cfg.MaxLookbackDays < 1 {
		cfg.MaxLookbackDays = 400
	}
	if cfg.MaxRangeDays < 1 {
		cfg.MaxRangeDays = 366
	}
	if cfg.LockTTLSeconds < 1 {
		cfg.LockTTLSeconds = 30
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SHOP_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) Tolerance() (decimal.Decimal, error) {
	tol, err := decimal.NewFromString(strings.TrimSpace(c.ReconcileTolerance))
	if err != nil || tol.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid LEDGER_RECONCILE_TOLERANCE %q", c.ReconcileTolerance)
	}
	return tol, nil
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}
