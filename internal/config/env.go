package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// Env holds settings injected from the environment: everything about how this
// client reaches the backend. A .env file is honored for local development;
// in packaged builds the variables come from the launcher.
type Env struct {
	BackendURL          string        `env:"SKYRUSH_BACKEND_URL" envDefault:"http://localhost:8080"`
	SnapshotWSURL       string        `env:"SKYRUSH_SNAPSHOT_WS_URL"`
	AuthToken           string        `env:"SKYRUSH_AUTH_TOKEN"`
	RequestTimeout      time.Duration `env:"SKYRUSH_REQUEST_TIMEOUT" envDefault:"10s"`
	PurchaseInitTimeout time.Duration `env:"SKYRUSH_PURCHASE_INIT_TIMEOUT" envDefault:"10s"`
	PurchaseCooldown    time.Duration `env:"SKYRUSH_PURCHASE_COOLDOWN" envDefault:"2s"`
	MetricsAddr         string        `env:"SKYRUSH_METRICS_ADDR"`
	DBPath              string        `env:"SKYRUSH_DB_PATH" envDefault:"~/.skyrush/local.db"`
}

// LoadEnv reads Env from the process environment, loading .env first when
// present.
func LoadEnv() (*Env, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded environment variables from .env file")
	}

	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (e *Env) Validate() error {
	if e.BackendURL == "" {
		return fmt.Errorf("SKYRUSH_BACKEND_URL is required")
	}
	if e.RequestTimeout <= 0 {
		return fmt.Errorf("SKYRUSH_REQUEST_TIMEOUT must be positive")
	}
	if e.PurchaseInitTimeout <= 0 {
		return fmt.Errorf("SKYRUSH_PURCHASE_INIT_TIMEOUT must be positive")
	}
	return nil
}
