package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the server.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// DatabaseFile is the sqlite database path.
	DatabaseFile string `env:"DATABASE_FILE" envDefault:"exact-mcp.db"`

	// MasterSecret derives the at-rest encryption keys for stored upstream
	// credentials. Required.
	MasterSecret string `env:"MASTER_SECRET"`

	// IssuerURL is the public base URL of this server, used in OAuth metadata
	// and as the token issuer. Required.
	IssuerURL string `env:"ISSUER_URL"`

	// LoginURL is the external login surface the authorize endpoint redirects
	// to. Defaults to IssuerURL + "/login".
	LoginURL string `env:"LOGIN_URL"`

	// Upstream provider OAuth client credentials.
	ExactClientID     string `env:"EXACT_CLIENT_ID"`
	ExactClientSecret string `env:"EXACT_CLIENT_SECRET"`
	ExactTokenURL     string `env:"EXACT_TOKEN_URL" envDefault:"https://start.exactonline.nl/api/oauth2/token"`
	ExactBaseURL      string `env:"EXACT_BASE_URL" envDefault:"https://start.exactonline.nl/api"`

	// First-party token lifetimes.
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	CodeTTL         time.Duration `env:"CODE_TTL" envDefault:"10m"`

	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"15s"`

	Env       string `env:"ENVIRONMENT" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from the environment, with an optional .env file
// for local development.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.MasterSecret == "" {
		return Config{}, fmt.Errorf("MASTER_SECRET is required")
	}
	if cfg.IssuerURL == "" {
		return Config{}, fmt.Errorf("ISSUER_URL is required")
	}
	if cfg.ExactClientID == "" || cfg.ExactClientSecret == "" {
		return Config{}, fmt.Errorf("EXACT_CLIENT_ID and EXACT_CLIENT_SECRET are required")
	}

	if cfg.LoginURL == "" {
		cfg.LoginURL = cfg.IssuerURL + "/login"
	}

	return cfg, nil
}
