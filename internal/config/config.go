// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/joho/godotenv"
)

// Token store backends.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	ClientID     string   `env:"X_CLIENT_ID"`
	ClientSecret string   `env:"X_CLIENT_SECRET"`
	RedirectURI  string   `env:"X_REDIRECT_URI"`
	Scopes       []string `env:"X_SCOPES" envSeparator:" " envDefault:"tweet.read tweet.write users.read offline.access media.write"`
	AuthURL      string   `env:"X_AUTH_URL"`
	TokenURL     string   `env:"X_TOKEN_URL"`
	APIBaseURL   string   `env:"X_API_BASE_URL"`
	UploadURL    string   `env:"X_UPLOAD_URL"`

	Host        string        `env:"HOST" envDefault:"127.0.0.1"`
	Port        int           `env:"PORT" envDefault:"5000"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	FlowTTL     time.Duration `env:"FLOW_TTL" envDefault:"10m"`
	UploadDir   string        `env:"UPLOAD_DIR" envDefault:"uploads"`

	TokenStore  string `env:"TOKEN_STORE" envDefault:"file"`
	TokenFile   string `env:"TOKEN_FILE" envDefault:"sessions/token.json"`
	TokenKey    string `env:"TOKEN_KEY" envDefault:"default"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"sessions/xpost.db"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	FlowStore   string `env:"FLOW_STORE" envDefault:"memory"`

	OperatorJWTSecret string `env:"OPERATOR_JWT_SECRET"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads an optional .env file and parses the environment.
// Variables already set in the environment win over the file.
func Load(dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OperatorAuthEnabled reports whether the JSON API requires operator tokens.
func (c *Config) OperatorAuthEnabled() bool {
	return c.OperatorJWTSecret != ""
}

// Validate reports every missing or invalid setting at once. Problems
// are collected in a *domain.ConfigurationError.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.ClientID) == "" {
		problems = append(problems, "X_CLIENT_ID is required")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		problems = append(problems, "X_REDIRECT_URI is required")
	} else if u, err := url.Parse(c.RedirectURI); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "X_REDIRECT_URI must be an absolute URL")
	}
	if len(c.Scopes) == 0 {
		problems = append(problems, "X_SCOPES must name at least one scope")
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT %d is out of range", c.Port))
	}
	if c.HTTPTimeout <= 0 {
		problems = append(problems, "HTTP_TIMEOUT must be positive")
	}
	if c.FlowTTL <= 0 {
		problems = append(problems, "FLOW_TTL must be positive")
	}

	switch c.TokenStore {
	case StoreFile:
		if c.TokenFile == "" {
			problems = append(problems, "TOKEN_FILE is required for the file token store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			problems = append(problems, "SQLITE_PATH is required for the sqlite token store")
		}
	case StorePostgres, StoreRedis:
	default:
		problems = append(problems, fmt.Sprintf("TOKEN_STORE %q is not one of file, sqlite, postgres, redis", c.TokenStore))
	}

	switch c.FlowStore {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		problems = append(problems, fmt.Sprintf("FLOW_STORE %q is not one of memory, postgres, redis", c.FlowStore))
	}

	if c.uses(StorePostgres) && c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required for postgres stores")
	}
	if c.uses(StoreRedis) && c.RedisURL == "" {
		problems = append(problems, "REDIS_URL is required for redis stores")
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}

	if len(problems) > 0 {
		return &domain.ConfigurationError{Problems: problems}
	}
	return nil
}

func (c *Config) uses(backend string) bool {
	return c.TokenStore == backend || c.FlowStore == backend
}
