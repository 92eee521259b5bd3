// Package config loads application configuration from environment variables.
// A local .env file, if present, is loaded first without overriding variables
// that are already set.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	// RedisURL is optional: when empty the identity cache is disabled and
	// every /auth/me lookup goes straight to the store.
	RedisURL string `env:"REDIS_URL"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY,required"`

	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET,required"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET,required"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	// ClientURL is the browser origin allowed by CORS (credentials enabled).
	ClientURL string `env:"CLIENT_URL" envDefault:"http://localhost:5173"`

	UploadDir string `env:"UPLOAD_DIR" envDefault:"./uploads"`
}

// Load reads .env (best effort) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
