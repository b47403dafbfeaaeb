package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string `env:"PORT" envDefault:"8080"`
	AllowedOrigin         string `env:"ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:3000"`
	DatabaseURL           string `env:"DATABASE_URL"`
	RedisAddr             string `env:"REDIS_ADDR"`
	RedisPassword         string `env:"REDIS_PASSWORD"`
	RedisDB               int    `env:"REDIS_DB" envDefault:"0"`
	AMQPURL               string `env:"AMQP_URL"`
	DefaultStoreID        int64  `env:"DEFAULT_STORE_ID" envDefault:"1"`
	BillViewTTLSeconds    int    `env:"BILL_VIEW_TTL_SECONDS" envDefault:"5"`
	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"480"`
	ManagerPIN            string `env:"MANAGER_PIN"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
	ExtensionPreviewPrice int64  `env:"EXTENSION_PREVIEW_PRICE" envDefault:"3000"`
}

// Load reads an optional .env file (ENV_FILE, default ".env") and then the
// process environment. Values already set in the environment win.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)

	if cfg.BillViewTTLSeconds < 1 {
		cfg.BillViewTTLSeconds = 5
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.DefaultStoreID < 1 {
		cfg.DefaultStoreID = 1
	}
	if cfg.ExtensionPreviewPrice < 0 {
		return Config{}, fmt.Errorf("EXTENSION_PREVIEW_PRICE must not be negative")
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
