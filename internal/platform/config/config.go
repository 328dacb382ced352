package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	PreferencesFile  = "file"
	PreferencesRedis = "redis"
)

type Config struct {
	AppEnv             string `env:"APP_ENV" default:"development"`
	Port               string `env:"PORT" default:"8080"`
	CollectRoot        string `env:"COLLECT_ROOT"`
	ServerURL          string `env:"SERVER_URL"`
	StorageDriver      string `env:"STORAGE_DRIVER" default:"sqlite"`
	DatabaseURL        string `env:"DATABASE_URL"`
	PreferencesBackend string `env:"PREFERENCES_BACKEND" default:"file"`
	RedisURL           string `env:"REDIS_URL"`
	SessionSecret      string `env:"SESSION_SECRET"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
	TileCacheDir       string `env:"TILE_CACHE_DIR"`
	DeviceID           string `env:"DEVICE_ID"`
	LogLevel           string `env:"LOG_LEVEL" default:"info"`
	LogFormat          string `env:"LOG_FORMAT" default:"text"`

	DownloadDeadline time.Duration `env:"DOWNLOAD_DEADLINE" default:"12s"`
	CredentialsTTL   time.Duration `env:"CREDENTIALS_TTL" default:"7m"`
	SessionMaxAge    time.Duration `env:"SESSION_MAX_AGE" default:"12h"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"COLLECT_ROOT":   cfg.CollectRoot,
		"SESSION_SECRET": cfg.SessionSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	switch cfg.StorageDriver {
	case StorageSQLite:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORAGE_DRIVER is postgres")
		}
		if cfg.AppEnv == "production" {
			if err := validateSSLMode(cfg.DatabaseURL); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageSQLite, StoragePostgres, cfg.StorageDriver)
	}

	switch cfg.PreferencesBackend {
	case PreferencesFile:
	case PreferencesRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when PREFERENCES_BACKEND is redis")
		}
	default:
		return fmt.Errorf("PREFERENCES_BACKEND must be %q or %q, got %q", PreferencesFile, PreferencesRedis, cfg.PreferencesBackend)
	}

	if cfg.DownloadDeadline <= 0 {
		return errors.New("DOWNLOAD_DEADLINE must be positive")
	}
	if cfg.CredentialsTTL <= 0 {
		return errors.New("CREDENTIALS_TTL must be positive")
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
