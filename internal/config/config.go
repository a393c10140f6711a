// Package config reads ROKTODAN_* settings from the environment. A .env file
// in the working directory is loaded first when present; variables already
// set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	DBPath    string
	BaseURL   string
	LogLevel  string
	LogFormat string

	// AllowedOrigins are host patterns accepted on /ws besides same-origin.
	AllowedOrigins []string

	PostmarkToken string
	FromEmail     string
	AdminEmail    string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	S3Endpoint       string
	S3Bucket         string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	BackupPassphrase string
	BackupInterval   time.Duration
	BackupRetention  time.Duration

	SweepInterval time.Duration
}

// BackupEnabled reports whether enough S3 settings are present to upload
// snapshots.
func (c Config) BackupEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.BackupPassphrase != ""
}

// PushEnabled reports whether both VAPID keys are set.
func (c Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// FromEnv loads .env (if any) and builds a Config with defaults applied.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Load(os.Getenv)
}

// Load builds a Config from getenv.
func Load(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv("ROKTODAN_" + key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Port:             get("PORT", "8080"),
		DBPath:           get("DB_PATH", "roktodan.db"),
		LogLevel:         get("LOG_LEVEL", "info"),
		LogFormat:        get("LOG_FORMAT", "text"),
		PostmarkToken:    get("POSTMARK_TOKEN", ""),
		FromEmail:        get("FROM_EMAIL", ""),
		AdminEmail:       get("ADMIN_EMAIL", ""),
		VAPIDPublicKey:   get("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:  get("VAPID_PRIVATE_KEY", ""),
		S3Endpoint:       get("S3_ENDPOINT", ""),
		S3Bucket:         get("S3_BUCKET", ""),
		S3Region:         get("S3_REGION", "auto"),
		S3AccessKey:      get("S3_ACCESS_KEY", ""),
		S3SecretKey:      get("S3_SECRET_KEY", ""),
		BackupPassphrase: get("BACKUP_PASSPHRASE", ""),
	}
	cfg.BaseURL = strings.TrimRight(get("BASE_URL", "http://localhost:"+cfg.Port), "/")
	cfg.VAPIDSubject = get("VAPID_SUBJECT", cfg.AdminEmail)

	if origins := get("ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return Config{}, fmt.Errorf("ROKTODAN_PORT: %q is not a number", cfg.Port)
	}

	var err error
	if cfg.SweepInterval, err = duration(get("SWEEP_INTERVAL", "1m")); err != nil {
		return Config{}, fmt.Errorf("ROKTODAN_SWEEP_INTERVAL: %w", err)
	}
	if cfg.BackupInterval, err = duration(get("BACKUP_INTERVAL", "24h")); err != nil {
		return Config{}, fmt.Errorf("ROKTODAN_BACKUP_INTERVAL: %w", err)
	}
	if cfg.BackupRetention, err = duration(get("BACKUP_RETENTION", "720h")); err != nil {
		return Config{}, fmt.Errorf("ROKTODAN_BACKUP_RETENTION: %w", err)
	}
	return cfg, nil
}

func duration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
