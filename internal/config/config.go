package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	defaultServerAddr = ":8080"
	defaultSQLitePath = "library.db"
)

type Config struct {
	// DatabaseURL selects the hosted postgres store; when empty the service
	// runs in local-storage mode on SQLitePath.
	DatabaseURL string
	SQLitePath  string
	ServerAddr  string
	CORSOrigins []string
	JWTSecret   string
	Location    *time.Location
	Backup      BackupConfig
}

// BackupConfig configures the optional S3 archive for exported documents.
type BackupConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	Prefix    string
}

func (b BackupConfig) Enabled() bool { return b.Bucket != "" }

// Load reads the process environment, seeding it from a .env file in the
// working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseURL: getenv("DATABASE_URL"),
		SQLitePath:  getenv("SQLITE_PATH"),
		ServerAddr:  getenv("SERVER_ADDR"),
		JWTSecret:   getenv("AUTH_JWT_SECRET"),
		Backup: BackupConfig{
			Bucket:    getenv("BACKUP_S3_BUCKET"),
			Region:    getenv("BACKUP_S3_REGION"),
			Endpoint:  getenv("BACKUP_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(getenv("BACKUP_S3_PATH_STYLE"), "true"),
			Prefix:    getenv("BACKUP_S3_PREFIX"),
		},
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = defaultSQLitePath
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = defaultServerAddr
	}
	if cfg.Backup.Prefix == "" {
		cfg.Backup.Prefix = "backups/"
	}

	cfg.CORSOrigins = []string{"*"}
	if raw := getenv("CORS_ORIGINS"); raw != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	cfg.Location = time.UTC
	if tz := getenv("LIBRARY_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("LIBRARY_TIMEZONE %q: %w", tz, err)
		}
		cfg.Location = loc
	}
	return cfg, nil
}
