package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soaringjerry/Pictopercept/internal/utils"
)

type Config struct {
	Addr          string
	SQLitePath    string
	MigrationsDir string
	DatasetsPath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionSecret string
	SessionTTL    time.Duration
	CookieSecure  bool
	FetchPassword string

	Commit    string
	BuildTime string
}

// Load reads the PICTO_* environment. The session secret and the export
// password have no defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:          utils.SafeEnv("PICTO_ADDR", ":8080"),
		SQLitePath:    utils.SafeEnv("PICTO_SQLITE_PATH", "data/pictopercept.db"),
		MigrationsDir: utils.SafeEnv("PICTO_MIGRATIONS_DIR", ""),
		DatasetsPath:  utils.SafeEnv("PICTO_DATASETS_PATH", "datasets"),
		RedisAddr:     utils.SafeEnv("PICTO_REDIS_ADDR", ""),
		RedisPassword: utils.SafeEnv("PICTO_REDIS_PASSWORD", ""),
		SessionSecret: utils.SafeEnv("PICTO_SESSION_SECRET", ""),
		FetchPassword: utils.SafeEnv("PICTO_FETCH_PASSWORD", ""),
		Commit:        utils.SafeEnv("PICTO_COMMIT", ""),
		BuildTime:     utils.SafeEnv("PICTO_BUILD_TIME", ""),
	}

	var err error
	if cfg.RedisDB, err = utils.EnvInt("PICTO_REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = utils.EnvDuration("PICTO_SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("PICTO_SESSION_TTL must be positive")
	}
	if cfg.CookieSecure, err = utils.EnvBool("PICTO_COOKIE_SECURE", true); err != nil {
		return nil, err
	}

	var missing []string
	if cfg.SessionSecret == "" {
		missing = append(missing, "PICTO_SESSION_SECRET")
	}
	if cfg.FetchPassword == "" {
		missing = append(missing, "PICTO_FETCH_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}
