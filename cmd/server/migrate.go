package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/Pictopercept/internal/api"
	"github.com/soaringjerry/Pictopercept/internal/config"
	dbstore "github.com/soaringjerry/Pictopercept/internal/db"
	"github.com/soaringjerry/Pictopercept/internal/services"
	"github.com/soaringjerry/Pictopercept/internal/sessions"
)

// openStore opens (creating on first run) the sqlite document store and
// brings its schema up to date. An empty path selects the in-memory store.
func openStore(sqlitePath, migrationsDir string) (api.Store, error) {
	if sqlitePath == "" || sqlitePath == ":memory:" {
		log.Printf("document store: in-memory, answers are lost on restart")
		return api.NewMemoryStore(), nil
	}
	if _, err := os.Stat(sqlitePath); errors.Is(err, os.ErrNotExist) {
		log.Printf("First run detected, creating %s", sqlitePath)
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("check sqlite file: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(sqlitePath))
	sqliteDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := dbstore.RunMigrations(sqliteDB, migrationsDir); err != nil {
		if cerr := sqliteDB.Close(); cerr != nil {
			log.Printf("warning: failed to close sqlite db: %v", cerr)
		}
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return dbstore.NewStore(sqliteDB)
}

// openSessions picks Redis when an address is configured and falls back to
// process memory otherwise.
func openSessions(cfg *config.Config) (services.SessionStore, func(), error) {
	if cfg.RedisAddr == "" {
		log.Printf("session store: in-memory")
		return sessions.NewMemoryStore(cfg.SessionTTL), func() {}, nil
	}
	var (
		rs  *sessions.RedisStore
		err error
	)
	if strings.HasPrefix(cfg.RedisAddr, "redis://") || strings.HasPrefix(cfg.RedisAddr, "rediss://") {
		rs, err = sessions.NewRedisStoreFromURL(cfg.RedisAddr, cfg.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
	} else {
		rs = sessions.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		_ = rs.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	log.Printf("session store: redis at %s", cfg.RedisAddr)
	return rs, func() {
		if err := rs.Close(); err != nil {
			log.Printf("warning: failed to close redis: %v", err)
		}
	}, nil
}
