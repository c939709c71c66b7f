package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/soaringjerry/Pictopercept/internal/api"
	"github.com/soaringjerry/Pictopercept/internal/config"
	"github.com/soaringjerry/Pictopercept/internal/middleware"
	"github.com/soaringjerry/Pictopercept/internal/surveys"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	registry, err := surveys.Build(cfg.DatasetsPath)
	if err != nil {
		log.Fatalf("load surveys: %v", err)
	}
	log.Printf("surveys loaded: %v", registry.IDs())

	store, err := openStore(cfg.SQLitePath, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("document store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("warning: failed to close document store: %v", err)
		}
	}()

	sessStore, closeSessions, err := openSessions(cfg)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	defer closeSessions()

	rt, err := api.NewRouter(api.Options{
		Surveys:       registry,
		Store:         store,
		Sessions:      sessStore,
		Cookies:       middleware.NewSessionCookies(cfg.SessionSecret, cfg.SessionTTL, cfg.CookieSecure, sessStore),
		FetchPassword: cfg.FetchPassword,
		Commit:        cfg.Commit,
		BuildTime:     cfg.BuildTime,
	})
	if err != nil {
		log.Fatalf("router: %v", err)
	}

	cache := middleware.CachePolicy(time.Minute, api.PublicPage)
	handler := middleware.RequestLog(cache(middleware.SecureHeaders(rt.Handler())))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("Pictopercept server listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
