package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zianad/facturepro-ai/internal/cache"
	"github.com/zianad/facturepro-ai/internal/config"
	"github.com/zianad/facturepro-ai/internal/domain"
	"github.com/zianad/facturepro-ai/internal/httpapi"
	"github.com/zianad/facturepro-ai/internal/service"
	"github.com/zianad/facturepro-ai/internal/store"
	"github.com/zianad/facturepro-ai/internal/store/memory"
	pgstore "github.com/zianad/facturepro-ai/internal/store/postgres"
	sqlitestore "github.com/zianad/facturepro-ai/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	case cfg.SQLitePath != "":
		db, err := sqlitestore.New(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite unavailable at %s: %v", cfg.SQLitePath, err)
		}
		repo = db
		closers = append(closers, db.Close)
		log.Printf("repository: sqlite (%s)", cfg.SQLitePath)
	default:
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	valuations := cache.ValuationCache(cache.NoopValuationCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisValuationCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			valuations = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, service.Options{
		TaxRate:      cfg.TaxRate,
		Policy:       cfg.AllocationPolicy(),
		Cache:        valuations,
		ValuationTTL: cfg.ValuationTTL(),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	if err := ensureAdmin(ctx, auth); err != nil {
		log.Fatalf("failed to create initial admin: %v", err)
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("invoice ledger listening on %s (tax rate %s)", cfg.Address(), cfg.TaxRate)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}

// ensureAdmin creates the first admin account on an empty database from
// SEED_ADMIN_PASSWORD. The in-memory store ships with its own accounts.
func ensureAdmin(ctx context.Context, auth *httpapi.AuthManager) error {
	if len(auth.ListUsers(ctx)) > 0 {
		return nil
	}
	password := strings.TrimSpace(os.Getenv("SEED_ADMIN_PASSWORD"))
	if password == "" {
		log.Println("WARNING: no users exist and SEED_ADMIN_PASSWORD is empty; nobody can log in")
		return nil
	}
	_, err := auth.CreateUser(ctx, domain.UserCreateRequest{
		Username: "admin",
		Password: password,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		return err
	}
	log.Println("created initial admin account")
	return nil
}
