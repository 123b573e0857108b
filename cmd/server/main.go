package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"panaderia/backend/internal/cache"
	"panaderia/backend/internal/config"
	"panaderia/backend/internal/httpapi"
	"panaderia/backend/internal/service"
	"panaderia/backend/internal/store"
	"panaderia/backend/internal/store/memory"
	pgstore "panaderia/backend/internal/store/postgres"
	sqlitestore "panaderia/backend/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers := openRepository(ctx, cfg)

	reports := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("report cache: redis")
		}
	} else {
		log.Println("report cache: noop")
	}

	svc := service.New(repo, reports)
	api := httpapi.New(svc, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("bakery backend listening on %s", cfg.Address())
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

// openRepository picks the storage backend: STORE=memory forces the
// seeded in-memory store, DATABASE_URL selects PostgreSQL, and the
// default is a local SQLite file.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, []func() error) {
	closers := make([]func() error, 0, 2)

	switch {
	case cfg.StoreBackend == "memory":
		log.Println("repository: in-memory (seeded)")
		return memory.NewSeeded(), closers
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with a fallback store", err)
		}
		log.Println("repository: postgres")
		return pg, append(closers, pg.Close)
	default:
		sq, err := sqlitestore.New(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite open %s: %v", cfg.SQLitePath, err)
		}
		log.Printf("repository: sqlite (%s)", cfg.SQLitePath)
		return sq, append(closers, sq.Close)
	}
}
