package main

import (
	"context"
	"path/filepath"
	"testing"

	"panaderia/backend/internal/config"
)

func TestOpenRepositoryMemoryBackend(t *testing.T) {
	repo, closers := openRepository(context.Background(), config.Config{StoreBackend: "memory"})
	if repo == nil {
		t.Fatalf("expected a repository")
	}
	if len(closers) != 0 {
		t.Fatalf("in-memory store should need no closers, got %d", len(closers))
	}

	products, err := repo.ListProducts(context.Background(), false)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) == 0 {
		t.Fatalf("seeded store should start with a catalog")
	}
}

func TestOpenRepositorySQLiteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bakery.db")
	repo, closers := openRepository(context.Background(), config.Config{SQLitePath: path})
	if repo == nil {
		t.Fatalf("expected a repository")
	}
	if len(closers) != 1 {
		t.Fatalf("sqlite store should register its close hook, got %d", len(closers))
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
}
