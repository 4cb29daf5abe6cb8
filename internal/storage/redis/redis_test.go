package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sadopc/stackvault/internal/config"
	"github.com/sadopc/stackvault/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Host:         mr.Addr(), // Full address "host:port"
		Port:         0,
		PoolSize:     2,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestStateRoundTrip(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if _, err := store.Get(ctx, storage.KeyActiveTimers); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, storage.KeyActiveTimers, `[]`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := store.Get(ctx, storage.KeyActiveTimers)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != `[]` {
		t.Errorf("Expected [], got %q", got)
	}

	// Keys are namespaced in Redis.
	raw, err := mr.Get("stackvault:" + storage.KeyActiveTimers)
	if err != nil || raw != `[]` {
		t.Errorf("Expected namespaced key, got %q (%v)", raw, err)
	}

	if err := store.Delete(ctx, storage.KeyActiveTimers); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, storage.KeyActiveTimers); !errors.Is(err, storage.ErrNotFound) {
		t.Error("Expected key to be gone after Delete")
	}
}

func TestOpenInvalidTimeout(t *testing.T) {
	_, err := Open(config.RedisConfig{Host: "localhost", DialTimeout: "soon", ReadTimeout: "1s", WriteTimeout: "1s"})
	if err == nil {
		t.Fatal("Expected error for invalid dial_timeout")
	}
}

func TestOpenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(config.RedisConfig{Host: addr, DialTimeout: "200ms", ReadTimeout: "200ms", WriteTimeout: "200ms"})
	if err == nil {
		t.Fatal("Expected error connecting to a closed server")
	}
}

func TestGetAfterServerError(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	mr.SetError("ERR injected failure")
	if _, err := store.Get(context.Background(), storage.KeyInterfaceMode); err == nil || errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected wrapped server error, got %v", err)
	}
}
