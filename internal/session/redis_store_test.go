package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), "")
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRedisSaveAndLoad(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, Session{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600, TokenType: "bearer"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got == nil || got.AccessToken != "at" || got.RefreshToken != "rt" {
		t.Fatalf("unexpected session %+v", got)
	}
	if ttl := s.TTL("ocm:session:default"); ttl != time.Hour {
		t.Errorf("expected 1h TTL, got %v", ttl)
	}
}

func TestRedisSessionExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, Session{AccessToken: "at", ExpiresIn: 1}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.FastForward(2 * time.Second)

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expired session to be gone, got %+v", got)
	}
}

func TestRedisMalformedPayloadLoadsNil(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	if err := s.Set("ocm:session:default", "{broken"); err != nil {
		t.Fatal(err)
	}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load should fail soft, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil session, got %+v", got)
	}
}

func TestRedisProfileIsolation(t *testing.T) {
	s := miniredis.RunT(t)
	first, err := NewRedisStore("redis://"+s.Addr(), "first")
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := NewRedisStore("redis://"+s.Addr(), "second")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	ctx := context.Background()
	if err := first.Save(ctx, Session{AccessToken: "one"}); err != nil {
		t.Fatal(err)
	}
	if err := second.Save(ctx, Session{AccessToken: "two"}); err != nil {
		t.Fatal(err)
	}
	if err := first.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	if got, _ := first.Load(ctx); got != nil {
		t.Errorf("expected cleared profile, got %+v", got)
	}
	if got, _ := second.Load(ctx); got == nil || got.AccessToken != "two" {
		t.Errorf("expected second profile intact, got %+v", got)
	}
}

func TestRedisClearMissingIsNoop(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	if err := store.Clear(context.Background()); err != nil {
		t.Errorf("Clear on empty store failed: %v", err)
	}
}
