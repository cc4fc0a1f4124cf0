package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), 0)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url", 0); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	payload := []byte(`{"userId":"alice","ordering":["i0"],"currentIndex":0}`)

	if err := store.SaveSnapshot(ctx, "alice", payload); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx, "alice")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if !bytes.Equal(loaded, payload) {
		t.Errorf("snapshot payload diverged: %s", loaded)
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	_, err := store.LoadSnapshot(context.Background(), "ghost")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.SaveSnapshot(ctx, "alice", []byte(`{}`)); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := store.DeleteSnapshot(ctx, "alice"); err != nil {
		t.Fatalf("DeleteSnapshot failed: %v", err)
	}
	if _, err := store.LoadSnapshot(ctx, "alice"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected snapshot gone, got %v", err)
	}
}

func TestSnapshotExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.SaveSnapshot(ctx, "alice", []byte(`{}`)); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	s.FastForward(2 * time.Hour)

	if _, err := store.LoadSnapshot(ctx, "alice"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected expired snapshot to be gone, got %v", err)
	}
}
