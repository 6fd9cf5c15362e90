package kv

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	entries := map[string]string{
		"apr:1:0xa:-60:60":   "a",
		"apr:1:0xb:-60:60":   "b",
		"apr:10:0xa:-60:60":  "c",
		"other:1:0xa:-60:60": "d",
	}
	for key, value := range entries {
		if err := store.Set(ctx, key, []byte(value)); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	value, ok, err := store.Get(ctx, "apr:1:0xa:-60:60")
	if err != nil || !ok || string(value) != "a" {
		t.Fatalf("get: value=%q ok=%v err=%v", value, ok, err)
	}

	if err := store.Set(ctx, "apr:1:0xa:-60:60", []byte("a2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, _, _ = store.Get(ctx, "apr:1:0xa:-60:60")
	if string(value) != "a2" {
		t.Fatalf("overwrite not visible: %q", value)
	}

	keys, err := store.ListKeys(ctx, "apr:1:")
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	want := []string{"apr:1:0xa:-60:60", "apr:1:0xb:-60:60"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("list keys: got %v want %v", keys, want)
	}

	if err := store.Delete(ctx, "apr:1:0xb:-60:60"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "apr:1:0xb:-60:60"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "apr:1:0xb:-60:60"); ok {
		t.Fatalf("deleted key still present")
	}

	all, err := store.ListKeys(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 keys, got %v", all)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := store.Get(context.Background(), "k"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	value := []byte("abc")
	if err := store.Set(ctx, "k", value); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'x'
	got, _, _ := store.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("store shares caller buffer: %q", got)
	}
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	store, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseStore(t, store)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	value, ok, err := reopened.Get(context.Background(), "apr:10:0xa:-60:60")
	if err != nil || !ok || string(value) != "c" {
		t.Fatalf("value not persisted: %q ok=%v err=%v", value, ok, err)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("RANGESCOPE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RANGESCOPE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := OpenRedis(ctx, RedisConfig{Addr: addr, Prefix: "rangescope-test:" + t.Name() + ":"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	keys, _ := store.ListKeys(ctx, "")
	for _, key := range keys {
		_ = store.Delete(ctx, key)
	}
	exerciseStore(t, store)
}
