package badger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/repoagent/domain/cache"
	"github.com/felixgeelhaar/repoagent/infrastructure/storage/badger"
)

func newTestCache(t *testing.T, opts ...badger.Option) *badger.Cache {
	t.Helper()
	c, err := badger.NewCache(badger.DefaultConfig(), append([]badger.Option{badger.WithInMemory()}, opts...)...)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_SetAndGet(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "read_file:abc", []byte(`{"success":true}`), cache.SetOptions{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	val, found, err := c.Get(ctx, "read_file:abc")
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if string(val) != `{"success":true}` {
		t.Errorf("Get() = %s", val)
	}

	if _, found, err := c.Get(ctx, "missing"); found || err != nil {
		t.Errorf("Get(missing) = %v, %v", found, err)
	}
	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Size != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
	if err := c.Set(ctx, "", nil, cache.SetOptions{}); !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Set(\"\") error = %v, want ErrInvalidKey", err)
	}
}

func TestCache_TTL(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	// badger expiry has one-second resolution.
	if err := c.Set(ctx, "k", []byte("v"), cache.SetOptions{TTL: time.Second}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.Exists(ctx, "k"); !ok {
		t.Fatal("Exists() = false before expiry")
	}
	time.Sleep(2100 * time.Millisecond)
	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Error("Exists() = true after expiry")
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, badger.WithKeyPrefix("repo1:"))
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, k, []byte(k), cache.SetOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, _ := c.Exists(ctx, "a"); ok {
		t.Error("a exists after Delete")
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if size := c.Stats().Size; size != 0 {
		t.Errorf("Size after Clear = %d", size)
	}
}

func TestCache_CloseTwice(t *testing.T) {
	t.Parallel()

	c, err := badger.NewCache(badger.Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
