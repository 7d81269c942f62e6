package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/repoagent/domain/cache"
	"github.com/felixgeelhaar/repoagent/infrastructure/storage/memory"
)

func TestNewCache(t *testing.T) {
	t.Parallel()

	if got := memory.NewCache().Stats().MaxSize; got != memory.DefaultMaxSize {
		t.Errorf("default MaxSize = %d, want %d", got, memory.DefaultMaxSize)
	}
	if got := memory.NewCache(memory.WithMaxSize(5)).Stats().MaxSize; got != 5 {
		t.Errorf("MaxSize = %d, want 5", got)
	}
}

func TestCache_SetAndGet(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), cache.SetOptions{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, found, err := c.Get(ctx, "k")
	if err != nil || !found || string(value) != "v" {
		t.Fatalf("Get() = %q, %v, %v", value, found, err)
	}

	value[0] = 'x'
	again, _, _ := c.Get(ctx, "k")
	if string(again) != "v" {
		t.Error("Get() returned a shared slice")
	}

	if _, found, _ := c.Get(ctx, "missing"); found {
		t.Error("Get(missing) found a value")
	}
	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Size != 1 {
		t.Errorf("Stats() = %+v", stats)
	}

	if err := c.Set(ctx, "", []byte("v"), cache.SetOptions{}); !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Set(\"\") error = %v, want ErrInvalidKey", err)
	}
}

func TestCache_TTL(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()
	_ = c.Set(ctx, "short", []byte("v"), cache.SetOptions{TTL: 10 * time.Millisecond})
	_ = c.Set(ctx, "forever", []byte("v"), cache.SetOptions{})

	time.Sleep(30 * time.Millisecond)

	if ok, _ := c.Exists(ctx, "short"); ok {
		t.Error("Exists(short) = true after expiry")
	}
	if _, found, _ := c.Get(ctx, "short"); found {
		t.Error("Get(short) found an expired value")
	}
	if ok, _ := c.Exists(ctx, "forever"); !ok {
		t.Error("Exists(forever) = false")
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := memory.NewCache(memory.WithMaxSize(2))
	ctx := context.Background()
	_ = c.Set(ctx, "a", []byte("1"), cache.SetOptions{})
	_ = c.Set(ctx, "b", []byte("2"), cache.SetOptions{})
	_, _, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "c", []byte("3"), cache.SetOptions{})

	if ok, _ := c.Exists(ctx, "b"); ok {
		t.Error("b survived eviction")
	}
	for _, k := range []string{"a", "c"} {
		if ok, _ := c.Exists(ctx, k); !ok {
			t.Errorf("%s was evicted", k)
		}
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()
	_ = c.Set(ctx, "a", []byte("1"), cache.SetOptions{})
	_ = c.Set(ctx, "b", []byte("2"), cache.SetOptions{})

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.Exists(ctx, "a"); ok {
		t.Error("a exists after Delete")
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Size() != 0 {
		t.Errorf("Size() after Clear = %d", c.Size())
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := c.Get(cancelled, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}
