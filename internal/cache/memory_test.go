package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("expected v, got %s", got)
	}
}

func TestMemoryCache_MissOnAbsentKey(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	if _, err := c.Get(context.Background(), "absent"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after expiry, got %v", err)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after delete, got %v", err)
	}
	// Deleting an absent key is not an error.
	if err := c.Delete(ctx, "absent"); err != nil {
		t.Errorf("delete absent: %v", err)
	}
}

func TestMemoryCache_InvalidateByPrefix(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	for _, key := range []string{"pull:a:1", "pull:a:2", "pull:b:1", "records:a:1"} {
		if err := c.Set(ctx, key, []byte("v"), time.Minute); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	if err := c.InvalidateByPrefix(ctx, "pull:a:"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	for _, gone := range []string{"pull:a:1", "pull:a:2"} {
		if _, err := c.Get(ctx, gone); !errors.Is(err, ErrMiss) {
			t.Errorf("expected %s invalidated", gone)
		}
	}
	for _, kept := range []string{"pull:b:1", "records:a:1"} {
		if _, err := c.Get(ctx, kept); err != nil {
			t.Errorf("expected %s kept: %v", kept, err)
		}
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 live entries, got %d", c.Len())
	}
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	value := []byte("original")
	if err := c.Set(ctx, "k", value, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'X'

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "original" {
		t.Errorf("cache shared the caller's slice: %s", got)
	}

	got[0] = 'Y'
	again, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if string(again) != "original" {
		t.Errorf("cache shared the returned slice: %s", again)
	}
}
