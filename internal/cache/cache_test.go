package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("empty cache returned a value")
	}

	src := []byte("v1")
	_ = m.Set(ctx, "k", src, time.Minute)
	src[0] = 'x'
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	now = now.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("entry should expire after its ttl")
	}

	_ = m.Set(ctx, "forever", []byte("v"), 0)
	now = now.Add(24 * time.Hour)
	if _, ok, _ := m.Get(ctx, "forever"); !ok {
		t.Error("zero ttl entry expired")
	}
	_ = m.Delete(ctx, "forever")
	if _, ok, _ := m.Get(ctx, "forever"); ok {
		t.Error("deleted entry still present")
	}
}
