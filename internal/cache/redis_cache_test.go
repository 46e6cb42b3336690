package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Runs only against a live server: REDIS_URL=redis://localhost:6379 go test ./internal/cache
func TestRedisCache_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	c := NewRedisCache(NewRedisClient(url), time.Minute, "shopscale-test:", nil)
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	key := uuid.NewString()
	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, key, samplePlan()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if len(got.Steps) != 2 || got.Steps[0].Filters["brand"] != "MDH" {
		t.Errorf("unexpected plan: %+v", got)
	}
}
