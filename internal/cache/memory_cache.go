// Package cache provides PlanCache backends: in-process, file-backed and redis.
package cache

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

// InMemoryCache keeps plans in process memory with a per-item TTL.
type InMemoryCache struct {
	store  *gocache.Cache
	logger *zap.Logger
}

// NewInMemoryCache creates an in-memory cache whose entries expire after ttl.
func NewInMemoryCache(ttl time.Duration, logger *zap.Logger) *InMemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryCache{
		store:  gocache.New(ttl, 10*time.Minute),
		logger: logger,
	}
}

// Get retrieves a plan from the cache.
func (c *InMemoryCache) Get(ctx context.Context, key string) (*shopscale.Plan, bool, error) {
	if err := errbuilder.WrapIfContextDone(ctx, ctx.Err()); err != nil {
		return nil, false, err
	}

	v, found := c.store.Get(key)
	if !found {
		return nil, false, nil
	}
	plan, ok := v.(shopscale.Plan)
	if !ok {
		c.store.Delete(key)
		return nil, false, errbuilder.GenericErr("cache item has unexpected type", nil)
	}
	return clonePlan(&plan), true, nil
}

// Set adds or replaces a plan.
func (c *InMemoryCache) Set(ctx context.Context, key string, plan *shopscale.Plan) error {
	if err := errbuilder.WrapIfContextDone(ctx, ctx.Err()); err != nil {
		return err
	}
	if plan == nil {
		return errbuilder.GenericErr("cannot cache a nil plan", nil)
	}

	c.store.Set(key, *clonePlan(plan), gocache.DefaultExpiration)
	c.logger.Debug("plan cached", zap.String("key", key), zap.Int("steps", len(plan.Steps)))
	return nil
}

// Delete removes a plan. Removing a missing key is a not-found error.
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	if err := errbuilder.WrapIfContextDone(ctx, ctx.Err()); err != nil {
		return err
	}
	if _, found := c.store.Get(key); !found {
		return errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}
	c.store.Delete(key)
	return nil
}

// Len reports the number of unexpired items.
func (c *InMemoryCache) Len() int {
	return c.store.ItemCount()
}

// clonePlan copies the step slice and filter maps so cached plans cannot be
// changed through a caller's reference.
func clonePlan(p *shopscale.Plan) *shopscale.Plan {
	out := &shopscale.Plan{Intent: p.Intent, Raw: p.Raw}
	if p.Steps != nil {
		out.Steps = make([]shopscale.SearchDirective, len(p.Steps))
		for i, s := range p.Steps {
			out.Steps[i] = shopscale.NewSearchDirective(s.SearchText, s.Filters)
		}
	}
	return out
}
