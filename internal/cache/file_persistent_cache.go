package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"go.uber.org/zap"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

// FilePersistentCache keeps plans in memory and snapshots them to a JSON file
// on every write, so one-shot CLI runs can reuse plans across invocations.
type FilePersistentCache struct {
	store    map[string]fileItem
	mutex    sync.Mutex
	ttl      time.Duration
	filePath string
	logger   *zap.Logger
	now      func() time.Time
}

type fileItem struct {
	Plan      shopscale.Plan `json:"plan"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// NewFilePersistentCache loads filePath if it exists. A missing file is an
// empty cache; an unreadable or corrupt one is an error.
func NewFilePersistentCache(ttl time.Duration, filePath string, logger *zap.Logger) (*FilePersistentCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &FilePersistentCache{
		store:    make(map[string]fileItem),
		ttl:      ttl,
		filePath: filePath,
		logger:   logger,
		now:      time.Now,
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *FilePersistentCache) load() error {
	data, err := os.ReadFile(c.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errbuilder.GenericErr("read plan cache file", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &c.store); err != nil {
		return errbuilder.GenericErr("decode plan cache file", err)
	}
	c.dropExpiredLocked()
	return nil
}

// saveLocked writes the snapshot through a temp file so a crash never leaves
// a truncated cache behind. Callers hold c.mutex.
func (c *FilePersistentCache) saveLocked() error {
	data, err := json.Marshal(c.store)
	if err != nil {
		return errbuilder.GenericErr("encode plan cache", err)
	}
	if dir := filepath.Dir(c.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errbuilder.GenericErr("create plan cache dir", err)
		}
	}
	tmp := c.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errbuilder.GenericErr("write plan cache file", err)
	}
	if err := os.Rename(tmp, c.filePath); err != nil {
		return errbuilder.GenericErr("replace plan cache file", err)
	}
	return nil
}

func (c *FilePersistentCache) dropExpiredLocked() int {
	now := c.now()
	dropped := 0
	for key, item := range c.store {
		if now.After(item.ExpiresAt) {
			delete(c.store, key)
			dropped++
		}
	}
	return dropped
}

// Get retrieves a plan from the cache.
func (c *FilePersistentCache) Get(ctx context.Context, key string) (*shopscale.Plan, bool, error) {
	if err := errbuilder.WrapIfContextDone(ctx, ctx.Err()); err != nil {
		return nil, false, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	item, found := c.store[key]
	if !found {
		return nil, false, nil
	}
	if c.now().After(item.ExpiresAt) {
		delete(c.store, key)
		c.logger.Debug("persistent plan cache item expired", zap.String("key", key))
		return nil, false, nil
	}
	return clonePlan(&item.Plan), true, nil
}

// Set adds or replaces a plan and persists the snapshot.
func (c *FilePersistentCache) Set(ctx context.Context, key string, plan *shopscale.Plan) error {
	if err := errbuilder.WrapIfContextDone(ctx, ctx.Err()); err != nil {
		return err
	}
	if plan == nil {
		return errbuilder.GenericErr("cannot cache a nil plan", nil)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.dropExpiredLocked()
	c.store[key] = fileItem{Plan: *clonePlan(plan), ExpiresAt: c.now().Add(c.ttl)}
	if err := c.saveLocked(); err != nil {
		return err
	}
	c.logger.Debug("persistent plan cache item set", zap.String("key", key))
	return nil
}
