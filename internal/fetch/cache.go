// Package fetch implements cached, fault-isolated evidence fetching from the
// configured source providers.
package fetch

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kevinvandever/secureask/internal/model"
	"github.com/kevinvandever/secureask/internal/store"
)

// Cache wraps the response store with miss-on-error semantics: store failures
// and corrupt entries count as misses and are only logged. A nil Cache or nil
// inner store always misses, so the engine works without any cache at all.
type Cache struct {
	store store.Store
}

// NewCache returns a Cache over s. s may be nil.
func NewCache(s store.Store) *Cache {
	return &Cache{store: s}
}

// Get returns the cached source envelope for key.
func (c *Cache) Get(ctx context.Context, key string) (*model.SourceResponse, bool) {
	var envelope model.SourceResponse
	if !c.get(ctx, key, &envelope) {
		return nil, false
	}
	return &envelope, true
}

// Set stores a source envelope under key for ttl. Best-effort.
func (c *Cache) Set(ctx context.Context, key string, envelope *model.SourceResponse, ttl time.Duration) {
	if envelope == nil {
		return
	}
	c.set(ctx, key, envelope, ttl)
}

// GetQueryResponse returns the cached whole-query response for key.
func (c *Cache) GetQueryResponse(ctx context.Context, key string) (*model.QueryResponse, bool) {
	var resp model.QueryResponse
	if !c.get(ctx, key, &resp) {
		return nil, false
	}
	return &resp, true
}

// SetQueryResponse stores a whole-query response under key for ttl.
// Best-effort.
func (c *Cache) SetQueryResponse(ctx context.Context, key string, resp *model.QueryResponse, ttl time.Duration) {
	if resp == nil {
		return
	}
	c.set(ctx, key, resp, ttl)
}

func (c *Cache) get(ctx context.Context, key string, out any) bool {
	if c == nil || c.store == nil {
		return false
	}

	payload, err := c.store.GetCachedResponse(ctx, key)
	if err != nil {
		zap.L().Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if payload == nil {
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		zap.L().Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil || c.store == nil || ttl <= 0 {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		zap.L().Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetCachedResponse(ctx, key, payload, ttl); err != nil {
		zap.L().Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
