package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - upload:status:{session_token} - short TTL, absorbs finalize polling

// CacheConfig contains configuration for caching
type CacheConfig struct {
	StatusTTL time.Duration // TTL for finalize status cache
}

// DefaultCacheConfig returns sensible defaults. The status TTL is kept
// just above the client poll interval of 5s so a poller sees at most one
// stale read after completion.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		StatusTTL: 10 * time.Second,
	}
}

// StatusCache absorbs finalize-status polling so a 5-second poll loop does
// not turn into a Postgres read per client per tick.
type StatusCache struct {
	client *goredis.Client
	config CacheConfig
}

func NewStatusCache(client *goredis.Client, config CacheConfig) *StatusCache {
	return &StatusCache{client: client, config: config}
}

// FinalizeStatus is the cached poll payload.
type FinalizeStatus struct {
	Status     string `json:"status"`
	StorageKey string `json:"storage_key,omitempty"`
	FileURL    string `json:"file_url,omitempty"`
	FileID     string `json:"file_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

func statusKey(token string) string {
	return fmt.Sprintf("upload:status:%s", token)
}

// Get returns the cached status, or false on a miss. A nil cache always
// misses, so callers can run without Redis.
func (c *StatusCache) Get(ctx context.Context, token string) (FinalizeStatus, bool) {
	if c == nil || c.client == nil {
		return FinalizeStatus{}, false
	}
	data, err := c.client.Get(ctx, statusKey(token)).Bytes()
	if err != nil {
		return FinalizeStatus{}, false
	}
	var st FinalizeStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return FinalizeStatus{}, false
	}
	return st, true
}

func (c *StatusCache) Set(ctx context.Context, token string, st FinalizeStatus) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	c.client.Set(ctx, statusKey(token), data, c.config.StatusTTL)
}

// Invalidate drops the cached status, forcing the next poll to the DB.
// Called on every status transition so pollers see completions promptly.
func (c *StatusCache) Invalidate(ctx context.Context, token string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, statusKey(token))
}
