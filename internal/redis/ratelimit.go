package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{ip}:sessions - 60s TTL, session creations per minute
// - ratelimit:{token}:chunks - 60s TTL, chunk uploads per minute

// RateLimitConfig contains configuration for rate limiting
type RateLimitConfig struct {
	SessionLimit  int           // Max session creations per window per IP
	SessionWindow time.Duration // Session rate limit window
	ChunkLimit    int           // Max chunk uploads per window per session
	ChunkWindow   time.Duration // Chunk rate limit window
}

// DefaultRateLimitConfig returns sensible defaults. The chunk limit has
// to accommodate a client pushing 1 MiB chunks at full speed.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		SessionLimit:  30, // 30 new sessions per minute per IP
		SessionWindow: 60 * time.Second,
		ChunkLimit:    600, // 600 chunks per minute per session
		ChunkWindow:   60 * time.Second,
	}
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool          // Whether the action is allowed
	Remaining int           // Remaining actions in the window
	ResetIn   time.Duration // Time until the window resets
	Limit     int           // The limit for this action
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

// AllowSession checks if an IP may create another upload session.
func (r *RateLimiter) AllowSession(ctx context.Context, ip string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:sessions", ip)
	return r.checkLimit(ctx, key, r.config.SessionLimit, r.config.SessionWindow)
}

// AllowChunk checks if a session may upload another chunk.
func (r *RateLimiter) AllowChunk(ctx context.Context, token string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:chunks", token)
	return r.checkLimit(ctx, key, r.config.ChunkLimit, r.config.ChunkWindow)
}

// checkLimit performs the actual rate limit check using a sliding window counter
func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	// Use Lua script for atomic increment and check
	script := goredis.NewScript(`
		local key = KEYS[1]
		local limit = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])

		local current = redis.call('GET', key)
		if current == false then
			current = 0
		else
			current = tonumber(current)
		end

		local ttl = redis.call('TTL', key)
		if ttl < 0 then
			ttl = window
		end

		if current < limit then
			redis.call('INCR', key)
			if ttl == window then
				redis.call('EXPIRE', key, window)
			end
			return {1, limit - current - 1, ttl}
		else
			return {0, 0, ttl}
		end
	`)

	result, err := script.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	allowed := resultSlice[0].(int64) == 1
	remaining := int(resultSlice[1].(int64))
	resetIn := time.Duration(resultSlice[2].(int64)) * time.Second

	return &RateLimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		ResetIn:   resetIn,
		Limit:     limit,
	}, nil
}
