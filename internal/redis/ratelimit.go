package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{ip}:uploads - UploadWindow TTL, per-window upload limit

// RateLimitConfig contains configuration for rate limiting
type RateLimitConfig struct {
	UploadLimit  int           // Max uploads per window
	UploadWindow time.Duration // Upload rate limit window
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		UploadLimit:  20,
		UploadWindow: 60 * time.Second,
	}
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client goredis.Scripter
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool          // Whether the action is allowed
	Remaining int           // Remaining actions in the window
	ResetIn   time.Duration // Time until the window resets
	Limit     int           // The limit for this action
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client goredis.Scripter, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

// AllowUpload checks if an IP can upload another file
func (r *RateLimiter) AllowUpload(ctx context.Context, ip string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:uploads", ip)
	return r.checkLimit(ctx, key, r.config.UploadLimit, r.config.UploadWindow)
}

var limitScript = goredis.NewScript(`
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

// checkLimit increments and checks a fixed window counter atomically.
func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := limitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	return parseLimitResult(result, limit)
}

func parseLimitResult(result interface{}, limit int) (*RateLimitResult, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	nums := make([]int64, 3)
	for i := range nums {
		n, ok := values[i].(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected rate limit result format")
		}
		nums[i] = n
	}
	return &RateLimitResult{
		Allowed:   nums[0] == 1,
		Remaining: int(nums[1]),
		ResetIn:   time.Duration(nums[2]) * time.Second,
		Limit:     limit,
	}, nil
}
