package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"vox-chat/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - preview:{sha256(url)} - PreviewTTL, serialized domain.LinkPreview or "null"

// CacheConfig contains configuration for caching
type CacheConfig struct {
	PreviewTTL time.Duration // TTL for resolved previews
	MissTTL    time.Duration // TTL for URLs that produced no preview
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		PreviewTTL: time.Hour,
		MissTTL:    10 * time.Minute,
	}
}

// CacheStore handles caching in Redis
type CacheStore struct {
	client goredis.Cmdable
	config CacheConfig
}

// NewCacheStore creates a new cache store
func NewCacheStore(client goredis.Cmdable, config CacheConfig) *CacheStore {
	return &CacheStore{
		client: client,
		config: config,
	}
}

func previewKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "preview:" + hex.EncodeToString(sum[:])
}

// GetPreview returns a cached preview. found is false on a cache miss; a
// cached negative result returns (nil, true, nil).
func (c *CacheStore) GetPreview(ctx context.Context, url string) (*domain.LinkPreview, bool, error) {
	data, err := c.client.Get(ctx, previewKey(url)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var p *domain.LinkPreview
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// SetPreview stores p for url. A nil preview is cached for MissTTL.
func (c *CacheStore) SetPreview(ctx context.Context, url string, p *domain.LinkPreview) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ttl := c.config.PreviewTTL
	if p == nil {
		ttl = c.config.MissTTL
	}
	return c.client.Set(ctx, previewKey(url), data, ttl).Err()
}

// Ping checks if Redis is available
func (c *CacheStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
