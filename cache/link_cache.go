package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Direct links from debrid backends are short-lived, so resolved links are
// cached with a TTL well under their typical validity window.
const linkTTL = 6 * time.Hour

// LinkCache keeps recently resolved direct links keyed by track ID, sparing
// an unrestrict round-trip when the same track is played again quickly.
type LinkCache struct {
	client *redis.Client
}

// NewLinkCache creates a link cache over the given Redis client.
func NewLinkCache(client *redis.Client) *LinkCache {
	return &LinkCache{client: client}
}

func linkKey(trackID string) string {
	return fmt.Sprintf("directlink:%s", trackID)
}

// Put stores a resolved direct link.
func (c *LinkCache) Put(ctx context.Context, trackID, link string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("link cache not initialized")
	}
	if err := c.client.Set(ctx, linkKey(trackID), link, linkTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache direct link: %w", err)
	}
	return nil
}

// Get returns the cached link, or "" when absent or expired.
func (c *LinkCache) Get(ctx context.Context, trackID string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("link cache not initialized")
	}
	val, err := c.client.Get(ctx, linkKey(trackID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cached direct link: %w", err)
	}
	return val, nil
}

// Invalidate drops a cached link, e.g. after a playback failure on a stale
// URL.
func (c *LinkCache) Invalidate(ctx context.Context, trackID string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("link cache not initialized")
	}
	return c.client.Del(ctx, linkKey(trackID)).Err()
}
