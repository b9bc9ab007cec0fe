package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Invalidator removes read-side cache entries by key or glob pattern.
// Deleting a missing key is not an error.
type Invalidator struct {
	client *redis.Client
}

// NewInvalidator constructs Invalidator.
func NewInvalidator(client *redis.Client) *Invalidator {
	return &Invalidator{client: client}
}

// Invalidate deletes a single key.
func (i *Invalidator) Invalidate(ctx context.Context, key string) error {
	if i == nil || i.client == nil {
		return nil
	}
	if err := i.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("platform/cache: del %s: %w", key, err)
	}
	return nil
}

// InvalidatePattern deletes every key matching a glob pattern, scanning in
// batches to avoid blocking Redis on large keyspaces.
func (i *Invalidator) InvalidatePattern(ctx context.Context, pattern string) error {
	if i == nil || i.client == nil {
		return nil
	}
	iter := i.client.Scan(ctx, 0, pattern, 100).Iterator()
	keys := make([]string, 0, 100)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 100 {
			if err := i.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("platform/cache: del pattern %s: %w", pattern, err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("platform/cache: scan %s: %w", pattern, err)
	}
	if len(keys) > 0 {
		if err := i.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("platform/cache: del pattern %s: %w", pattern, err)
		}
	}
	return nil
}
