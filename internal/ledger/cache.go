package ledger

import (
	"context"
	"fmt"
)

// Invalidator drops read-side cache entries after a committed transaction.
// Implementations must be safe to call with keys that do not exist.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
	InvalidatePattern(ctx context.Context, pattern string) error
}

// ProductCacheKey is the tenant-scoped cache key for a single product.
func ProductCacheKey(orgID, productID int64) string {
	return fmt.Sprintf("tenant:%d:product:%d", orgID, productID)
}

// ProductListPattern matches every cached product listing for a tenant.
func ProductListPattern(orgID int64) string {
	return fmt.Sprintf("tenant:%d:products:*", orgID)
}

// StatsCacheKey is the tenant-scoped inventory statistics entry.
func StatsCacheKey(orgID int64) string {
	return fmt.Sprintf("tenant:%d:inventory:stats", orgID)
}
