// Package cache stores the latest metric snapshot per server for fast reads.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a TTL key-value store for JSON-encodable values.
type Cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Close() error
}

// LatestKey is the cache key for a server's most recent snapshot.
func LatestKey(serverID int64) string {
	return fmt.Sprintf("server:%d:latest", serverID)
}
