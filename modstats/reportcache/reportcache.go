// Component for caching rendered report JSON with a fixed TTL.
//
// Includes an interface and implementations using redis and in-process
// memory. Reports over a closed window are deterministic functions of the
// append-only logs, so caching them is safe; the TTL bounds staleness for
// windows that still include the moving edge.
package reportcache

import (
	"context"
)

type CacheStore interface {
	// Get returns ("", nil) on a cache miss.
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
