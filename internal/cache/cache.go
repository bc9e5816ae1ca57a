package cache

import "context"

// Cache holds terminal job statuses keyed by util.GetStatusKey. A Get error
// of any kind is treated by callers as a miss.
type Cache interface {
	Put(ctx context.Context, key string, value interface{}, ttlSeconds int) error
	Get(ctx context.Context, key string, out interface{}) error
	GetDefaultTTL() int
	ShutDown(ctx context.Context)
}
