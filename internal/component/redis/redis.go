package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ssuji15/scriptd/internal/config"
)

var (
	rc        *redis.Client
	once      sync.Once
	initError error
)

// NewRedisClient returns the shared connection pool, pinging it once on
// first use.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	once.Do(func() {
		cfg, err := config.GetRedisConfig()
		if err != nil {
			initError = err
			return
		}

		rc = redis.NewClient(&redis.Options{
			Addr:            cfg.URL,
			Password:        cfg.ClientPassword,
			DB:              0,
			PoolSize:        20,
			MinIdleConns:    2,
			PoolTimeout:     1 * time.Second,
			MinRetryBackoff: 100 * time.Millisecond,
			MaxRetryBackoff: 500 * time.Millisecond,
			ConnMaxIdleTime: 10 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		})

		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := rc.Ping(pctx).Err(); err != nil {
			initError = fmt.Errorf("failed to connect to redis: %v", err)
			return
		}
	})
	if initError != nil {
		return nil, initError
	}
	return rc, nil
}

func ResetRedisClient() {
	rc = nil
	once = sync.Once{}
	initError = nil
}
