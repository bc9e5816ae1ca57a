package component

import (
	"context"
	"fmt"

	"github.com/ssuji15/scriptd/internal/cache"
	"github.com/ssuji15/scriptd/internal/cache/freecache"
	"github.com/ssuji15/scriptd/internal/cache/redis"
	"github.com/ssuji15/scriptd/internal/queue"
	jq "github.com/ssuji15/scriptd/internal/queue/jetstream"
	"github.com/ssuji15/scriptd/internal/queue/local"
	"github.com/ssuji15/scriptd/internal/storage"
	"github.com/ssuji15/scriptd/internal/storage/minio"
)

func GetCache(ctx context.Context, cacheType string) (cache.Cache, error) {
	switch cacheType {
	case "redis":
		return redis.NewRedisCacheClient(ctx)
	case "freecache":
		return freecache.NewFreeCache()
	default:
		return nil, fmt.Errorf("unknown cache type %q", cacheType)
	}
}

func GetQueue(qType string) (queue.Queue, error) {
	switch qType {
	case "jetstream":
		return jq.NewJetStreamQueueClient()
	case "local":
		return local.NewLogQueue(), nil
	default:
		return nil, fmt.Errorf("unknown queue type %q", qType)
	}
}

// GetStorage returns nil storage for "local": artifacts then live only in
// the job directory.
func GetStorage(storageType string) (storage.Storage, error) {
	switch storageType {
	case "minio":
		return minio.NewMinioClient()
	case "local":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", storageType)
	}
}
