package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ssuji15/scriptd/internal/cache"
	cr "github.com/ssuji15/scriptd/internal/component/redis"
	"github.com/ssuji15/scriptd/internal/config"
	"github.com/ssuji15/scriptd/internal/job_tracer"
	"github.com/ssuji15/scriptd/internal/service/logger"
	"github.com/ssuji15/scriptd/internal/util"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type RedisCacheClient struct {
	client *redis.Client
	ttl    int
}

var (
	rcc       *RedisCacheClient
	once      sync.Once
	initError error
)

func NewRedisCacheClient(ctx context.Context) (cache.Cache, error) {
	once.Do(func() {
		cfg, err := config.GetRedisConfig()
		if err != nil {
			initError = err
			return
		}
		client, err := cr.NewRedisClient(ctx)
		if err != nil {
			initError = err
			return
		}
		rcc = &RedisCacheClient{
			client: client,
			ttl:    cfg.TTL,
		}
	})
	if initError != nil {
		return nil, initError
	}
	return rcc, nil
}

func (r *RedisCacheClient) Put(ctx context.Context, key string, value interface{}, ttl int) error {
	ctx, span := job_tracer.GetTracer().Start(ctx, "Redis/Put")
	defer span.End()

	if key == "" {
		err := fmt.Errorf("key cannot be empty")
		util.RecordSpanError(span, err)
		return err
	}
	span.AddEvent("redis.context",
		trace.WithAttributes(attribute.String("key", key)),
	)
	if value == nil {
		err := fmt.Errorf("value cannot be nil")
		util.RecordSpanError(span, err)
		return err
	}
	b, err := msgpack.Marshal(value)
	if err != nil {
		err = fmt.Errorf("failed to marshal value for key %s: %w", key, err)
		util.RecordSpanError(span, err)
		return err
	}
	if err := r.client.Set(ctx, key, b, time.Duration(ttl)*time.Second).Err(); err != nil {
		util.RecordSpanError(span, err)
		return err
	}
	return nil
}

// out must be a non-nil pointer to the destination type.
func (r *RedisCacheClient) Get(ctx context.Context, key string, out interface{}) error {
	ctx, span := job_tracer.GetTracer().Start(ctx, "Redis/Get")
	defer span.End()

	if key == "" {
		err := fmt.Errorf("key cannot be empty")
		util.RecordSpanError(span, err)
		return err
	}
	span.AddEvent("redis.context",
		trace.WithAttributes(attribute.String("key", key)),
	)

	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		err = fmt.Errorf("failed to retrieve value for key %s: %w", key, err)
		util.RecordSpanError(span, err)
		return err
	}
	if err := msgpack.Unmarshal(val, out); err != nil {
		err = fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
		util.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (r *RedisCacheClient) GetDefaultTTL() int {
	return r.ttl
}

func (r *RedisCacheClient) ShutDown(ctx context.Context) {
	if err := r.client.Close(); err != nil {
		logger.Log.Error().Err(err).Msg("error closing redis client")
		return
	}
	logger.Log.Info().Msg("redis client closed")
}
