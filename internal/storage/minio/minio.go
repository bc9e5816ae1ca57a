package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ssuji15/scriptd/internal/config"
	"github.com/ssuji15/scriptd/internal/job_tracer"
	"github.com/ssuji15/scriptd/internal/service/logger"
	"github.com/ssuji15/scriptd/internal/storage"
	"github.com/ssuji15/scriptd/internal/util"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MinioClient wraps the MinIO SDK client.
type MinioClient struct {
	client     *minio.Client
	jobsBucket string
	transport  *http.Transport
}

var (
	m         *MinioClient
	once      sync.Once
	initError error
)

// NewMinioClient connects to MinIO and makes sure the jobs bucket exists.
func NewMinioClient() (storage.Storage, error) {
	once.Do(func() {
		cfg, err := config.GetMinioConfig()
		if err != nil {
			initError = err
			return
		}

		transport := &http.Transport{
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   20,
			MaxConnsPerHost:       20,
			IdleConnTimeout:       120 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			DisableCompression:    true,
		}

		cli, err := minio.New(cfg.URL, &minio.Options{
			Creds:     credentials.NewStaticV4(cfg.ACCESS_KEY, cfg.SECRET_KEY, ""),
			Secure:    cfg.USE_SSL,
			Transport: transport,
		})
		if err != nil {
			initError = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ensureBucket(ctx, cli, cfg.JOBS_BUCKET); err != nil {
			initError = err
			return
		}

		m = &MinioClient{client: cli, jobsBucket: cfg.JOBS_BUCKET, transport: transport}
	})
	if initError != nil {
		return nil, initError
	}
	return m, nil
}

func ensureBucket(ctx context.Context, cli *minio.Client, bucket string) error {
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("unable to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("unable to create bucket %s: %w", bucket, err)
	}
	logger.Log.Info().Str("bucket", bucket).Msg("created jobs bucket")
	return nil
}

func (c *MinioClient) Upload(ctx context.Context, bucket string, objectPath string, data []byte) error {
	ctx, span := job_tracer.GetTracer().Start(ctx, "MinIO/Upload")
	defer span.End()
	span.AddEvent("minio.context",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("object", objectPath),
			attribute.Int("size", len(data)),
		),
	)

	_, err := c.client.PutObject(ctx, bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		util.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (c *MinioClient) Download(ctx context.Context, bucket string, objectPath string) ([]byte, error) {
	ctx, span := job_tracer.GetTracer().Start(ctx, "MinIO/Download")
	defer span.End()
	span.AddEvent("minio.context",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("object", objectPath),
		),
	)

	object, err := c.client.GetObject(ctx, bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	defer object.Close()

	// GetObject is lazy; Stat surfaces a missing object
	if _, err := object.Stat(); err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	data, err := io.ReadAll(object)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}
	return data, nil
}

func (c *MinioClient) GetJobsBucket() string {
	return c.jobsBucket
}

func (c *MinioClient) ShutDown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		c.transport.CloseIdleConnections()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info().Msg("minio client closed")
	case <-ctx.Done():
		logger.Log.Warn().Err(ctx.Err()).Msg("minio shutdown interrupted")
	}
}
