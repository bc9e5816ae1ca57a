package storage

import "context"

// Storage archives finished job artifacts in an object store.
type Storage interface {
	Upload(ctx context.Context, bucket string, objectPath string, data []byte) error
	Download(ctx context.Context, bucket string, objectPath string) ([]byte, error)
	GetJobsBucket() string
	ShutDown(ctx context.Context)
}
