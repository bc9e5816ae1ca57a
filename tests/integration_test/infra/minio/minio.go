package minio

import (
	"context"
	"testing"
	"time"

	"github.com/ssuji15/scriptd/tests/integration_test/infra"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func SetupContainer(ctx context.Context) (testcontainers.Container, string) {
	return infra.Start(ctx, testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd: []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/ready").
			WithPort("9000").
			WithStartupTimeout(30 * time.Second),
	}, "9000")
}

// SetMinioEnv points the config at a container started by SetupContainer,
// with "jobs" as the jobs bucket.
func SetMinioEnv(t *testing.T, endpoint string) {
	t.Helper()
	t.Setenv("MINIO_ENDPOINT", endpoint)
	t.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	t.Setenv("MINIO_SECRET_KEY", "minioadmin")
	t.Setenv("MINIO_USE_SSL", "false")
	t.Setenv("MINIO_JOBS_BUCKET", "jobs")
}
