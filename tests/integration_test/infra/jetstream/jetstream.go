package jetstream

import (
	"context"
	"time"

	"github.com/ssuji15/scriptd/tests/integration_test/infra"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupContainer starts a JetStream enabled NATS server and returns its
// nats:// url.
func SetupContainer(ctx context.Context) (testcontainers.Container, string) {
	c, endpoint := infra.Start(ctx, testcontainers.ContainerRequest{
		Image:        "nats:2.10-alpine",
		ExposedPorts: []string{"4222/tcp"},
		Cmd:          []string{"-js"},
		WaitingFor:   wait.ForListeningPort("4222/tcp").WithStartupTimeout(30 * time.Second),
	}, "4222")
	return c, "nats://" + endpoint
}
