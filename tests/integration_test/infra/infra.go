// Package infra starts the backing services used by integration tests.
package infra

import (
	"context"
	"fmt"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
)

// Start runs req and returns the container with host:port of its mapped
// port. Failures panic, since callers run from TestMain.
func Start(ctx context.Context, req testcontainers.ContainerRequest, port nat.Port) (testcontainers.Container, string) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		panic(fmt.Sprintf("starting %s: %v", req.Image, err))
	}

	host, err := c.Host(ctx)
	if err != nil {
		panic(err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		panic(err)
	}
	return c, fmt.Sprintf("%s:%s", host, mapped.Port())
}
