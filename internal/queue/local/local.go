// Package local is the queue used when no broker is configured. Events are
// only logged.
package local

import (
	"context"

	"github.com/ssuji15/scriptd/internal/queue"
	"github.com/ssuji15/scriptd/internal/service/logger"
)

type LogQueue struct{}

func NewLogQueue() queue.Queue {
	return LogQueue{}
}

func (LogQueue) PublishEvent(ctx context.Context, event queue.QueueEvent, id string) error {
	log := logger.FromContext(ctx)
	log.Debug().Str("event", string(event)).Str("job_id", id).Msg("job event")
	return nil
}

func (LogQueue) ShutDown(ctx context.Context) {}
