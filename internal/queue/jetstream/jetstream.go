package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/ssuji15/scriptd/internal/component/jetstream"
	"github.com/ssuji15/scriptd/internal/config"
	"github.com/ssuji15/scriptd/internal/job_tracer"
	"github.com/ssuji15/scriptd/internal/queue"
	"github.com/ssuji15/scriptd/internal/service/logger"
	"github.com/ssuji15/scriptd/internal/util"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type JetStreamQueueClient struct {
	connection *nats.Conn
	context    nats.JetStreamContext
}

var (
	jqc       *JetStreamQueueClient
	once      sync.Once
	initError error
)

func NewJetStreamQueueClient() (queue.Queue, error) {
	once.Do(func() {
		cfg, err := config.GetNatsConfig()
		if err != nil {
			initError = err
			return
		}
		nc, err := jetstream.NewJetStreamClient()
		if err != nil {
			initError = err
			return
		}
		js, err := nc.JetStream()
		if err != nil {
			initError = err
			return
		}
		c := &JetStreamQueueClient{connection: nc, context: js}
		if err := c.AddStream(string(queue.EventStream), []string{queue.EventSubjects}, cfg.MAX_MESSAGES); err != nil {
			initError = err
			return
		}
		jqc = c
	})
	if initError != nil {
		return nil, initError
	}
	return jqc, nil
}

// AddStream creates the stream or, if it already exists, leaves it as is.
// Old messages are discarded once maxMsgs is reached.
func (c *JetStreamQueueClient) AddStream(stream string, subjects []string, maxMsgs int) error {
	if stream == "" {
		return fmt.Errorf("stream name cannot be empty")
	}
	if maxMsgs <= 0 {
		return fmt.Errorf("max messages must be positive, got %d", maxMsgs)
	}
	_, err := c.context.AddStream(&nats.StreamConfig{
		Name:      stream,
		Subjects:  subjects,
		Retention: nats.LimitsPolicy,
		Discard:   nats.DiscardOld,
		MaxMsgs:   int64(maxMsgs),
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return err
	}
	return nil
}

func (c *JetStreamQueueClient) PublishEvent(ctx context.Context, event queue.QueueEvent, id string) error {
	ctx, span := job_tracer.GetTracer().Start(ctx, "JetStream/PublishEvent")
	defer span.End()
	span.AddEvent("jetstream.context",
		trace.WithAttributes(
			attribute.String("subject", string(event)),
			attribute.String("job_id", id),
		),
	)

	if _, err := c.context.Publish(string(event), []byte(id), nats.Context(ctx)); err != nil {
		util.RecordSpanError(span, err)
		return fmt.Errorf("failed to publish %s for job %s: %w", event, id, err)
	}
	return nil
}

func (c *JetStreamQueueClient) ShutDown(ctx context.Context) {
	if err := c.connection.Drain(); err != nil {
		logger.Log.Error().Err(err).Msg("error draining nats connection")
	}
	c.connection.Close()
	logger.Log.Info().Msg("jetstream queue closed")
}
