package queue

import "context"

// Queue publishes job lifecycle notifications. The payload is the job id.
type Queue interface {
	PublishEvent(ctx context.Context, event QueueEvent, id string) error
	ShutDown(ctx context.Context)
}

type QueueEvent string

const (
	JobCreated   QueueEvent = "events.job.created"
	JobCompleted QueueEvent = "events.job.completed"
	JobFailed    QueueEvent = "events.job.failed"
)

type StreamName string

const (
	EventStream   StreamName = "JOB_EVENTS"
	EventSubjects string     = "events.job.>"
)
