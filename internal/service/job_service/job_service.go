package jobservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ssuji15/scriptd/internal/cache"
	"github.com/ssuji15/scriptd/internal/job_tracer"
	"github.com/ssuji15/scriptd/internal/jobstore"
	"github.com/ssuji15/scriptd/internal/queue"
	"github.com/ssuji15/scriptd/internal/queue/local"
	"github.com/ssuji15/scriptd/internal/runner"
	"github.com/ssuji15/scriptd/internal/scheduler"
	"github.com/ssuji15/scriptd/internal/service/logger"
	"github.com/ssuji15/scriptd/internal/storage"
	"github.com/ssuji15/scriptd/internal/template"
	"github.com/ssuji15/scriptd/internal/util"
	"github.com/ssuji15/scriptd/model"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

const InterruptedMessage = "job interrupted by service restart"

// Settings is the executor configuration applied to every job.
type Settings struct {
	InterpreterPath string
	Timeout         time.Duration
	Variables       map[string]string
}

// JobService owns the job lifecycle: it records a job, schedules its
// execution and persists the outcome. Cache, queue and storage are optional.
type JobService struct {
	store    *jobstore.Store
	pool     *scheduler.Pool
	runner   *runner.Runner
	settings Settings

	cache   cache.Cache
	queue   queue.Queue
	storage storage.Storage
}

func NewJobService(store *jobstore.Store, pool *scheduler.Pool, r *runner.Runner, settings Settings, c cache.Cache, q queue.Queue, s storage.Storage) *JobService {
	if q == nil {
		q = local.NewLogQueue()
	}
	if settings.Variables == nil {
		settings.Variables = map[string]string{}
	}
	return &JobService{
		store:    store,
		pool:     pool,
		runner:   r,
		settings: settings,
		cache:    c,
		queue:    q,
		storage:  s,
	}
}

// SubmitJob records a pending job and schedules its execution. The returned
// id can be polled right away.
func (s *JobService) SubmitJob(ctx context.Context, script string) (string, error) {
	uid, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("unable to generate job id: %w", err)
	}
	id := uid.String()

	ctx = logger.WithJob(ctx, id)
	ctx, span := job_tracer.GetTracer().Start(ctx, "JobService/SubmitJob")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", id))
	log := logger.FromContext(ctx)

	if s.pool.Closed() {
		util.RecordSpanError(span, scheduler.ErrPoolClosed)
		return "", fmt.Errorf("unable to schedule job: %w", scheduler.ErrPoolClosed)
	}
	if err := s.store.SetStatus(id, model.Status{}); err != nil {
		util.RecordSpanError(span, err)
		return "", err
	}

	submitted := time.Now()
	// the job outlives the request that submitted it
	jobCtx := context.WithoutCancel(ctx)
	_, err = s.pool.Submit(jobCtx, func(ctx context.Context) (any, error) {
		return nil, s.execute(ctx, id, script, submitted)
	})
	if err != nil {
		// lost a race with Shutdown; the id was never handed out
		util.RecordSpanError(span, err)
		if derr := s.store.Delete(id); derr != nil {
			log.Error().Err(derr).Msg("unable to discard rejected job")
		}
		return "", fmt.Errorf("unable to schedule job: %w", err)
	}

	job_tracer.GetMetrics().JobSubmitted(ctx)
	s.publish(ctx, queue.JobCreated, id)
	log.Info().Int("pending", s.pool.Pending()).Msg("job submitted")
	return id, nil
}

// execute runs one job on a pool worker. Whatever happens, the job ends with
// a terminal status, and on failure the error record explains why.
func (s *JobService) execute(ctx context.Context, id, script string, submitted time.Time) (err error) {
	ctx, span := job_tracer.GetTracer().Start(ctx, "JobService/Execute")
	defer span.End()
	log := logger.FromContext(ctx)

	started := time.Now().UTC()
	status := model.Status{TimeStarted: &started}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", scheduler.ErrPanic, r)
		}
		if err != nil {
			util.RecordSpanError(span, err)
			log.Error().Err(err).Msg("job execution failed")
			status = s.fail(ctx, id, status, err)
		}
		s.finished(ctx, id, status, time.Since(submitted))
	}()

	if err := s.store.SetStatus(id, status); err != nil {
		return err
	}
	configured := template.Configure(script, s.settings.Variables, s.store.DataFile(id))
	log.Info().Str("output_path", configured.OutputPath).Msg("job started")
	if missing := template.Unresolved(configured.Script); len(missing) > 0 {
		log.Warn().Strs("placeholders", missing).Msg("unresolved template placeholders")
	}

	res, err := s.run(ctx, configured.Script)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("exit_code", res.ExitCode), attribute.Bool("timed_out", res.TimedOut))

	if err := s.store.SetStdOutput(id, res.Stdout); err != nil {
		return err
	}
	if err := s.store.SetError(id, res.Stderr); err != nil {
		return err
	}
	completed := time.Now().UTC()
	status.TimeCompleted = &completed
	status.Error = res.Stderr != ""
	if err := s.store.SetStatus(id, status); err != nil {
		status.TimeCompleted = nil
		return err
	}

	log.Info().
		Bool("error", status.Error).
		Int("exit_code", res.ExitCode).
		Bool("timed_out", res.TimedOut).
		Msg("job completed")
	return nil
}

// run executes the script on its own goroutine so the pool worker only
// waits on the outcome.
func (s *JobService) run(ctx context.Context, script string) (runner.Result, error) {
	type outcome struct {
		res runner.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", scheduler.ErrPanic, r)}
			}
		}()
		res, err := s.runner.Run(ctx, script, s.settings.InterpreterPath, s.settings.Timeout)
		done <- outcome{res: res, err: err}
	}()
	o := <-done
	return o.res, o.err
}

// fail writes cause as the job's error text and marks the status completed
// with error. A job that never started gets its completion time as start
// time too.
func (s *JobService) fail(ctx context.Context, id string, status model.Status, cause error) model.Status {
	log := logger.FromContext(ctx)
	if err := s.store.SetError(id, cause.Error()); err != nil {
		log.Error().Err(err).Msg("unable to record job error")
	}
	completed := time.Now().UTC()
	if status.TimeStarted == nil {
		status.TimeStarted = &completed
	}
	status.TimeCompleted = &completed
	status.Error = true
	if err := s.store.SetStatus(id, status); err != nil {
		log.Error().Err(err).Msg("unable to record terminal status")
	}
	return status
}

func (s *JobService) finished(ctx context.Context, id string, status model.Status, elapsed time.Duration) {
	job_tracer.GetMetrics().JobFinished(ctx, status.Error, elapsed)
	s.cacheStatus(ctx, id, status)

	event := queue.JobCompleted
	if status.Error {
		event = queue.JobFailed
	}
	s.publish(ctx, event, id)
	s.archive(ctx, id)
}

func (s *JobService) publish(ctx context.Context, event queue.QueueEvent, id string) {
	if err := s.queue.PublishEvent(ctx, event, id); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("event", string(event)).Msg("unable to publish job event")
	}
}

// archive copies every present artifact to object storage.
func (s *JobService) archive(ctx context.Context, id string) {
	if s.storage == nil {
		return
	}
	log := logger.FromContext(ctx)
	bucket := s.storage.GetJobsBucket()
	for _, a := range model.Artifacts {
		p, ok := s.store.ArtifactPath(id, a)
		if !ok {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			log.Error().Err(err).Str("artifact", string(a)).Msg("unable to read artifact for archive")
			continue
		}
		if err := s.storage.Upload(ctx, bucket, util.GetArtifactObjectPath(id, string(a)), b); err != nil {
			log.Error().Err(err).Str("artifact", string(a)).Msg("unable to archive artifact")
		}
	}
}

func (s *JobService) cacheStatus(ctx context.Context, id string, status model.Status) {
	if s.cache == nil || !status.Completed() {
		return
	}
	if err := s.cache.Put(ctx, util.GetStatusKey(id), status, s.cache.GetDefaultTTL()); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("unable to cache job status")
	}
}
