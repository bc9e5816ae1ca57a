package jobservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/ssuji15/scriptd/internal/jobstore"
	"github.com/ssuji15/scriptd/internal/queue"
	"github.com/ssuji15/scriptd/internal/service/logger"
	"github.com/ssuji15/scriptd/internal/util"
	"github.com/ssuji15/scriptd/model"
)

// GetStatus returns the job's status. Terminal statuses never change and
// are served from the cache when possible.
func (s *JobService) GetStatus(ctx context.Context, id string) (model.Status, error) {
	if s.cache != nil {
		var st model.Status
		if err := s.cache.Get(ctx, util.GetStatusKey(id), &st); err == nil {
			return st, nil
		}
	}

	st, ok, err := s.store.GetStatus(id)
	if err != nil {
		return model.Status{}, s.storeError(err)
	}
	if !ok {
		return model.Status{}, s.missing(id)
	}
	s.cacheStatus(ctx, id, st)
	return st, nil
}

func (s *JobService) GetStdOutput(ctx context.Context, id string) (string, error) {
	out, ok, err := s.store.GetStdOutput(id)
	if err != nil {
		return "", s.storeError(err)
	}
	if !ok {
		return "", s.missing(id)
	}
	return out, nil
}

func (s *JobService) GetError(ctx context.Context, id string) (string, error) {
	out, ok, err := s.store.GetError(id)
	if err != nil {
		return "", s.storeError(err)
	}
	if !ok {
		return "", s.missing(id)
	}
	return out, nil
}

func (s *JobService) GetData(ctx context.Context, id string) ([]byte, error) {
	b, ok, err := s.store.GetData(id)
	if err != nil {
		return nil, s.storeError(err)
	}
	if !ok {
		return nil, s.missing(id)
	}
	return b, nil
}

// ArtifactPath locates an artifact on disk so it can be streamed.
func (s *JobService) ArtifactPath(ctx context.Context, id string, a model.Artifact) (string, error) {
	p, ok := s.store.ArtifactPath(id, a)
	if !ok {
		return "", s.missing(id)
	}
	return p, nil
}

// ListJobs returns every job in the store with its current status.
func (s *JobService) ListJobs(ctx context.Context) ([]model.Job, error) {
	ids, err := s.store.List()
	if err != nil {
		return nil, err
	}
	jobs := make([]model.Job, 0, len(ids))
	for _, id := range ids {
		st, _, err := s.store.GetStatus(id)
		if err != nil {
			log := logger.FromContext(ctx)
			log.Error().Err(err).Str("job_id", id).Msg("skipping unreadable job")
			continue
		}
		jobs = append(jobs, model.Job{ID: id, Status: st})
	}
	return jobs, nil
}

// Recover finalises jobs left unfinished by a previous process as errored.
// It must run before the pool receives work, since it cannot tell a live
// job from an orphaned one.
func (s *JobService) Recover(ctx context.Context) (int, error) {
	ids, err := s.store.List()
	if err != nil {
		return 0, err
	}
	log := logger.FromContext(ctx)
	recovered := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}
		st, _, err := s.store.GetStatus(id)
		if err != nil {
			log.Error().Err(err).Str("job_id", id).Msg("status unreadable, finalising job")
			st = model.Status{}
		}
		if st.Completed() {
			continue
		}

		jctx := logger.WithJob(ctx, id)
		st = s.fail(jctx, id, st, errors.New(InterruptedMessage))
		s.cacheStatus(jctx, id, st)
		s.publish(jctx, queue.JobFailed, id)
		recovered++
	}
	if recovered > 0 {
		log.Warn().Int("jobs", recovered).Msg("finalised interrupted jobs")
	}
	return recovered, nil
}

func (s *JobService) storeError(err error) error {
	if errors.Is(err, jobstore.ErrInvalidID) {
		return ErrJobNotFound
	}
	return err
}

// missing tells an unknown job apart from a known job whose record has not
// been written yet.
func (s *JobService) missing(id string) error {
	ok, err := s.store.Exists(id)
	if err != nil {
		return fmt.Errorf("unable to look up job %s: %w", id, err)
	}
	if !ok {
		return ErrJobNotFound
	}
	return ErrArtifactNotFound
}
