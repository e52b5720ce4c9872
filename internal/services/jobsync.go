package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/logger"
	"alfredoptarigan/applicant-screener/internal/models"
	"alfredoptarigan/applicant-screener/internal/repositories"
)

type JobSync interface {
	// Sync mirrors the ATS's active jobs locally and returns the monitored set.
	Sync(ctx context.Context) ([]models.JobPosting, error)
	// AppliedJob returns the applied job from the local set or, failing that,
	// from the ATS when it is still open. It returns nil when the job cannot
	// be scored.
	AppliedJob(ctx context.Context, jobID string, monitored []models.JobPosting) (*models.JobPosting, error)
	// Warm precomputes embeddings for every monitored job.
	Warm(ctx context.Context, jobs []models.JobPosting) (int, error)
}

type jobSync struct {
	ats   ATSClient
	jobs  repositories.JobRepository
	cache JobEmbeddingCache
	log   *zap.Logger
}

func NewJobSync(ats ATSClient, jobs repositories.JobRepository, cache JobEmbeddingCache, log *zap.Logger) JobSync {
	return &jobSync{
		ats:   ats,
		jobs:  jobs,
		cache: cache,
		log:   logger.OrNop(log).With(zap.String("component", "job-sync")),
	}
}

func (s *jobSync) Sync(ctx context.Context) ([]models.JobPosting, error) {
	remote, err := s.ats.FetchActiveJobs(ctx)
	if err != nil {
		return nil, err
	}

	keep := make([]string, 0, len(remote))
	changed := 0
	for i := range remote {
		posting := remote[i].Posting(true)
		descChanged, err := s.jobs.Upsert(ctx, posting)
		if err != nil {
			return nil, err
		}
		keep = append(keep, posting.ID)
		if descChanged {
			changed++
			if s.cache != nil {
				if err := s.cache.Invalidate(ctx, posting.ID); err != nil {
					s.log.Warn("invalidating embedding", zap.String("job_id", posting.ID), zap.Error(err))
				}
			}
		}
	}

	dropped, err := s.jobs.Unmonitor(ctx, keep)
	if err != nil {
		return nil, err
	}

	monitored, err := s.jobs.FindMonitored(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("jobs synced",
		zap.Int("active", len(remote)),
		zap.Int("description_changed", changed),
		zap.Int64("unmonitored", dropped))
	return monitored, nil
}

func (s *jobSync) AppliedJob(ctx context.Context, jobID string, monitored []models.JobPosting) (*models.JobPosting, error) {
	if jobID == "" {
		return nil, nil
	}
	for i := range monitored {
		if monitored[i].ID == jobID {
			j := monitored[i]
			return &j, nil
		}
	}

	remote, err := s.ats.FetchJob(ctx, jobID)
	if err != nil {
		// ATS unreachable: score against the last stored copy if there is one
		local, lerr := s.jobs.FindByID(ctx, jobID)
		if lerr == nil {
			s.log.Warn("fetching applied job failed, using stored copy", zap.String("job_id", jobID), zap.Error(err))
			return local, nil
		}
		if !errors.Is(lerr, repositories.ErrNotFound) {
			s.log.Warn("reading stored applied job", zap.String("job_id", jobID), zap.Error(lerr))
		}
		return nil, fmt.Errorf("failed to fetch applied job: %w", err)
	}
	if remote == nil || !remote.IsOpen() {
		s.log.Info("applied job not open, not injected", zap.String("job_id", jobID))
		return nil, nil
	}

	posting := remote.Posting(false)
	descChanged, err := s.jobs.Upsert(ctx, posting)
	if err != nil {
		return nil, err
	}
	if descChanged && s.cache != nil {
		if err := s.cache.Invalidate(ctx, posting.ID); err != nil {
			s.log.Warn("invalidating embedding", zap.String("job_id", posting.ID), zap.Error(err))
		}
	}
	s.log.Info("applied job injected", zap.String("job_id", jobID))
	return posting, nil
}

func (s *jobSync) Warm(ctx context.Context, jobs []models.JobPosting) (int, error) {
	warmed := 0
	for i := range jobs {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		if _, err := s.cache.VectorFor(ctx, &jobs[i]); err != nil {
			if errors.Is(err, ErrNoDescription) {
				continue
			}
			s.log.Warn("warming embedding", zap.String("job_id", jobs[i].ID), zap.Error(err))
			continue
		}
		warmed++
	}
	return warmed, nil
}
