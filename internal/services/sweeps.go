package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/logger"
	"alfredoptarigan/applicant-screener/internal/metrics"
	"alfredoptarigan/applicant-screener/internal/models"
	"alfredoptarigan/applicant-screener/internal/repositories"
)

const (
	SweepMinAge      = 10 * time.Minute
	SweepLimit       = 50
	SweepMaxRequeues = 3
)

// RecoverySweep re-queues requests left in a bad state by an earlier cycle.
// Sweeps are idempotent: running one twice in a row re-queues nothing the
// second time.
type RecoverySweep interface {
	Name() string
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type requeueSweep struct {
	name string
	repo repositories.ScreeningRequestRepository
	find func(ctx context.Context, before time.Time, maxRequeues, limit int) ([]models.ScreeningRequest, error)
	log  *zap.Logger
}

// NewZeroScoreSweep re-queues completed requests whose every match scored 0,
// the footprint of a scoring outage rather than a genuine mismatch.
func NewZeroScoreSweep(repo repositories.ScreeningRequestRepository, log *zap.Logger) RecoverySweep {
	return &requeueSweep{
		name: "zero_score",
		repo: repo,
		find: repo.FindZeroScoreCompleted,
		log:  logger.OrNop(log).With(zap.String("component", "sweep"), zap.String("sweep", "zero_score")),
	}
}

// NewStuckScoringSweep re-queues requests left in scoring with no matches,
// which happens when the process dies mid-cycle.
func NewStuckScoringSweep(repo repositories.ScreeningRequestRepository, log *zap.Logger) RecoverySweep {
	return &requeueSweep{
		name: "stuck_scoring",
		repo: repo,
		find: repo.FindStuckScoring,
		log:  logger.OrNop(log).With(zap.String("component", "sweep"), zap.String("sweep", "stuck_scoring")),
	}
}

// DefaultSweeps returns the sweeps in the order they run.
func DefaultSweeps(repo repositories.ScreeningRequestRepository, log *zap.Logger) []RecoverySweep {
	return []RecoverySweep{
		NewZeroScoreSweep(repo, log),
		NewStuckScoringSweep(repo, log),
	}
}

func (s *requeueSweep) Name() string { return s.name }

func (s *requeueSweep) Sweep(ctx context.Context, now time.Time) (int, error) {
	reqs, err := s.find(ctx, now.Add(-SweepMinAge), SweepMaxRequeues, SweepLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to run %s sweep: %w", s.name, err)
	}

	requeued := 0
	for i := range reqs {
		req := &reqs[i]
		fresh, err := s.repo.Requeue(ctx, req)
		if err != nil {
			s.log.Error("requeue failed", zap.String("request_id", req.ID.String()), zap.Error(err))
			continue
		}
		requeued++
		s.log.Info("request re-queued",
			zap.String("request_id", req.ID.String()),
			zap.String("new_request_id", fresh.ID.String()),
			zap.String("candidate_id", req.CandidateID),
			zap.Int("requeue_count", fresh.RequeueCount))
	}

	if requeued > 0 {
		metrics.RecoveredRequestsTotal.WithLabelValues(s.name).Add(float64(requeued))
	}
	return requeued, nil
}
