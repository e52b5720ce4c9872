package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/logger"
)

// Scheduler drives RunCycle on a cron schedule. Overlapping ticks within the
// process are skipped; the cycle lock covers other processes.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop()
}

type scheduler struct {
	coordinator  Coordinator
	schedule     string
	cycleTimeout time.Duration
	cron         *cron.Cron
	log          *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(coordinator Coordinator, schedule string, cycleTimeout time.Duration, log *zap.Logger) Scheduler {
	log = logger.OrNop(log).With(zap.String("component", "scheduler"))
	return &scheduler{
		coordinator:  coordinator,
		schedule:     schedule,
		cycleTimeout: cycleTimeout,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		log: log,
	}
}

func (s *scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.String("schedule", s.schedule))
	return nil
}

func (s *scheduler) tick() {
	s.wg.Add(1)
	defer s.wg.Done()

	ctx := s.ctx
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	out, err := s.coordinator.RunCycle(ctx)
	if err != nil {
		s.log.Error("cycle failed", zap.String("outcome", string(out.Status)), zap.Error(err))
		return
	}
	s.log.Debug("cycle tick done",
		zap.String("outcome", string(out.Status)),
		zap.Duration("duration", out.Duration))
}

// Stop cancels a running cycle and waits for it to return.
func (s *scheduler) Stop() {
	s.log.Info("stopping scheduler")
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}
