package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/applicant-screener/internal/gates"
	"alfredoptarigan/applicant-screener/internal/logger"
	"alfredoptarigan/applicant-screener/internal/metrics"
	"alfredoptarigan/applicant-screener/internal/models"
)

// MaxDispatchConcurrency bounds parallel pair analyses regardless of configuration.
const MaxDispatchConcurrency = 15

type DispatchInput struct {
	RequestID   uuid.UUID
	CandidateID string
	Resume      string
	Pairs       []CandidateJob
	Snapshot    models.Snapshot
}

// PairOutcome is what one worker produced for one pair. Err set means the
// pair failed and Analysis is nil.
type PairOutcome struct {
	Pair         CandidateJob
	Analysis     *models.Analysis
	Escalation   *models.EscalationRecord
	Verification *gates.YearsVerification
	Err          error
}

type Dispatcher interface {
	// Dispatch analyzes every pair and returns outcomes in input order. It
	// writes nothing; persistence is up to the caller.
	Dispatch(ctx context.Context, in DispatchInput) []PairOutcome
}

type dispatcher struct {
	scorer      Scorer
	breaker     *QuotaBreaker
	concurrency int
	log         *zap.Logger
}

func NewDispatcher(scorer Scorer, breaker *QuotaBreaker, concurrency int, log *zap.Logger) Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &dispatcher{
		scorer:      scorer,
		breaker:     breaker,
		concurrency: min(concurrency, MaxDispatchConcurrency),
		log:         logger.OrNop(log).With(zap.String("component", "dispatcher")),
	}
}

func (d *dispatcher) Dispatch(ctx context.Context, in DispatchInput) []PairOutcome {
	outcomes := make([]PairOutcome, len(in.Pairs))
	if len(in.Pairs) == 0 {
		return outcomes
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(d.concurrency, len(in.Pairs)))

	for i, pair := range in.Pairs {
		g.Go(func() error {
			outcomes[i] = d.analyzePair(gctx, in, pair)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (d *dispatcher) analyzePair(ctx context.Context, in DispatchInput, pair CandidateJob) PairOutcome {
	out := PairOutcome{Pair: pair}
	job := &pair.Job
	snap := in.Snapshot
	log := d.log.With(
		zap.String("request_id", in.RequestID.String()),
		zap.String("candidate_id", in.CandidateID),
		zap.String("job_id", job.ID))

	if d.breaker != nil && d.breaker.Tripped() {
		out.Err = fmt.Errorf("%w: breaker open", ErrQuotaExhausted)
		metrics.PairAnalysesTotal.WithLabelValues("skipped").Inc()
		return out
	}

	analysis, err := d.scorer.Analyze(ctx, in.Resume, job, snap.ScoringModel)
	d.record(err)
	if err != nil {
		log.Warn("pair analysis failed", zap.String("model", snap.ScoringModel), zap.Error(err))
		out.Err = err
		return out
	}

	if snap.InEscalationBand(analysis.Score) {
		escalated, err := d.scorer.Analyze(ctx, in.Resume, job, snap.EscalationModel)
		d.record(err)
		if err != nil {
			log.Warn("escalation failed, keeping layer-2 result",
				zap.String("model", snap.EscalationModel), zap.Int("layer2_score", analysis.Score), zap.Error(err))
		} else {
			rec := models.NewEscalationRecord(in.RequestID, job.ID, analysis.Score, escalated.Score,
				snap.ThresholdFor(job.ID), snap.ScoringModel, snap.EscalationModel)
			out.Escalation = &rec
			metrics.EscalationsTotal.WithLabelValues(strconv.FormatBool(rec.MaterialChange)).Inc()
			log.Info("pair escalated",
				zap.Int("layer2_score", rec.Layer2Score),
				zap.Int("layer3_score", rec.Layer3Score),
				zap.Bool("crossed_threshold", rec.CrossedThreshold))
			analysis = escalated
		}
	}

	if gates.NeedsYearsVerification(*analysis) {
		v, err := d.scorer.VerifyYears(ctx, in.Resume, job, analysis.YearsAnalysis, analysis.Model)
		d.record(err)
		if err != nil {
			log.Warn("years verification failed, cap stands", zap.Error(err))
		} else {
			out.Verification = v
		}
	}

	out.Analysis = analysis
	return out
}

func (d *dispatcher) record(err error) {
	switch {
	case err == nil:
		metrics.PairAnalysesTotal.WithLabelValues("ok").Inc()
	case IsQuotaError(err):
		metrics.PairAnalysesTotal.WithLabelValues("quota").Inc()
	default:
		metrics.PairAnalysesTotal.WithLabelValues("failed").Inc()
	}
	if d.breaker != nil {
		d.breaker.Record(err)
	}
}
