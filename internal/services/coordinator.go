package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"alfredoptarigan/applicant-screener/internal/gates"
	"alfredoptarigan/applicant-screener/internal/logger"
	"alfredoptarigan/applicant-screener/internal/metrics"
	"alfredoptarigan/applicant-screener/internal/models"
	"alfredoptarigan/applicant-screener/internal/repositories"
)

type OutcomeStatus string

const (
	OutcomeRan             OutcomeStatus = "ran"
	OutcomeSkippedDisabled OutcomeStatus = "skipped_disabled"
	OutcomeAlreadyRunning  OutcomeStatus = "already_running"
	OutcomeFailed          OutcomeStatus = "failed"
)

const maxFailureSummary = 300

// errRequestDeferred marks a request put back to pending because the quota
// breaker tripped before all of its pairs were analyzed.
var errRequestDeferred = errors.New("request deferred: quota breaker open")

// Outcome summarizes one RunCycle call.
type Outcome struct {
	Status         OutcomeStatus
	Requests       int
	Completed      int
	Recovered      int
	Notified       int
	Deferred       int
	BreakerTripped bool
	Errors         []string
	Duration       time.Duration
}

func (o Outcome) Response() models.CycleOutcomeResponse {
	return models.CycleOutcomeResponse{
		Outcome:    string(o.Status),
		Requests:   o.Requests,
		Recovered:  o.Recovered,
		Notified:   o.Notified,
		Deferred:   o.Deferred,
		BreakerHit: o.BreakerTripped,
		Errors:     o.Errors,
		DurationMS: o.Duration.Milliseconds(),
	}
}

type Coordinator interface {
	// RunCycle runs one detect-score-persist cycle under the cycle lock.
	// Pair failures never surface here; the error is reserved for the
	// coordinator's own stores.
	RunCycle(ctx context.Context) (Outcome, error)
}

type CoordinatorDeps struct {
	Locker     CycleLocker
	Settings   repositories.SettingsRepository
	Requests   repositories.ScreeningRequestRepository
	Matches    repositories.MatchResultRepository
	Sweeps     []RecoverySweep
	Detector   Detector
	JobSync    JobSync
	Filter     SimilarityFilter
	Dispatcher Dispatcher
	Breaker    *QuotaBreaker
	Notifier   Notifier
	Alerter    Alerter
	ATS        ATSClient
	NoteAction string
	Now        func() time.Time
}

type coordinator struct {
	CoordinatorDeps
	log *zap.Logger
}

func NewCoordinator(deps CoordinatorDeps, log *zap.Logger) Coordinator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Breaker == nil {
		deps.Breaker = NewQuotaBreaker(DefaultQuotaBreakerThreshold)
	}
	if deps.NoteAction == "" {
		deps.NoteAction = "AI Screening"
	}
	return &coordinator{
		CoordinatorDeps: deps,
		log:             logger.OrNop(log).With(zap.String("component", "coordinator")),
	}
}

func (c *coordinator) RunCycle(ctx context.Context) (out Outcome, err error) {
	start := c.Now()
	defer func() {
		out.Duration = time.Since(start)
		metrics.CyclesTotal.WithLabelValues(string(out.Status)).Inc()
		if out.Status == OutcomeRan {
			metrics.CycleDurationSeconds.Observe(out.Duration.Seconds())
		}
	}()

	settings, err := c.Settings.Get(ctx)
	if err != nil {
		out.Status = OutcomeFailed
		return out, fmt.Errorf("failed to load screening settings: %w", err)
	}
	snap := settings.Snapshot()
	if !snap.ScreeningEnabled {
		c.log.Info("screening disabled, skipping cycle")
		out.Status = OutcomeSkippedDisabled
		return out, nil
	}

	owner := NewLockOwner()
	acquired, err := c.Locker.Acquire(ctx, owner, start)
	if err != nil {
		out.Status = OutcomeFailed
		return out, err
	}
	if !acquired {
		c.log.Info("cycle already running, skipping")
		out.Status = OutcomeAlreadyRunning
		return out, nil
	}
	log := c.log.With(zap.String("owner", owner))
	log.Info("cycle lock acquired")

	defer func() {
		if relErr := c.Locker.Release(context.WithoutCancel(ctx), owner); relErr != nil {
			log.Error("releasing cycle lock", zap.Error(relErr))
		} else {
			log.Info("cycle lock released")
		}
	}()

	c.Breaker.BeginCycle()
	defer c.Breaker.EndCycle()

	for _, sweep := range c.Sweeps {
		n, err := sweep.Sweep(ctx, start)
		if err != nil {
			log.Error("recovery sweep failed", zap.String("sweep", sweep.Name()), zap.Error(err))
			out.Errors = append(out.Errors, err.Error())
			continue
		}
		out.Recovered += n
	}

	jobs, err := c.JobSync.Sync(ctx)
	if err != nil {
		out.Status = OutcomeFailed
		return out, fmt.Errorf("failed to sync jobs: %w", err)
	}

	queue, err := c.Detector.Detect(ctx, snap, start)
	if err != nil {
		out.Status = OutcomeFailed
		return out, err
	}
	out.Requests = len(queue)
	log.Info("detection complete", zap.Int("requests", len(queue)), zap.Int("jobs", len(jobs)))

	for i := range queue {
		req := &queue[i]
		notified, err := c.processRequest(ctx, snap, jobs, req)
		if errors.Is(err, errRequestDeferred) {
			out.Deferred++
		} else if err != nil {
			log.Error("request failed", zap.String("request_id", req.ID.String()), zap.Error(err))
			out.Errors = append(out.Errors, err.Error())
			if uerr := c.Requests.UpdateError(ctx, req.ID, err.Error()); uerr != nil {
				log.Error("recording request failure", zap.String("request_id", req.ID.String()), zap.Error(uerr))
			}
		} else {
			out.Completed++
			out.Notified += notified
		}

		if c.Breaker.Tripped() {
			out.BreakerTripped = true
			c.tripBreaker(ctx, log)
			break
		}
	}

	out.Status = OutcomeRan
	log.Info("cycle finished",
		zap.Int("requests", out.Requests),
		zap.Int("completed", out.Completed),
		zap.Int("recovered", out.Recovered),
		zap.Int("notified", out.Notified),
		zap.Int("deferred", out.Deferred),
		zap.Bool("breaker_tripped", out.BreakerTripped))
	return out, nil
}

// tripBreaker disables screening and sends at most one alert per trip streak.
func (c *coordinator) tripBreaker(ctx context.Context, log *zap.Logger) {
	metrics.BreakerTripsTotal.Inc()
	log.Error("quota breaker tripped, disabling screening", zap.Int("quota_errors", c.Breaker.QuotaErrors()))

	if err := c.Settings.SetScreeningEnabled(ctx, false); err != nil {
		log.Error("disabling screening", zap.Error(err))
	}
	if !c.Breaker.ClaimAlert() || c.Alerter == nil {
		return
	}
	body := fmt.Sprintf("Screening was disabled after %d consecutive quota or rate-limit failures from the scoring service.\n"+
		"Re-enable it with PATCH /api/v1/settings {\"screening_enabled\": true} once quota is available.",
		c.Breaker.QuotaErrors())
	if err := c.Alerter.Alert(ctx, "Applicant screening disabled: scoring quota exhausted", body); err != nil {
		log.Error("sending breaker alert", zap.Error(err))
	}
}

// processRequest scores one request and persists everything it produced in
// one transaction after all of its pairs have returned.
func (c *coordinator) processRequest(ctx context.Context, snap models.Snapshot, jobs []models.JobPosting, req *models.ScreeningRequest) (int, error) {
	log := c.log.With(zap.String("request_id", req.ID.String()), zap.String("candidate_id", req.CandidateID))

	if err := c.Requests.UpdateStatus(ctx, req.ID, models.RequestScoring); err != nil {
		return 0, err
	}

	// a closed applied job resolves to nil; an unreachable ATS fails the request
	// so the next cycle retries it with the applied job
	applied, err := c.JobSync.AppliedJob(ctx, req.AppliedJob(), jobs)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve applied job %s: %w", req.AppliedJob(), err)
	}

	filtered, err := c.Filter.Filter(ctx, FilterInput{
		Resume:        req.ResumeText,
		Jobs:          jobs,
		AppliedJob:    applied,
		Enabled:       snap.SimilarityFilterEnabled,
		Threshold:     snap.SimilarityThreshold,
		SafeguardTopN: snap.SafeguardTopN,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to filter jobs: %w", err)
	}

	outcomes := c.Dispatcher.Dispatch(ctx, DispatchInput{
		RequestID:   req.ID,
		CandidateID: req.CandidateID,
		Resume:      req.ResumeText,
		Pairs:       filtered.Passed,
		Snapshot:    snap,
	})

	if c.Breaker.Tripped() {
		if err := c.Requests.UpdateStatus(ctx, req.ID, models.RequestPending); err != nil {
			return 0, err
		}
		log.Warn("breaker tripped mid-request, discarding partial results", zap.Int("pairs", len(outcomes)))
		return 0, errRequestDeferred
	}

	now := c.Now().UTC()
	results := &repositories.CandidateResults{
		RequestID:      req.ID,
		JobsConsidered: len(filtered.Passed) + len(filtered.Excluded),
		JobsFiltered:   len(filtered.Excluded),
		CompletedAt:    now,
	}
	for _, ex := range filtered.Excluded {
		results.Filtered = append(results.Filtered, models.FilterRecord{
			RequestID:  req.ID,
			JobID:      ex.JobID,
			Similarity: ex.Similarity,
			Threshold:  snap.SimilarityThreshold,
		})
	}
	for _, o := range outcomes {
		m := BuildMatchResult(snap, o)
		m.RequestID = req.ID
		results.Matches = append(results.Matches, m)
		if results.HighestScore == nil || m.FinalScore > *results.HighestScore {
			score := m.FinalScore
			results.HighestScore = &score
		}
		if m.Qualified {
			results.QualifiedCount++
		}
		if o.Escalation != nil {
			results.Escalations = append(results.Escalations, *o.Escalation)
		}
	}

	inserted, err := c.Requests.CompleteWithResults(ctx, results)
	if err != nil {
		return 0, err
	}
	log.Info("request completed",
		zap.Int("matches", inserted),
		zap.Int("filtered", results.JobsFiltered),
		zap.Int("qualified", results.QualifiedCount))

	req.Status = models.RequestCompleted
	notified := c.notify(ctx, req, log)
	c.writeBackNote(ctx, req, results.Matches, jobs, applied, log)
	return notified, nil
}

// BuildMatchResult turns a pair outcome into the row to persist, running the
// gate chain on successful analyses.
func BuildMatchResult(snap models.Snapshot, o PairOutcome) models.MatchResult {
	job := o.Pair.Job
	threshold := snap.ThresholdFor(job.ID)
	m := models.MatchResult{
		JobID:                  job.ID,
		QualificationThreshold: threshold,
		IsAppliedJob:           o.Pair.IsApplied,
		ForceIncluded:          o.Pair.ForceIncluded,
		Similarity:             o.Pair.Similarity,
		Model:                  snap.ScoringModel,
		Escalated:              o.Escalation != nil,
	}

	if o.Err != nil || o.Analysis == nil {
		reason := "no analysis returned"
		if o.Err != nil {
			reason = o.Err.Error()
		}
		m.Failed = true
		m.Summary = "Analysis failed: " + logger.TruncateForLog(reason, maxFailureSummary)
		m.Evidence = datatypes.NewJSONType(models.Evidence{})
		return m
	}

	a := o.Analysis
	res := gates.Apply(gates.Input{Analysis: *a, Verification: o.Verification})
	for _, g := range res.Applied {
		metrics.GateAdjustmentsTotal.WithLabelValues(string(g)).Inc()
	}

	if a.Model != "" {
		m.Model = a.Model
	}
	m.RawScore = res.RawScore
	m.FinalScore = res.FinalScore
	m.Qualified = res.FinalScore >= threshold
	m.Summary = a.Summary
	m.Gaps = res.Gaps
	m.Evidence = datatypes.NewJSONType(models.Evidence{
		MatchedSkills:     a.MatchedSkills,
		MatchedExperience: a.MatchedExperience,
		YearsAnalysis:     a.YearsAnalysis,
		Recency:           a.Recency,
		Experience:        a.Experience,
		AppliedGates:      res.AppliedNames(),
		YearsVerified:     o.Verification != nil,
		YearsOverturned:   res.YearsOverturned,
	})
	return m
}

// notify sends one notification bundling every qualified match not yet
// notified, then flags them so a later cycle does not repeat them.
func (c *coordinator) notify(ctx context.Context, req *models.ScreeningRequest, log *zap.Logger) int {
	if c.Notifier == nil {
		return 0
	}
	qualified, err := c.Matches.FindQualifiedUnnotified(ctx, req.ID)
	if err != nil {
		log.Error("loading qualified matches", zap.Error(err))
		return 0
	}
	if len(qualified) == 0 {
		return 0
	}

	n := QualifiedNotification{
		RequestID:      req.ID.String(),
		CandidateID:    req.CandidateID,
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
		AppliedJobID:   req.AppliedJob(),
		SentAt:         c.Now().UTC(),
	}
	ids := make([]uuid.UUID, 0, len(qualified))
	for _, m := range qualified {
		n.Matches = append(n.Matches, QualifiedMatch{
			JobID:        m.JobID,
			FinalScore:   m.FinalScore,
			Threshold:    m.QualificationThreshold,
			IsAppliedJob: m.IsAppliedJob,
			Summary:      m.Summary,
		})
		ids = append(ids, m.ID)
	}

	if err := c.Notifier.NotifyQualified(ctx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		log.Error("sending qualified notification", zap.Error(err))
		return 0
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()

	if err := c.Matches.MarkNotified(ctx, ids); err != nil {
		log.Error("marking matches notified", zap.Error(err))
	}
	return 1
}

func noteMarker(requestID string) string {
	return "[screening:" + requestID + "]"
}

// writeBackNote posts the screening summary to the ATS unless a note for this
// request already exists, then soft-deletes older screening notes for the
// same job.
func (c *coordinator) writeBackNote(ctx context.Context, req *models.ScreeningRequest, matches []models.MatchResult, jobs []models.JobPosting, applied *models.JobPosting, log *zap.Logger) {
	if c.ATS == nil {
		return
	}
	notes, err := c.ATS.FetchNotes(ctx, req.CandidateID, c.NoteAction)
	if err != nil {
		log.Warn("fetching screening notes", zap.Error(err))
		return
	}

	marker := noteMarker(req.ID.String())
	for _, n := range notes {
		if !n.Deleted && strings.Contains(n.Body, marker) {
			log.Debug("screening note already present")
			return
		}
	}

	titles := make(map[string]string, len(jobs)+1)
	for _, j := range jobs {
		titles[j.ID] = j.Title
	}
	if applied != nil {
		titles[applied.ID] = applied.Title
	}

	created, err := c.ATS.CreateNote(ctx, req.CandidateID, NewNote{
		Action: c.NoteAction,
		Body:   FormatScreeningNote(marker, matches, titles),
		JobID:  req.AppliedJob(),
	})
	if err != nil {
		log.Warn("creating screening note", zap.Error(err))
		return
	}

	for _, n := range notes {
		if n.Deleted || n.JobID != req.AppliedJob() || (created != nil && n.ID == created.ID) {
			continue
		}
		if err := c.ATS.SoftDeleteNote(ctx, n.ID); err != nil {
			log.Warn("removing superseded note", zap.String("note_id", n.ID), zap.Error(err))
		}
	}
}

// FormatScreeningNote renders the matches best first, applied job flagged.
func FormatScreeningNote(marker string, matches []models.MatchResult, titles map[string]string) string {
	sorted := make([]models.MatchResult, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].FinalScore != sorted[j].FinalScore {
			return sorted[i].FinalScore > sorted[j].FinalScore
		}
		return sorted[i].JobID < sorted[j].JobID
	})

	var b strings.Builder
	b.WriteString("AI screening results ")
	b.WriteString(marker)
	b.WriteString("\n")
	if len(sorted) == 0 {
		b.WriteString("No open positions were scored.\n")
	}
	for _, m := range sorted {
		title := titles[m.JobID]
		if title == "" {
			title = m.JobID
		}
		status := "not qualified"
		switch {
		case m.Failed:
			status = "analysis failed"
		case m.Qualified:
			status = "qualified"
		}
		fmt.Fprintf(&b, "- %s: %d/100 (threshold %d, %s)", title, m.FinalScore, m.QualificationThreshold, status)
		if m.IsAppliedJob {
			b.WriteString(" [applied]")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
