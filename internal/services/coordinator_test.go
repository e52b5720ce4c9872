package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"alfredoptarigan/applicant-screener/internal/models"
	"alfredoptarigan/applicant-screener/internal/repositories"
	"alfredoptarigan/applicant-screener/internal/testutil"
)

type cycleFixture struct {
	ats         *fakeATS
	scorer      *fakeScorer
	notifier    *fakeNotifier
	alerter     *fakeAlerter
	breaker     *QuotaBreaker
	settings    repositories.SettingsRepository
	requests    repositories.ScreeningRequestRepository
	matches     repositories.MatchResultRepository
	lock        repositories.CycleLockRepository
	coordinator Coordinator
}

func newCycleFixture(t *testing.T, scorer *fakeScorer) *cycleFixture {
	t.Helper()
	db := testutil.NewDB(t)
	ctx := context.Background()

	f := &cycleFixture{
		ats:      newFakeATS(),
		scorer:   scorer,
		notifier: &fakeNotifier{},
		alerter:  &fakeAlerter{},
		breaker:  NewQuotaBreaker(2),
		settings: repositories.NewSettingsRepository(db),
		requests: repositories.NewScreeningRequestRepository(db),
		matches:  repositories.NewMatchResultRepository(db),
		lock:     repositories.NewCycleLockRepository(db, 5*time.Minute),
	}
	require.NoError(t, f.settings.EnsureSeeded(ctx, models.ScreeningSettings{
		ScreeningEnabled:       true,
		QualificationThreshold: 70,
		JobThresholds:          datatypes.NewJSONType(map[string]int{"j2": 35}),
		SimilarityThreshold:    0.3,
		ScoringModel:           "flash",
		EscalationModel:        "flash",
		BatchSize:              10,
		SafeguardTopN:          3,
	}))

	f.ats.jobs = []ATSJob{
		{ID: "j1", Title: "Backend Engineer", Description: "Go services", Status: "open"},
		{ID: "j2", Title: "Support Engineer", Description: "Customer support", Status: "open"},
	}
	f.ats.candidates["c1"] = &Candidate{ID: "c1", Name: "Ada", Email: "ada@example.com", ResumeText: "Go engineer"}
	f.ats.candidates["c2"] = &Candidate{ID: "c2", Name: "Lin", ResumeText: "Support lead"}

	jobs := repositories.NewJobRepository(db)
	emb := newFakeEmbedder(nil)
	cache := NewJobEmbeddingCache(newMemEmbeddingStore(), emb, nil)

	f.coordinator = NewCoordinator(CoordinatorDeps{
		Locker:     f.lock,
		Settings:   f.settings,
		Requests:   f.requests,
		Matches:    f.matches,
		Sweeps:     DefaultSweeps(f.requests, nil),
		Detector:   NewDetector(f.ats, f.requests, nil, 0, nil),
		JobSync:    NewJobSync(f.ats, jobs, cache, nil),
		Filter:     NewSimilarityFilter(emb, cache, nil),
		Dispatcher: NewDispatcher(scorer, f.breaker, 1, nil),
		Breaker:    f.breaker,
		Notifier:   f.notifier,
		Alerter:    f.alerter,
		ATS:        f.ats,
	}, nil)
	return f
}

func (f *cycleFixture) apply(id, candidate, jobID string) {
	f.ats.mu.Lock()
	defer f.ats.mu.Unlock()
	f.ats.applications = append(f.ats.applications, Application{
		ID: id, CandidateID: candidate, JobID: jobID, AppliedAt: time.Now().UTC().Add(-time.Minute),
	})
}

func scoreByJob(scores map[string]int) func(*models.JobPosting, string) (*models.Analysis, error) {
	return func(job *models.JobPosting, _ string) (*models.Analysis, error) {
		return analysisWithScore(scores[job.ID]), nil
	}
}

func TestRunCycleScoresNotifiesAndWritesBack(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(t, &fakeScorer{analyze: scoreByJob(map[string]int{"j1": 85, "j2": 40})})
	f.apply("app-1", "c1", "j1")

	out, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, out.Status)
	assert.Equal(t, 1, out.Requests)
	assert.Equal(t, 1, out.Completed)
	assert.Equal(t, 1, out.Notified)
	assert.Empty(t, out.Errors)

	req, err := f.requests.FindByOriginatingRecord(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, req.Status)
	require.NotNil(t, req.HighestScore)
	assert.Equal(t, 85, *req.HighestScore)
	assert.Equal(t, 2, req.QualifiedCount, "j2 has its own lower threshold")
	assert.Equal(t, 2, req.JobsConsidered)

	ms, err := f.matches.FindByRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	byJob := map[string]models.MatchResult{}
	for _, m := range ms {
		byJob[m.JobID] = m
	}
	assert.True(t, byJob["j1"].IsAppliedJob)
	assert.Equal(t, 70, byJob["j1"].QualificationThreshold)
	assert.Equal(t, 35, byJob["j2"].QualificationThreshold)
	assert.True(t, byJob["j1"].NotificationSent)

	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, "c1", sent.CandidateID)
	assert.Equal(t, "j1", sent.AppliedJobID)
	assert.Len(t, sent.Matches, 2)

	require.Len(t, f.ats.created, 1)
	note := f.ats.created[0]
	assert.Equal(t, "AI Screening", note.Action)
	assert.Equal(t, "j1", note.JobID)
	assert.Contains(t, note.Body, "[screening:"+req.ID.String()+"]")
	assert.Contains(t, note.Body, "Backend Engineer: 85/100")
	assert.Less(t, strings.Index(note.Body, "Backend Engineer"), strings.Index(note.Body, "Support Engineer"))

	// the lock is free again
	status, err := f.lock.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.InProgress)

	// a second cycle sees the same application and does nothing
	out, err = f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Requests)
	assert.Len(t, f.notifier.sent, 1)
	assert.Len(t, f.ats.created, 1)
	assert.Len(t, f.scorer.analyzedCalls(), 2)
}

func TestRunCycleSkipsWhenDisabled(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(t, &fakeScorer{analyze: scoreByJob(nil)})
	require.NoError(t, f.settings.SetScreeningEnabled(ctx, false))
	f.apply("app-1", "c1", "j1")

	out, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedDisabled, out.Status)

	_, err = f.requests.FindByOriginatingRecord(ctx, "app-1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRunCycleIsExclusive(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	scorer := &fakeScorer{analyze: func(*models.JobPosting, string) (*models.Analysis, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return analysisWithScore(50), nil
	}}
	f := newCycleFixture(t, scorer)
	f.apply("app-1", "c1", "j1")

	done := make(chan Outcome, 1)
	go func() {
		out, _ := f.coordinator.RunCycle(ctx)
		done <- out
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never started scoring")
	}

	second, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyRunning, second.Status)

	close(release)
	first := <-done
	assert.Equal(t, OutcomeRan, first.Status)

	third, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, third.Status)
}

func TestRunCycleTripsBreakerOnQuotaErrors(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(t, &fakeScorer{analyze: func(*models.JobPosting, string) (*models.Analysis, error) {
		return nil, errQuota
	}})
	f.apply("app-1", "c1", "j1")
	f.apply("app-2", "c2", "j2")

	out, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, out.Status)
	assert.True(t, out.BreakerTripped)
	assert.Equal(t, 2, out.Requests)
	assert.Equal(t, 0, out.Completed)
	assert.Equal(t, 1, out.Deferred, "the cycle stops after the breaker trips")
	assert.Equal(t, 1, f.alerter.count())

	settings, err := f.settings.Get(ctx)
	require.NoError(t, err)
	assert.False(t, settings.ScreeningEnabled)

	for _, record := range []string{"app-1", "app-2"} {
		req, err := f.requests.FindByOriginatingRecord(ctx, record)
		require.NoError(t, err)
		assert.Equal(t, models.RequestPending, req.Status, record)
		ms, err := f.matches.FindByRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Empty(t, ms, record)
	}
	assert.Empty(t, f.notifier.sent)

	// re-enabled while quota is still exhausted: trips again, no second alert
	_, err = f.settings.Patch(ctx, models.SettingsPatch{ScreeningEnabled: boolPtr(true)})
	require.NoError(t, err)
	out, err = f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, out.BreakerTripped)
	assert.Equal(t, 1, f.alerter.count())
}

func TestRunCycleRescoresRequestCutShortByBreaker(t *testing.T) {
	ctx := context.Background()
	scorer := &fakeScorer{}
	f := newCycleFixture(t, scorer)
	f.ats.jobs = append(f.ats.jobs,
		ATSJob{ID: "j3", Title: "Platform Engineer", Description: "Go services", Status: "open"},
		ATSJob{ID: "j4", Title: "Data Engineer", Description: "Go services", Status: "open"},
		ATSJob{ID: "j5", Title: "SRE", Description: "Go services", Status: "open"},
	)
	f.apply("app-1", "c1", "j1")

	// j1 scores, then every other pair hits the quota until the breaker trips
	scorer.analyze = func(job *models.JobPosting, _ string) (*models.Analysis, error) {
		if job.ID == "j1" {
			return analysisWithScore(80), nil
		}
		return nil, errQuota
	}
	out, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, out.BreakerTripped)
	assert.Equal(t, 1, out.Deferred)

	req, err := f.requests.FindByOriginatingRecord(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Nil(t, req.HighestScore)
	ms, err := f.matches.FindByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, ms, "partial results are not persisted")
	assert.Empty(t, f.notifier.sent)
	assert.Empty(t, f.ats.created)

	// quota is back and screening re-enabled: the request is scored in full
	scorer.analyze = scoreByJob(map[string]int{"j1": 80, "j2": 20, "j3": 30, "j4": 30, "j5": 30})
	_, err = f.settings.Patch(ctx, models.SettingsPatch{ScreeningEnabled: boolPtr(true)})
	require.NoError(t, err)

	out, err = f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.False(t, out.BreakerTripped)
	assert.Equal(t, 1, out.Completed)

	req, err = f.requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, req.Status)
	ms, err = f.matches.FindByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, ms, 5)
	for _, m := range ms {
		assert.False(t, m.Failed, m.JobID)
	}
}

func TestRunCycleFailsRequestWhenAppliedJobUnreachable(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(t, &fakeScorer{analyze: scoreByJob(map[string]int{"j1": 30, "j2": 20, "j9": 75})})
	f.ats.jobErr = errors.New("ats timeout")
	f.apply("app-1", "c1", "j9")

	out, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Completed)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "ats timeout")
	assert.Empty(t, f.scorer.analyzedCalls(), "nothing is scored without the applied job")

	req, err := f.requests.FindByOriginatingRecord(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestFailed, req.Status)

	// the ATS recovers: the failed request is picked up again and includes j9
	f.ats.mu.Lock()
	f.ats.jobErr = nil
	f.ats.job["j9"] = &ATSJob{ID: "j9", Title: "Staff Engineer", Description: "Go platform", Status: "open"}
	f.ats.mu.Unlock()

	out, err = f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Requests)
	assert.Equal(t, 1, out.Completed)

	req, err = f.requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, req.Status)
	ms, err := f.matches.FindByRequest(ctx, req.ID)
	require.NoError(t, err)
	var applied *models.MatchResult
	for i := range ms {
		if ms[i].JobID == "j9" {
			applied = &ms[i]
		}
	}
	require.NotNil(t, applied)
	assert.True(t, applied.IsAppliedJob)
	assert.Equal(t, 75, applied.FinalScore)
}

func TestRunCycleSupersedesOlderNotes(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(t, &fakeScorer{analyze: scoreByJob(map[string]int{"j1": 30, "j2": 20})})
	f.ats.notes["c1"] = []Note{
		{ID: "old-j1", Action: "AI Screening", Body: "AI screening results [screening:previous]", JobID: "j1"},
		{ID: "old-j2", Action: "AI Screening", Body: "AI screening results [screening:other]", JobID: "j2"},
		{ID: "manual", Action: "Phone Screen", Body: "Called, no answer", JobID: "j1"},
	}
	f.apply("app-1", "c1", "j1")

	out, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Notified)

	require.Len(t, f.ats.created, 1)
	assert.Equal(t, []string{"old-j1"}, f.ats.deleted)
}

func TestFormatScreeningNote(t *testing.T) {
	note := FormatScreeningNote("[screening:r1]", []models.MatchResult{
		{JobID: "j2", FinalScore: 40, QualificationThreshold: 70},
		{JobID: "j1", FinalScore: 82, QualificationThreshold: 70, Qualified: true, IsAppliedJob: true},
		{JobID: "j3", Failed: true, QualificationThreshold: 70},
	}, map[string]string{"j1": "Backend"})

	lines := strings.Split(note, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "AI screening results [screening:r1]", lines[0])
	assert.Equal(t, "- Backend: 82/100 (threshold 70, qualified) [applied]", lines[1])
	assert.Equal(t, "- j2: 40/100 (threshold 70, not qualified)", lines[2])
	assert.Equal(t, "- j3: 0/100 (threshold 70, analysis failed)", lines[3])
}

func boolPtr(b bool) *bool { return &b }
