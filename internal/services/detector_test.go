package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/applicant-screener/internal/models"
	"alfredoptarigan/applicant-screener/internal/repositories"
	"alfredoptarigan/applicant-screener/internal/testutil"
)

func detectorFixture(t *testing.T) (*fakeATS, repositories.ScreeningRequestRepository, Detector) {
	t.Helper()
	ats := newFakeATS()
	ats.candidates["c1"] = &Candidate{ID: "c1", Name: "Ada", Email: "ada@example.com", ResumeText: "  Go   engineer\n\n\n\nPostgres  "}
	ats.candidates["c2"] = &Candidate{ID: "c2", Name: "Lin", ResumeAttachmentID: "att-2"}
	ats.candidates["c3"] = &Candidate{ID: "c3", Name: "Blank"}
	ats.attachments["att-2"] = []byte("%PDF")

	repo := repositories.NewScreeningRequestRepository(testutil.NewDB(t))
	d := NewDetector(ats, repo, &fakeResumeParser{text: "Parsed from PDF"}, 0, nil)
	return ats, repo, d
}

func detectSnapshot(batch int) models.Snapshot {
	return models.Snapshot{ScreeningEnabled: true, BatchSize: batch}
}

func TestDetectCreatesRequestsWithResumeSnapshot(t *testing.T) {
	ats, repo, d := detectorFixture(t)
	now := time.Now().UTC()
	ats.applications = []Application{
		{ID: "app-1", CandidateID: "c1", JobID: "j1", AppliedAt: now.Add(-time.Hour)},
		{ID: "app-2", CandidateID: "c2", JobID: "j2", AppliedAt: now.Add(-time.Hour)},
		{ID: "app-3", CandidateID: "c3", JobID: "j3", AppliedAt: now.Add(-time.Hour)},
		{ID: "app-4", CandidateID: "c1", JobID: "j4", AppliedAt: now.Add(-72 * time.Hour)},
	}

	queue, err := d.Detect(context.Background(), detectSnapshot(10), now)
	require.NoError(t, err)
	require.Len(t, queue, 2, "blank resume and out-of-window applications are not admitted")

	assert.Equal(t, "app-1", queue[0].OriginatingRecordID)
	assert.Equal(t, "Ada", queue[0].CandidateName)
	assert.Equal(t, "j1", queue[0].AppliedJob())
	assert.Equal(t, models.RequestPending, queue[0].Status)
	assert.NotContains(t, queue[0].ResumeText, "\n\n\n")
	assert.True(t, strings.HasPrefix(queue[0].ResumeText, "Go"))

	assert.Equal(t, "Parsed from PDF", queue[1].ResumeText)

	_, err = repo.FindByOriginatingRecord(context.Background(), "app-3")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestDetectDedup(t *testing.T) {
	ats, repo, d := detectorFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	j1, j2 := "j1", "j2"

	// completed within 24h for (c1, j1)
	require.NoError(t, repo.Create(ctx, &models.ScreeningRequest{
		CandidateID: "c1", AppliedJobID: &j1, OriginatingRecordID: "old-1", Status: models.RequestCompleted,
	}))
	// three failed attempts this week for (c1, j2)
	for _, id := range []string{"f-1", "f-2", "f-3"} {
		require.NoError(t, repo.Create(ctx, &models.ScreeningRequest{
			CandidateID: "c1", AppliedJobID: &j2, OriginatingRecordID: id, Status: models.RequestFailed,
		}))
	}

	ats.applications = []Application{
		{ID: "app-1", CandidateID: "c1", JobID: "j1", AppliedAt: now.Add(-time.Minute)},
		{ID: "app-2", CandidateID: "c1", JobID: "j2", AppliedAt: now.Add(-time.Minute)},
		{ID: "app-3", CandidateID: "c1", JobID: "j3", AppliedAt: now.Add(-time.Minute)},
		{ID: "app-3", CandidateID: "c1", JobID: "j3", AppliedAt: now.Add(-time.Minute)},
	}

	queue, err := d.Detect(ctx, detectSnapshot(10), now)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "app-3", queue[0].OriginatingRecordID)

	// a second pass finds the pending request and admits nothing new
	queue, err = d.Detect(ctx, detectSnapshot(10), now)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "app-3", queue[0].OriginatingRecordID)
}

func TestDetectResetsFailedRequestForSameApplication(t *testing.T) {
	ats, repo, d := detectorFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	j1 := "j1"

	failed := &models.ScreeningRequest{
		CandidateID: "c1", AppliedJobID: &j1, OriginatingRecordID: "app-1", Status: models.RequestFailed,
	}
	require.NoError(t, repo.Create(ctx, failed))
	require.NoError(t, repo.UpdateError(ctx, failed.ID, "ats timeout"))

	ats.applications = []Application{{ID: "app-1", CandidateID: "c1", JobID: "j1", AppliedAt: now.Add(-time.Minute)}}

	queue, err := d.Detect(ctx, detectSnapshot(10), now)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, failed.ID, queue[0].ID)

	stored, err := repo.FindByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
	assert.Nil(t, stored.ErrorMessage)
	assert.Contains(t, stored.ResumeText, "Go")
}

func TestDetectRespectsBatchSizeAndBacklogCutoff(t *testing.T) {
	ats, repo, d := detectorFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &models.ScreeningRequest{
		CandidateID: "c9", OriginatingRecordID: "leftover", Status: models.RequestPending, ResumeText: "resume",
	}))

	cutoff := now.Add(-2 * time.Hour)
	ats.applications = []Application{
		{ID: "backlog", CandidateID: "c1", JobID: "j1", AppliedAt: now.Add(-3 * time.Hour)},
		{ID: "new-1", CandidateID: "c1", JobID: "j2", AppliedAt: now.Add(-time.Hour)},
		{ID: "new-2", CandidateID: "c1", JobID: "j3", AppliedAt: now.Add(-time.Hour)},
	}
	snap := detectSnapshot(2)
	snap.BacklogCutoff = &cutoff

	queue, err := d.Detect(ctx, snap, now)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "leftover", queue[0].OriginatingRecordID, "pending requests go first")
	assert.Equal(t, "new-1", queue[1].OriginatingRecordID)

	_, err = repo.FindByOriginatingRecord(ctx, "backlog")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
