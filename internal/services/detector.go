package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/logger"
	"alfredoptarigan/applicant-screener/internal/models"
	"alfredoptarigan/applicant-screener/internal/repositories"
)

const (
	DedupWindow       = 24 * time.Hour
	RepeatWindow      = 7 * 24 * time.Hour
	RepeatLimit       = 3
	DetectionLookback = 48 * time.Hour
	// applications fetched per unit of batch size, to leave room for skips
	fetchFactor = 4
)

type Detector interface {
	// Detect returns the requests to score this cycle: leftovers still
	// pending from earlier cycles first, then new applications.
	Detect(ctx context.Context, snap models.Snapshot, now time.Time) ([]models.ScreeningRequest, error)
}

type detector struct {
	ats            ATSClient
	requests       repositories.ScreeningRequestRepository
	resumes        ResumeParser
	maxResumeRunes int
	log            *zap.Logger
}

func NewDetector(ats ATSClient, requests repositories.ScreeningRequestRepository, resumes ResumeParser, maxResumeRunes int, log *zap.Logger) Detector {
	if maxResumeRunes <= 0 {
		maxResumeRunes = DefaultMaxResumeRunes
	}
	return &detector{
		ats:            ats,
		requests:       requests,
		resumes:        resumes,
		maxResumeRunes: maxResumeRunes,
		log:            logger.OrNop(log).With(zap.String("component", "detector")),
	}
}

func (d *detector) Detect(ctx context.Context, snap models.Snapshot, now time.Time) ([]models.ScreeningRequest, error) {
	pending, err := d.requests.FindPending(ctx, snap.BatchSize)
	if err != nil {
		return nil, err
	}
	queue := pending
	seen := make(map[uuid.UUID]bool, len(pending))
	for _, r := range pending {
		seen[r.ID] = true
	}
	if len(queue) >= snap.BatchSize {
		return queue, nil
	}

	since := now.Add(-DetectionLookback)
	if snap.BacklogCutoff != nil && snap.BacklogCutoff.After(since) {
		since = *snap.BacklogCutoff
	}
	apps, err := d.ats.FetchRecentApplications(ctx, since, snap.BatchSize*fetchFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to detect applications: %w", err)
	}

	for _, app := range apps {
		if len(queue) >= snap.BatchSize {
			break
		}
		log := d.log.With(
			zap.String("application_id", app.ID),
			zap.String("candidate_id", app.CandidateID),
			zap.String("job_id", app.JobID))

		if snap.BacklogCutoff != nil && app.AppliedAt.Before(*snap.BacklogCutoff) {
			log.Debug("skipping backlog application")
			continue
		}

		req, err := d.admit(ctx, app, now, log)
		if err != nil {
			log.Warn("application not admitted", zap.Error(err))
			continue
		}
		if req == nil || seen[req.ID] {
			continue
		}
		seen[req.ID] = true
		queue = append(queue, *req)
	}

	d.log.Info("detection finished",
		zap.Int("pending", len(pending)),
		zap.Int("fetched", len(apps)),
		zap.Int("queued", len(queue)))
	return queue, nil
}

// admit returns the request to score for the application, or nil when it is
// skipped.
func (d *detector) admit(ctx context.Context, app Application, now time.Time, log *zap.Logger) (*models.ScreeningRequest, error) {
	existing, err := d.requests.FindByOriginatingRecord(ctx, app.ID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Status == models.RequestCompleted {
			return nil, nil
		}
		if err := d.snapshotCandidate(ctx, existing); err != nil {
			return nil, err
		}
		if err := d.requests.Reset(ctx, existing); err != nil {
			return nil, err
		}
		existing.Status = models.RequestPending
		log.Info("existing request reset", zap.String("request_id", existing.ID.String()))
		return existing, nil
	}

	active, err := d.requests.HasActiveForPair(ctx, app.CandidateID, app.JobID, now.Add(-DedupWindow))
	if err != nil {
		return nil, err
	}
	if active {
		log.Debug("skipping: same job screened within 24h")
		return nil, nil
	}
	count, err := d.requests.CountForPair(ctx, app.CandidateID, app.JobID, now.Add(-RepeatWindow))
	if err != nil {
		return nil, err
	}
	if count >= RepeatLimit {
		log.Info("skipping: repeated applications to the same job", zap.Int64("recent", count))
		return nil, nil
	}

	req := &models.ScreeningRequest{
		CandidateID:         app.CandidateID,
		OriginatingRecordID: app.ID,
		Status:              models.RequestPending,
		AppliedAt:           app.AppliedAt,
	}
	if app.JobID != "" {
		jobID := app.JobID
		req.AppliedJobID = &jobID
	}
	if err := d.snapshotCandidate(ctx, req); err != nil {
		return nil, err
	}
	if err := d.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	log.Info("screening request created", zap.String("request_id", req.ID.String()))
	return req, nil
}

// snapshotCandidate copies the candidate's current details and resume text
// into the request. Parsed ATS text wins over the PDF attachment.
func (d *detector) snapshotCandidate(ctx context.Context, req *models.ScreeningRequest) error {
	cand, err := d.ats.FetchCandidate(ctx, req.CandidateID)
	if err != nil {
		return err
	}
	req.CandidateName = cand.Name
	req.CandidateEmail = cand.Email

	text := CleanText(cand.ResumeText)
	if text == "" && cand.ResumeAttachmentID != "" && d.resumes != nil {
		data, err := d.ats.DownloadAttachment(ctx, cand.ResumeAttachmentID)
		if err != nil {
			return err
		}
		if text, err = d.resumes.ExtractText(data); err != nil {
			return fmt.Errorf("failed to extract resume: %w", err)
		}
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyResume
	}
	req.ResumeText = BoundResume(text, d.maxResumeRunes)
	return nil
}
