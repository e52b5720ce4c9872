package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/applicant-screener/internal/models"
)

var ErrNotFound = errors.New("record not found")

type ScreeningRequestRepository interface {
	Create(ctx context.Context, req *models.ScreeningRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ScreeningRequest, error)
	FindByOriginatingRecord(ctx context.Context, recordID string) (*models.ScreeningRequest, error)
	Reset(ctx context.Context, req *models.ScreeningRequest) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) error
	UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error
	FindPending(ctx context.Context, limit int) ([]models.ScreeningRequest, error)
	HasActiveForPair(ctx context.Context, candidateID, jobID string, since time.Time) (bool, error)
	CountForPair(ctx context.Context, candidateID, jobID string, since time.Time) (int64, error)
	CompleteWithResults(ctx context.Context, batch *CandidateResults) (int, error)
	FindZeroScoreCompleted(ctx context.Context, before time.Time, maxRequeues, limit int) ([]models.ScreeningRequest, error)
	FindStuckScoring(ctx context.Context, before time.Time, maxRequeues, limit int) ([]models.ScreeningRequest, error)
	Requeue(ctx context.Context, req *models.ScreeningRequest) (*models.ScreeningRequest, error)
}

// CandidateResults is everything produced for one request in a cycle. It is
// written in a single transaction so the request summary never reflects a
// partial analysis.
type CandidateResults struct {
	RequestID      uuid.UUID
	Matches        []models.MatchResult
	Filtered       []models.FilterRecord
	Escalations    []models.EscalationRecord
	HighestScore   *int
	QualifiedCount int
	JobsConsidered int
	JobsFiltered   int
	CompletedAt    time.Time
}

type screeningRequestRepository struct {
	db *gorm.DB
}

func NewScreeningRequestRepository(db *gorm.DB) ScreeningRequestRepository {
	return &screeningRequestRepository{db: db}
}

func (r *screeningRequestRepository) Create(ctx context.Context, req *models.ScreeningRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create screening request: %w", err)
	}
	return nil
}

func (r *screeningRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.ScreeningRequest, error) {
	var req models.ScreeningRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("screening request %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find screening request: %w", err)
	}
	return &req, nil
}

func (r *screeningRequestRepository) FindByOriginatingRecord(ctx context.Context, recordID string) (*models.ScreeningRequest, error) {
	var req models.ScreeningRequest
	if err := r.db.WithContext(ctx).Where("originating_record_id = ?", recordID).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("screening request for record %s: %w", recordID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find screening request: %w", err)
	}
	return &req, nil
}

// Reset returns a non-completed request to pending with a fresh resume
// snapshot, dropping any partial children.
func (r *screeningRequestRepository) Reset(ctx context.Context, req *models.ScreeningRequest) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, req.ID); err != nil {
			return err
		}
		result := tx.Model(&models.ScreeningRequest{}).
			Where("id = ? AND status <> ?", req.ID, models.RequestCompleted).
			Updates(map[string]interface{}{
				"status":          models.RequestPending,
				"resume_text":     req.ResumeText,
				"candidate_name":  req.CandidateName,
				"candidate_email": req.CandidateEmail,
				"applied_job_id":  req.AppliedJobID,
				"error_message":   nil,
				"updated_at":      time.Now().UTC(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to reset screening request: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("screening request %s not resettable: %w", req.ID, ErrNotFound)
		}
		return nil
	})
}

func (r *screeningRequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) error {
	result := r.db.WithContext(ctx).Model(&models.ScreeningRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("screening request %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *screeningRequestRepository) UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error {
	result := r.db.WithContext(ctx).Model(&models.ScreeningRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.RequestFailed,
			"error_message": errorMsg,
			"updated_at":    time.Now().UTC(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update error: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("screening request %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *screeningRequestRepository) FindPending(ctx context.Context, limit int) ([]models.ScreeningRequest, error) {
	var reqs []models.ScreeningRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", models.RequestPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending requests: %w", err)
	}
	return reqs, nil
}

func pairScope(candidateID, jobID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("candidate_id = ?", candidateID)
		if jobID == "" {
			return db.Where("applied_job_id IS NULL")
		}
		return db.Where("applied_job_id = ?", jobID)
	}
}

// HasActiveForPair reports a completed or in-flight request for the
// (candidate, job) pair created at or after since.
func (r *screeningRequestRepository) HasActiveForPair(ctx context.Context, candidateID, jobID string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ScreeningRequest{}).
		Scopes(pairScope(candidateID, jobID)).
		Where("status IN ?", []models.RequestStatus{models.RequestCompleted, models.RequestPending, models.RequestScoring}).
		Where("created_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check recent requests: %w", err)
	}
	return count > 0, nil
}

func (r *screeningRequestRepository) CountForPair(ctx context.Context, candidateID, jobID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ScreeningRequest{}).
		Scopes(pairScope(candidateID, jobID)).
		Where("created_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count recent requests: %w", err)
	}
	return count, nil
}

// CompleteWithResults inserts matches (skipping pairs that already have one),
// audit records and the request summary, then marks the request completed.
// It returns how many matches were newly inserted.
func (r *screeningRequestRepository) CompleteWithResults(ctx context.Context, batch *CandidateResults) (int, error) {
	inserted := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range batch.Matches {
			m := &batch.Matches[i]
			m.RequestID = batch.RequestID
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "request_id"}, {Name: "job_id"}},
				DoNothing: true,
			}).Create(m)
			if res.Error != nil {
				return fmt.Errorf("failed to insert match result: %w", res.Error)
			}
			inserted += int(res.RowsAffected)
		}
		if len(batch.Filtered) > 0 {
			if err := tx.Create(&batch.Filtered).Error; err != nil {
				return fmt.Errorf("failed to insert filter records: %w", err)
			}
		}
		if len(batch.Escalations) > 0 {
			if err := tx.Create(&batch.Escalations).Error; err != nil {
				return fmt.Errorf("failed to insert escalation records: %w", err)
			}
		}

		result := tx.Model(&models.ScreeningRequest{}).
			Where("id = ?", batch.RequestID).
			Updates(map[string]interface{}{
				"status":          models.RequestCompleted,
				"highest_score":   batch.HighestScore,
				"qualified_count": batch.QualifiedCount,
				"jobs_considered": batch.JobsConsidered,
				"jobs_filtered":   batch.JobsFiltered,
				"completed_at":    batch.CompletedAt,
				"updated_at":      batch.CompletedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to complete screening request: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("screening request %s: %w", batch.RequestID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *screeningRequestRepository) FindZeroScoreCompleted(ctx context.Context, before time.Time, maxRequeues, limit int) ([]models.ScreeningRequest, error) {
	var reqs []models.ScreeningRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ? AND requeue_count < ?", models.RequestCompleted, before, maxRequeues).
		Where("EXISTS (SELECT 1 FROM match_results m WHERE m.request_id = screening_requests.id)").
		Where("NOT EXISTS (SELECT 1 FROM match_results m WHERE m.request_id = screening_requests.id AND m.raw_score <> 0)").
		Order("updated_at ASC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find zero-score requests: %w", err)
	}
	return reqs, nil
}

func (r *screeningRequestRepository) FindStuckScoring(ctx context.Context, before time.Time, maxRequeues, limit int) ([]models.ScreeningRequest, error) {
	var reqs []models.ScreeningRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ? AND requeue_count < ?", models.RequestScoring, before, maxRequeues).
		Where("NOT EXISTS (SELECT 1 FROM match_results m WHERE m.request_id = screening_requests.id)").
		Order("updated_at ASC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stuck requests: %w", err)
	}
	return reqs, nil
}

// Requeue deletes the request with its children and creates a fresh pending
// request for the same application event.
func (r *screeningRequestRepository) Requeue(ctx context.Context, req *models.ScreeningRequest) (*models.ScreeningRequest, error) {
	fresh := &models.ScreeningRequest{
		CandidateID:         req.CandidateID,
		CandidateName:       req.CandidateName,
		CandidateEmail:      req.CandidateEmail,
		ResumeText:          req.ResumeText,
		AppliedJobID:        req.AppliedJobID,
		OriginatingRecordID: req.OriginatingRecordID,
		Status:              models.RequestPending,
		RequeueCount:        req.RequeueCount + 1,
		AppliedAt:           req.AppliedAt,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, req.ID); err != nil {
			return err
		}
		if err := tx.Where("id = ?", req.ID).Delete(&models.ScreeningRequest{}).Error; err != nil {
			return fmt.Errorf("failed to delete screening request: %w", err)
		}
		if err := tx.Create(fresh).Error; err != nil {
			return fmt.Errorf("failed to requeue screening request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func deleteChildren(tx *gorm.DB, requestID uuid.UUID) error {
	for _, child := range []interface{}{&models.MatchResult{}, &models.FilterRecord{}, &models.EscalationRecord{}} {
		if err := tx.Where("request_id = ?", requestID).Delete(child).Error; err != nil {
			return fmt.Errorf("failed to delete child records: %w", err)
		}
	}
	return nil
}
