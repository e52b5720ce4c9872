package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"alfredoptarigan/applicant-screener/internal/models"
)

type JobRepository interface {
	// Upsert stores the posting and reports whether its description hash changed.
	Upsert(ctx context.Context, job *models.JobPosting) (bool, error)
	FindByID(ctx context.Context, id string) (*models.JobPosting, error)
	FindMonitored(ctx context.Context) ([]models.JobPosting, error)
	Unmonitor(ctx context.Context, keep []string) (int64, error)
}

type jobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Upsert(ctx context.Context, job *models.JobPosting) (bool, error) {
	job.DescriptionHash = models.HashDescription(job.Description)
	if job.SyncedAt.IsZero() {
		job.SyncedAt = time.Now().UTC()
	}

	var existing models.JobPosting
	err := r.db.WithContext(ctx).Where("id = ?", job.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return false, fmt.Errorf("failed to create job posting: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to find job posting: %w", err)
	}

	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return false, fmt.Errorf("failed to update job posting: %w", err)
	}
	return existing.DescriptionHash != job.DescriptionHash, nil
}

func (r *jobRepository) FindByID(ctx context.Context, id string) (*models.JobPosting, error) {
	var job models.JobPosting
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find job posting: %w", err)
	}
	return &job, nil
}

func (r *jobRepository) FindMonitored(ctx context.Context) ([]models.JobPosting, error) {
	var jobs []models.JobPosting
	if err := r.db.WithContext(ctx).Where("monitored = ?", true).Order("id ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to find monitored jobs: %w", err)
	}
	return jobs, nil
}

// Unmonitor flags every monitored job not in keep as no longer monitored.
func (r *jobRepository) Unmonitor(ctx context.Context, keep []string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.JobPosting{}).Where("monitored = ?", true)
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	res := q.Update("monitored", false)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to unmonitor jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
