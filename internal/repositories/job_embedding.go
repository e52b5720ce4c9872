package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/applicant-screener/internal/models"
)

// JobEmbeddingRepository keeps job vectors in Postgres through pgvector.
type JobEmbeddingRepository interface {
	Get(ctx context.Context, jobID string) (*models.JobEmbedding, error)
	Put(ctx context.Context, e *models.JobEmbedding) error
	Delete(ctx context.Context, jobID string) error
}

type jobEmbeddingRepository struct {
	db *gorm.DB
}

func NewJobEmbeddingRepository(db *gorm.DB) JobEmbeddingRepository {
	return &jobEmbeddingRepository{db: db}
}

// Get returns nil without error when no vector is cached.
func (r *jobEmbeddingRepository) Get(ctx context.Context, jobID string) (*models.JobEmbedding, error) {
	var e models.JobEmbedding
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load job embedding: %w", err)
	}
	return &e, nil
}

func (r *jobEmbeddingRepository) Put(ctx context.Context, e *models.JobEmbedding) error {
	e.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"description_hash", "model", "vector", "updated_at"}),
	}).Create(e).Error
	if err != nil {
		return fmt.Errorf("failed to store job embedding: %w", err)
	}
	return nil
}

func (r *jobEmbeddingRepository) Delete(ctx context.Context, jobID string) error {
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&models.JobEmbedding{}).Error; err != nil {
		return fmt.Errorf("failed to delete job embedding: %w", err)
	}
	return nil
}
