package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/applicant-screener/internal/models"
)

type MatchResultRepository interface {
	FindByRequest(ctx context.Context, requestID uuid.UUID) ([]models.MatchResult, error)
	FindQualifiedUnnotified(ctx context.Context, requestID uuid.UUID) ([]models.MatchResult, error)
	MarkNotified(ctx context.Context, ids []uuid.UUID) error
	FindFilterRecords(ctx context.Context, requestID uuid.UUID) ([]models.FilterRecord, error)
	FindEscalationRecords(ctx context.Context, requestID uuid.UUID) ([]models.EscalationRecord, error)
}

type matchResultRepository struct {
	db *gorm.DB
}

func NewMatchResultRepository(db *gorm.DB) MatchResultRepository {
	return &matchResultRepository{db: db}
}

func (r *matchResultRepository) FindByRequest(ctx context.Context, requestID uuid.UUID) ([]models.MatchResult, error) {
	var matches []models.MatchResult
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("final_score DESC, job_id ASC").
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find match results: %w", err)
	}
	return matches, nil
}

func (r *matchResultRepository) FindQualifiedUnnotified(ctx context.Context, requestID uuid.UUID) ([]models.MatchResult, error) {
	var matches []models.MatchResult
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND qualified = ? AND notification_sent = ?", requestID, true, false).
		Order("final_score DESC, job_id ASC").
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find qualified matches: %w", err)
	}
	return matches, nil
}

func (r *matchResultRepository) MarkNotified(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&models.MatchResult{}).
		Where("id IN ?", ids).
		Update("notification_sent", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark matches notified: %w", err)
	}
	return nil
}

func (r *matchResultRepository) FindFilterRecords(ctx context.Context, requestID uuid.UUID) ([]models.FilterRecord, error) {
	var records []models.FilterRecord
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Order("similarity DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find filter records: %w", err)
	}
	return records, nil
}

func (r *matchResultRepository) FindEscalationRecords(ctx context.Context, requestID uuid.UUID) ([]models.EscalationRecord, error) {
	var records []models.EscalationRecord
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find escalation records: %w", err)
	}
	return records, nil
}
