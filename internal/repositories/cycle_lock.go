package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/applicant-screener/internal/models"
)

const cycleLockID = 1

// CycleLockRepository is the database-backed single-flight lock. Acquisition
// is one conditional UPDATE, so two processes racing on the row cannot both win.
type CycleLockRepository interface {
	Acquire(ctx context.Context, owner string, now time.Time) (bool, error)
	Release(ctx context.Context, owner string) error
	Status(ctx context.Context) (*models.CycleLock, error)
}

type cycleLockRepository struct {
	db         *gorm.DB
	staleAfter time.Duration
}

func NewCycleLockRepository(db *gorm.DB, staleAfter time.Duration) CycleLockRepository {
	return &cycleLockRepository{db: db, staleAfter: staleAfter}
}

func (r *cycleLockRepository) ensureRow(ctx context.Context) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CycleLock{ID: cycleLockID}).Error
	if err != nil {
		return fmt.Errorf("failed to ensure cycle lock row: %w", err)
	}
	return nil
}

// Acquire takes the lock when it is free or its holder is older than the
// staleness ceiling.
func (r *cycleLockRepository) Acquire(ctx context.Context, owner string, now time.Time) (bool, error) {
	if err := r.ensureRow(ctx); err != nil {
		return false, err
	}

	staleBefore := now.Add(-r.staleAfter)
	result := r.db.WithContext(ctx).Model(&models.CycleLock{}).
		Where("id = ?", cycleLockID).
		Where("in_progress = ? OR acquired_at IS NULL OR acquired_at < ?", false, staleBefore).
		Updates(map[string]interface{}{
			"in_progress": true,
			"acquired_at": now,
			"owner":       owner,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to acquire cycle lock: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Release frees the lock only if owner still holds it. A holder that was
// preempted after going stale must not release its successor's lock.
func (r *cycleLockRepository) Release(ctx context.Context, owner string) error {
	err := r.db.WithContext(ctx).Model(&models.CycleLock{}).
		Where("id = ? AND owner = ?", cycleLockID, owner).
		Updates(map[string]interface{}{
			"in_progress": false,
			"acquired_at": nil,
			"owner":       "",
		}).Error
	if err != nil {
		return fmt.Errorf("failed to release cycle lock: %w", err)
	}
	return nil
}

func (r *cycleLockRepository) Status(ctx context.Context) (*models.CycleLock, error) {
	if err := r.ensureRow(ctx); err != nil {
		return nil, err
	}
	var lock models.CycleLock
	if err := r.db.WithContext(ctx).Where("id = ?", cycleLockID).First(&lock).Error; err != nil {
		return nil, fmt.Errorf("failed to read cycle lock: %w", err)
	}
	return &lock, nil
}
