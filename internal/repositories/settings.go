package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"alfredoptarigan/applicant-screener/internal/models"
)

const settingsID = 1

type SettingsRepository interface {
	// EnsureSeeded inserts seed when no settings row exists yet.
	EnsureSeeded(ctx context.Context, seed models.ScreeningSettings) error
	Get(ctx context.Context) (*models.ScreeningSettings, error)
	Patch(ctx context.Context, patch models.SettingsPatch) (*models.ScreeningSettings, error)
	SetScreeningEnabled(ctx context.Context, enabled bool) error
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) EnsureSeeded(ctx context.Context, seed models.ScreeningSettings) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ScreeningSettings{}).Where("id = ?", settingsID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check settings: %w", err)
	}
	if count > 0 {
		return nil
	}
	seed.ID = settingsID
	if err := r.db.WithContext(ctx).Create(&seed).Error; err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

func (r *settingsRepository) Get(ctx context.Context) (*models.ScreeningSettings, error) {
	var s models.ScreeningSettings
	if err := r.db.WithContext(ctx).Where("id = ?", settingsID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("screening settings: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &s, nil
}

func (r *settingsRepository) Patch(ctx context.Context, p models.SettingsPatch) (*models.ScreeningSettings, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}

	if p.ScreeningEnabled != nil {
		updates["screening_enabled"] = *p.ScreeningEnabled
	}
	if p.QualificationThreshold != nil {
		updates["qualification_threshold"] = *p.QualificationThreshold
	}
	if p.JobThresholds != nil {
		updates["job_thresholds"] = datatypes.NewJSONType(*p.JobThresholds)
	}
	if p.SimilarityThreshold != nil {
		updates["similarity_threshold"] = *p.SimilarityThreshold
	}
	if p.SimilarityFilterEnabled != nil {
		updates["similarity_filter_enabled"] = *p.SimilarityFilterEnabled
	}
	if p.ScoringModel != nil {
		updates["scoring_model"] = *p.ScoringModel
	}
	if p.EscalationModel != nil {
		updates["escalation_model"] = *p.EscalationModel
	}
	if p.EscalationLow != nil {
		updates["escalation_low"] = *p.EscalationLow
	}
	if p.EscalationHigh != nil {
		updates["escalation_high"] = *p.EscalationHigh
	}
	if p.BatchSize != nil {
		updates["batch_size"] = models.ClampBatchSize(*p.BatchSize)
	}
	if p.SafeguardTopN != nil {
		updates["safeguard_top_n"] = *p.SafeguardTopN
	}
	if p.BacklogCutoff != nil {
		updates["backlog_cutoff"] = p.BacklogCutoff.UTC()
	}

	result := r.db.WithContext(ctx).Model(&models.ScreeningSettings{}).
		Where("id = ?", settingsID).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update settings: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("screening settings: %w", ErrNotFound)
	}
	return r.Get(ctx)
}

func (r *settingsRepository) SetScreeningEnabled(ctx context.Context, enabled bool) error {
	_, err := r.Patch(ctx, models.SettingsPatch{ScreeningEnabled: &enabled})
	return err
}
