package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MinBatchSize = 1
	MaxBatchSize = 100
)

// CycleLock is the persisted single-flight flag for scoring cycles. Only row 1 is used.
type CycleLock struct {
	ID         uint       `gorm:"primaryKey" json:"-"`
	InProgress bool       `gorm:"not null;default:false" json:"in_progress"`
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
	Owner      string     `gorm:"type:varchar(255)" json:"owner,omitempty"`
}

func (CycleLock) TableName() string {
	return "cycle_locks"
}

// ScreeningSettings is the hot-reloadable runtime configuration. Only row 1 is used.
type ScreeningSettings struct {
	ID                      uint                               `gorm:"primaryKey" json:"-"`
	ScreeningEnabled        bool                               `gorm:"not null" json:"screening_enabled"`
	QualificationThreshold  int                                `gorm:"not null" json:"qualification_threshold"`
	JobThresholds           datatypes.JSONType[map[string]int] `json:"job_thresholds"`
	SimilarityThreshold     float64                            `gorm:"not null" json:"similarity_threshold"`
	SimilarityFilterEnabled bool                               `gorm:"not null" json:"similarity_filter_enabled"`
	ScoringModel            string                             `gorm:"type:varchar(128);not null" json:"scoring_model"`
	EscalationModel         string                             `gorm:"type:varchar(128);not null" json:"escalation_model"`
	EscalationLow           int                                `gorm:"not null" json:"escalation_low"`
	EscalationHigh          int                                `gorm:"not null" json:"escalation_high"`
	BatchSize               int                                `gorm:"not null" json:"batch_size"`
	SafeguardTopN           int                                `gorm:"not null" json:"safeguard_top_n"`
	BacklogCutoff           *time.Time                         `json:"backlog_cutoff,omitempty"`
	UpdatedAt               time.Time                          `json:"updated_at"`
}

func (ScreeningSettings) TableName() string {
	return "screening_settings"
}

// Snapshot is an immutable copy of the settings taken at the start of a cycle
// and passed explicitly to every stage of it.
type Snapshot struct {
	ScreeningEnabled        bool
	QualificationThreshold  int
	JobThresholds           map[string]int
	SimilarityThreshold     float64
	SimilarityFilterEnabled bool
	ScoringModel            string
	EscalationModel         string
	EscalationLow           int
	EscalationHigh          int
	BatchSize               int
	SafeguardTopN           int
	BacklogCutoff           *time.Time
}

// Snapshot copies the settings, clamping the batch size to [1, 100].
func (s *ScreeningSettings) Snapshot() Snapshot {
	thresholds := make(map[string]int)
	for k, v := range s.JobThresholds.Data() {
		thresholds[k] = v
	}
	var cutoff *time.Time
	if s.BacklogCutoff != nil {
		c := *s.BacklogCutoff
		cutoff = &c
	}
	return Snapshot{
		ScreeningEnabled:        s.ScreeningEnabled,
		QualificationThreshold:  s.QualificationThreshold,
		JobThresholds:           thresholds,
		SimilarityThreshold:     s.SimilarityThreshold,
		SimilarityFilterEnabled: s.SimilarityFilterEnabled,
		ScoringModel:            s.ScoringModel,
		EscalationModel:         s.EscalationModel,
		EscalationLow:           s.EscalationLow,
		EscalationHigh:          s.EscalationHigh,
		BatchSize:               ClampBatchSize(s.BatchSize),
		SafeguardTopN:           s.SafeguardTopN,
		BacklogCutoff:           cutoff,
	}
}

func ClampBatchSize(n int) int {
	if n < MinBatchSize {
		return MinBatchSize
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// ThresholdFor returns the per-job override if one exists, else the global threshold.
func (s Snapshot) ThresholdFor(jobID string) int {
	if t, ok := s.JobThresholds[jobID]; ok {
		return t
	}
	return s.QualificationThreshold
}

// InEscalationBand reports whether score lies in the inclusive band and a
// distinct escalation tier is configured.
func (s Snapshot) InEscalationBand(score int) bool {
	if s.EscalationModel == "" || s.EscalationModel == s.ScoringModel {
		return false
	}
	return score >= s.EscalationLow && score <= s.EscalationHigh
}
