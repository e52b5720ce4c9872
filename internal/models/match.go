package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MatchResult is the scored outcome of one (request, job) pair. The pair is
// unique; inserting a second result for it is a no-op.
type MatchResult struct {
	ID                     uuid.UUID                    `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID              uuid.UUID                    `gorm:"type:uuid;not null;uniqueIndex:idx_match_request_job" json:"request_id"`
	JobID                  string                       `gorm:"type:varchar(64);not null;uniqueIndex:idx_match_request_job" json:"job_id"`
	RawScore               int                          `gorm:"not null" json:"raw_score"`
	FinalScore             int                          `gorm:"not null" json:"final_score"`
	QualificationThreshold int                          `gorm:"not null" json:"qualification_threshold"`
	Qualified              bool                         `gorm:"not null;default:false" json:"qualified"`
	IsAppliedJob           bool                         `gorm:"not null;default:false" json:"is_applied_job"`
	ForceIncluded          bool                         `gorm:"not null;default:false" json:"force_included"`
	Similarity             *float64                     `json:"similarity,omitempty"`
	Model                  string                       `gorm:"type:varchar(128)" json:"model"`
	Escalated              bool                         `gorm:"not null;default:false" json:"escalated"`
	Failed                 bool                         `gorm:"not null;default:false" json:"failed"`
	Summary                string                       `gorm:"type:text" json:"summary"`
	Gaps                   string                       `gorm:"type:text" json:"gaps"`
	Evidence               datatypes.JSONType[Evidence] `json:"evidence"`
	NotificationSent       bool                         `gorm:"not null;default:false" json:"notification_sent"`
	CreatedAt              time.Time                    `json:"created_at"`
}

func (MatchResult) TableName() string {
	return "match_results"
}

func (m *MatchResult) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// FilterRecord is the append-only audit of a pair removed by the similarity filter.
type FilterRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID  uuid.UUID `gorm:"type:uuid;not null;index" json:"request_id"`
	JobID      string    `gorm:"type:varchar(64);not null" json:"job_id"`
	Similarity float64   `gorm:"not null" json:"similarity"`
	Threshold  float64   `gorm:"not null" json:"threshold"`
	CreatedAt  time.Time `json:"created_at"`
}

func (FilterRecord) TableName() string {
	return "filter_records"
}

func (f *FilterRecord) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// EscalationRecord is the append-only audit of a borderline pair re-scored by
// the escalation tier.
type EscalationRecord struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID        uuid.UUID `gorm:"type:uuid;not null;index" json:"request_id"`
	JobID            string    `gorm:"type:varchar(64);not null" json:"job_id"`
	Layer2Score      int       `gorm:"not null" json:"layer2_score"`
	Layer3Score      int       `gorm:"not null" json:"layer3_score"`
	Delta            int       `gorm:"not null" json:"delta"`
	MaterialChange   bool      `gorm:"not null" json:"material_change"`
	CrossedThreshold bool      `gorm:"not null" json:"crossed_threshold"`
	Threshold        int       `gorm:"not null" json:"threshold"`
	Layer2Model      string    `gorm:"type:varchar(128)" json:"layer2_model"`
	Layer3Model      string    `gorm:"type:varchar(128)" json:"layer3_model"`
	CreatedAt        time.Time `json:"created_at"`
}

func (EscalationRecord) TableName() string {
	return "escalation_records"
}

func (e *EscalationRecord) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// MaterialDelta is the smallest absolute escalation delta flagged as material.
const MaterialDelta = 5

// NewEscalationRecord derives delta, materiality and threshold crossing from
// the two raw scores.
func NewEscalationRecord(requestID uuid.UUID, jobID string, layer2, layer3, threshold int, layer2Model, layer3Model string) EscalationRecord {
	delta := layer3 - layer2
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	return EscalationRecord{
		RequestID:        requestID,
		JobID:            jobID,
		Layer2Score:      layer2,
		Layer3Score:      layer3,
		Delta:            delta,
		MaterialChange:   abs >= MaterialDelta,
		CrossedThreshold: (layer2 >= threshold) != (layer3 >= threshold),
		Threshold:        threshold,
		Layer2Model:      layer2Model,
		Layer3Model:      layer3Model,
	}
}
