package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestScoring   RequestStatus = "scoring"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
)

// ScreeningRequest is one screening of one application event. Once completed
// it is never mutated; a re-application produces a new request.
type ScreeningRequest struct {
	ID                  uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CandidateID         string        `gorm:"type:varchar(64);not null;index:idx_request_candidate_job" json:"candidate_id"`
	CandidateName       string        `gorm:"type:text" json:"candidate_name"`
	CandidateEmail      string        `gorm:"type:text" json:"candidate_email"`
	ResumeText          string        `gorm:"type:text" json:"-"`
	AppliedJobID        *string       `gorm:"type:varchar(64);index:idx_request_candidate_job" json:"applied_job_id,omitempty"`
	OriginatingRecordID string        `gorm:"type:varchar(128);not null;uniqueIndex" json:"originating_record_id"`
	Status              RequestStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	RequeueCount        int           `gorm:"not null;default:0" json:"requeue_count"`
	HighestScore        *int          `json:"highest_score,omitempty"`
	QualifiedCount      int           `gorm:"not null;default:0" json:"qualified_count"`
	JobsConsidered      int           `gorm:"not null;default:0" json:"jobs_considered"`
	JobsFiltered        int           `gorm:"not null;default:0" json:"jobs_filtered"`
	ErrorMessage        *string       `gorm:"type:text" json:"error_message,omitempty"`
	AppliedAt           time.Time     `json:"applied_at"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`

	Matches []MatchResult `gorm:"foreignKey:RequestID" json:"matches,omitempty"`
}

func (ScreeningRequest) TableName() string {
	return "screening_requests"
}

func (r *ScreeningRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// InFlight reports whether the request still occupies its (candidate, job) slot.
func (r *ScreeningRequest) InFlight() bool {
	return r.Status == RequestPending || r.Status == RequestScoring
}

func (r *ScreeningRequest) AppliedJob() string {
	if r.AppliedJobID == nil {
		return ""
	}
	return *r.AppliedJobID
}
