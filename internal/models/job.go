package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

type WorkMode string

const (
	WorkModeOnSite WorkMode = "on-site"
	WorkModeHybrid WorkMode = "hybrid"
	WorkModeRemote WorkMode = "remote"
)

// JobPosting mirrors an ATS job. The ID is the ATS identifier.
type JobPosting struct {
	ID              string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Title           string    `gorm:"type:text" json:"title"`
	Description     string    `gorm:"type:text" json:"description"`
	Location        string    `gorm:"type:text" json:"location"`
	WorkMode        WorkMode  `gorm:"type:varchar(16)" json:"work_mode"`
	Status          string    `gorm:"type:varchar(32)" json:"status"`
	DescriptionHash string    `gorm:"type:varchar(64)" json:"description_hash"`
	Monitored       bool      `gorm:"not null" json:"monitored"`
	SyncedAt        time.Time `json:"synced_at"`
}

func (JobPosting) TableName() string {
	return "job_postings"
}

// HasDescription reports whether the posting carries any text worth embedding.
func (j *JobPosting) HasDescription() bool {
	return strings.TrimSpace(j.Description) != ""
}

// HashDescription returns the hex sha256 of the trimmed description.
func HashDescription(description string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(description)))
	return hex.EncodeToString(sum[:])
}

// JobEmbedding is the cached description vector of a job. A row whose
// DescriptionHash or Model differs from the current one is stale.
type JobEmbedding struct {
	JobID           string          `gorm:"type:varchar(64);primaryKey" json:"job_id"`
	DescriptionHash string          `gorm:"type:varchar(64);not null" json:"description_hash"`
	Model           string          `gorm:"type:varchar(128);not null" json:"model"`
	Vector          pgvector.Vector `gorm:"type:vector" json:"-"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (JobEmbedding) TableName() string {
	return "job_embeddings"
}
