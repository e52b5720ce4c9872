package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"alfredoptarigan/applicant-screener/internal/models"
)

// Application is one application event reported by the ATS.
type Application struct {
	ID          string    `json:"id"`
	CandidateID string    `json:"candidate_id"`
	JobID       string    `json:"job_id,omitempty"`
	AppliedAt   time.Time `json:"applied_at"`
}

type Candidate struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	ResumeText         string `json:"resume_text"`
	ResumeAttachmentID string `json:"resume_attachment_id,omitempty"`
}

type ATSJob struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	WorkMode    string `json:"work_mode"`
	Status      string `json:"status"`
}

// IsOpen reports whether the job still accepts candidates.
func (j *ATSJob) IsOpen() bool {
	switch strings.ToLower(j.Status) {
	case "open", "active", "published", "accepting_candidates":
		return true
	}
	return false
}

func (j *ATSJob) Posting(monitored bool) *models.JobPosting {
	return &models.JobPosting{
		ID:              j.ID,
		Title:           j.Title,
		Description:     j.Description,
		Location:        j.Location,
		WorkMode:        models.WorkMode(j.WorkMode),
		Status:          j.Status,
		DescriptionHash: models.HashDescription(j.Description),
		Monitored:       monitored,
		SyncedAt:        time.Now().UTC(),
	}
}

type Note struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Body      string    `json:"body"`
	JobID     string    `json:"job_id,omitempty"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

type NewNote struct {
	Action string `json:"action"`
	Body   string `json:"body"`
	JobID  string `json:"job_id,omitempty"`
}

// ATSClient is the applicant tracking system the screener reads from and
// writes notes back to.
type ATSClient interface {
	FetchRecentApplications(ctx context.Context, since time.Time, limit int) ([]Application, error)
	FetchCandidate(ctx context.Context, id string) (*Candidate, error)
	FetchActiveJobs(ctx context.Context) ([]ATSJob, error)
	// FetchJob returns nil, nil when the job does not exist.
	FetchJob(ctx context.Context, id string) (*ATSJob, error)
	FetchNotes(ctx context.Context, candidateID, action string) ([]Note, error)
	CreateNote(ctx context.Context, candidateID string, note NewNote) (*Note, error)
	// SoftDeleteNote flags the note as deleted; the ATS keeps the row.
	SoftDeleteNote(ctx context.Context, noteID string) error
	DownloadAttachment(ctx context.Context, attachmentID string) ([]byte, error)
}

type ATSConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RetryCount    int
	RetryWaitTime time.Duration
}

type atsClient struct {
	client *resty.Client
}

func NewATSClient(cfg ATSConfig) ATSClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryWaitTime <= 0 {
		cfg.RetryWaitTime = time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWaitTime).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &atsClient{client: client}
}

func (c *atsClient) FetchRecentApplications(ctx context.Context, since time.Time, limit int) ([]Application, error) {
	var result struct {
		Applications []Application `json:"applications"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("since", since.UTC().Format(time.RFC3339)).
		SetQueryParam("limit", fmt.Sprint(limit)).
		SetResult(&result).
		Get("/api/v1/applications")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch applications: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("applications API returned %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Applications, nil
}

func (c *atsClient) FetchCandidate(ctx context.Context, id string) (*Candidate, error) {
	var result Candidate
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&result).
		Get("/api/v1/candidates/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("candidate API returned %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

func (c *atsClient) FetchActiveJobs(ctx context.Context) ([]ATSJob, error) {
	var result struct {
		Jobs []ATSJob `json:"jobs"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("status", "active").
		SetQueryParam("include", "description").
		SetResult(&result).
		Get("/api/v1/jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jobs: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("jobs API returned %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Jobs, nil
}

func (c *atsClient) FetchJob(ctx context.Context, id string) (*ATSJob, error) {
	var result ATSJob
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&result).
		Get("/api/v1/jobs/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("job API returned %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

func (c *atsClient) FetchNotes(ctx context.Context, candidateID, action string) ([]Note, error) {
	var result struct {
		Notes []Note `json:"notes"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", candidateID).
		SetQueryParam("action", action).
		SetResult(&result).
		Get("/api/v1/candidates/{id}/notes")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notes: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("notes API returned %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Notes, nil
}

func (c *atsClient) CreateNote(ctx context.Context, candidateID string, note NewNote) (*Note, error) {
	var result Note
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", candidateID).
		SetHeader("Content-Type", "application/json").
		SetBody(note).
		SetResult(&result).
		Post("/api/v1/candidates/{id}/notes")
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create note API returned %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

func (c *atsClient) SoftDeleteNote(ctx context.Context, noteID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", noteID).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]bool{"deleted": true}).
		Patch("/api/v1/notes/{id}")
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("delete note API returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *atsClient) DownloadAttachment(ctx context.Context, attachmentID string) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", attachmentID).
		SetHeader("Accept", "application/pdf").
		Get("/api/v1/attachments/{id}/content")
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("attachment API returned %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
