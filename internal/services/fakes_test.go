package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alfredoptarigan/applicant-screener/internal/gates"
	"alfredoptarigan/applicant-screener/internal/models"
)

var errQuota = fmt.Errorf("%w: 429 too many requests", ErrQuotaExhausted)

// fakeEmbedder maps exact input text to a vector. Unknown text fails.
type fakeEmbedder struct {
	mu      sync.Mutex
	model   string
	vectors map[string][]float32
	calls   map[string]int
}

func newFakeEmbedder(vectors map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{model: "fake-embed", vectors: vectors, calls: map[string]int{}}
}

func (f *fakeEmbedder) Model() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text]++
	v, ok := f.vectors[text]
	if !ok {
		return nil, errors.New("embedding service unavailable")
	}
	return v, nil
}

func (f *fakeEmbedder) callsFor(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

type memEmbeddingStore struct {
	mu   sync.Mutex
	rows map[string]models.JobEmbedding
}

func newMemEmbeddingStore() *memEmbeddingStore {
	return &memEmbeddingStore{rows: map[string]models.JobEmbedding{}}
}

func (m *memEmbeddingStore) Get(_ context.Context, jobID string) (*models.JobEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[jobID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memEmbeddingStore) Put(_ context.Context, e *models.JobEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[e.JobID] = *e
	return nil
}

func (m *memEmbeddingStore) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, jobID)
	return nil
}

// fakeLLM answers GenerateStructured through respond and records every request.
type fakeLLM struct {
	mu       sync.Mutex
	requests []StructuredRequest
	respond  func(req StructuredRequest) (string, error)
}

func (f *fakeLLM) GenerateStructured(_ context.Context, req StructuredRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

// fakeScorer scores pairs through analyze; verify defaults to an error.
type fakeScorer struct {
	mu          sync.Mutex
	analyze     func(job *models.JobPosting, model string) (*models.Analysis, error)
	verify      func(job *models.JobPosting, skills []models.SkillYears) (*gates.YearsVerification, error)
	delay       time.Duration
	inFlight    int
	maxInFlight int
	analyzed    []string
	verified    []string
}

func (f *fakeScorer) enter() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
}

func (f *fakeScorer) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeScorer) Analyze(_ context.Context, _ string, job *models.JobPosting, model string) (*models.Analysis, error) {
	f.enter()
	defer f.leave()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.analyzed = append(f.analyzed, job.ID+"@"+model)
	f.mu.Unlock()

	a, err := f.analyze(job, model)
	if err != nil {
		return nil, err
	}
	out := *a
	out.Model = model
	return &out, nil
}

func (f *fakeScorer) VerifyYears(_ context.Context, _ string, job *models.JobPosting, skills []models.SkillYears, _ string) (*gates.YearsVerification, error) {
	f.mu.Lock()
	f.verified = append(f.verified, job.ID)
	f.mu.Unlock()
	if f.verify == nil {
		return nil, errors.New("verification unavailable")
	}
	return f.verify(job, skills)
}

func (f *fakeScorer) analyzedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.analyzed...)
}

type fakeATS struct {
	mu           sync.Mutex
	applications []Application
	candidates   map[string]*Candidate
	jobs         []ATSJob
	job          map[string]*ATSJob
	jobErr       error
	notes        map[string][]Note
	attachments  map[string][]byte
	created      []NewNote
	deleted      []string
	nextNote     int
}

func newFakeATS() *fakeATS {
	return &fakeATS{
		candidates:  map[string]*Candidate{},
		job:         map[string]*ATSJob{},
		notes:       map[string][]Note{},
		attachments: map[string][]byte{},
	}
}

func (f *fakeATS) FetchRecentApplications(_ context.Context, since time.Time, limit int) ([]Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Application
	for _, a := range f.applications {
		if a.AppliedAt.Before(since) {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeATS) FetchCandidate(_ context.Context, id string) (*Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.candidates[id]
	if !ok {
		return nil, fmt.Errorf("candidate %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeATS) FetchActiveJobs(context.Context) ([]ATSJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ATSJob(nil), f.jobs...), nil
}

func (f *fakeATS) FetchJob(_ context.Context, id string) (*ATSJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.jobErr != nil {
		return nil, f.jobErr
	}
	j, ok := f.job[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (f *fakeATS) FetchNotes(_ context.Context, candidateID, action string) ([]Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Note
	for _, n := range f.notes[candidateID] {
		if n.Action == action {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeATS) CreateNote(_ context.Context, candidateID string, note NewNote) (*Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextNote++
	n := Note{
		ID:        fmt.Sprintf("note-%d", f.nextNote),
		Action:    note.Action,
		Body:      note.Body,
		JobID:     note.JobID,
		CreatedAt: time.Now(),
	}
	f.created = append(f.created, note)
	f.notes[candidateID] = append(f.notes[candidateID], n)
	return &n, nil
}

func (f *fakeATS) SoftDeleteNote(_ context.Context, noteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, noteID)
	for cand, notes := range f.notes {
		for i := range notes {
			if notes[i].ID == noteID {
				f.notes[cand][i].Deleted = true
			}
		}
	}
	return nil
}

func (f *fakeATS) DownloadAttachment(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.attachments[id]
	if !ok {
		return nil, fmt.Errorf("attachment %s not found", id)
	}
	return data, nil
}

type fakeResumeParser struct {
	text string
	err  error
}

func (p *fakeResumeParser) ExtractText([]byte) (string, error) {
	return p.text, p.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []QualifiedNotification
	err  error
}

func (f *fakeNotifier) NotifyQualified(_ context.Context, n QualifiedNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

type fakeAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakeAlerter) Alert(_ context.Context, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return nil
}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subjects)
}

func testJob(id, description string) models.JobPosting {
	return models.JobPosting{
		ID:              id,
		Title:           "Job " + id,
		Description:     description,
		Status:          "open",
		DescriptionHash: models.HashDescription(description),
		Monitored:       true,
	}
}

func analysisWithScore(score int) *models.Analysis {
	return &models.Analysis{
		Score:   score,
		Summary: fmt.Sprintf("scored %d", score),
		Recency: models.RecencyAnalysis{
			RoleCount:              2,
			MostRecentRoleRelevant: true,
			PreviousRoleRelevant:   true,
		},
		Experience: models.ExperienceLevel{
			Classification:         models.ExperienceMid,
			TotalProfessionalYears: 5,
			HighestRoleType:        models.RoleProfessional,
		},
	}
}
