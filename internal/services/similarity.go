package services

import (
	"context"
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/logger"
	"alfredoptarigan/applicant-screener/internal/metrics"
	"alfredoptarigan/applicant-screener/internal/models"
)

// CosineSimilarity returns 0 for empty, mismatched or zero-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type FilterInput struct {
	Resume        string
	Jobs          []models.JobPosting
	AppliedJob    *models.JobPosting
	Enabled       bool
	Threshold     float64
	SafeguardTopN int
}

// CandidateJob is a job that will be scored for the candidate.
type CandidateJob struct {
	Job           models.JobPosting
	Similarity    *float64
	IsApplied     bool
	ForceIncluded bool
}

type FilterDecision struct {
	JobID      string
	Similarity float64
}

type FilterOutcome struct {
	Passed        []CandidateJob
	Excluded      []FilterDecision
	ForceIncluded []FilterDecision
	// Degraded is set when the resume could not be embedded and every job passed unfiltered.
	Degraded bool
}

type SimilarityFilter interface {
	Filter(ctx context.Context, in FilterInput) (*FilterOutcome, error)
}

type similarityFilter struct {
	embedder Embedder
	cache    JobEmbeddingCache
	log      *zap.Logger
}

func NewSimilarityFilter(embedder Embedder, cache JobEmbeddingCache, log *zap.Logger) SimilarityFilter {
	return &similarityFilter{
		embedder: embedder,
		cache:    cache,
		log:      logger.OrNop(log).With(zap.String("component", "similarity-filter")),
	}
}

// Filter drops jobs whose similarity to the resume is below the threshold.
// Infrastructure failures let jobs through rather than drop them. The applied
// job never enters the comparison and is always part of the result.
func (f *similarityFilter) Filter(ctx context.Context, in FilterInput) (*FilterOutcome, error) {
	out := &FilterOutcome{}

	var jobs []models.JobPosting
	for _, j := range in.Jobs {
		if in.AppliedJob != nil && j.ID == in.AppliedJob.ID {
			continue
		}
		jobs = append(jobs, j)
	}

	defer func() {
		if in.AppliedJob != nil {
			out.Passed = append([]CandidateJob{{Job: *in.AppliedJob, IsApplied: true}}, out.Passed...)
		}
	}()

	if !in.Enabled || len(jobs) == 0 {
		out.Passed = passAll(jobs)
		return out, nil
	}

	resumeVec, err := f.embedder.Embed(ctx, in.Resume)
	if err != nil {
		f.log.Warn("resume embedding failed, skipping similarity filter", zap.Error(err))
		out.Degraded = true
		out.Passed = passAll(jobs)
		return out, nil
	}

	type scored struct {
		job models.JobPosting
		sim float64
	}
	var below []scored
	for _, job := range jobs {
		jobVec, err := f.cache.VectorFor(ctx, &job)
		if err != nil {
			if !errors.Is(err, ErrNoDescription) {
				f.log.Warn("job embedding failed, passing job through", zap.String("job_id", job.ID), zap.Error(err))
			}
			out.Passed = append(out.Passed, CandidateJob{Job: job})
			continue
		}

		sim := CosineSimilarity(resumeVec, jobVec)
		if sim >= in.Threshold {
			s := sim
			out.Passed = append(out.Passed, CandidateJob{Job: job, Similarity: &s})
			continue
		}
		below = append(below, scored{job: job, sim: sim})
	}

	if len(below) == len(jobs) && in.SafeguardTopN > 0 {
		sort.SliceStable(below, func(i, j int) bool {
			if below[i].sim != below[j].sim {
				return below[i].sim > below[j].sim
			}
			return below[i].job.ID < below[j].job.ID
		})
		n := min(in.SafeguardTopN, len(below))
		for _, b := range below[:n] {
			s := b.sim
			out.Passed = append(out.Passed, CandidateJob{Job: b.job, Similarity: &s, ForceIncluded: true})
			out.ForceIncluded = append(out.ForceIncluded, FilterDecision{JobID: b.job.ID, Similarity: b.sim})
		}
		below = below[n:]
		f.log.Warn("every job filtered, force-including top matches",
			zap.Int("jobs", len(jobs)), zap.Int("force_included", n), zap.Float64("threshold", in.Threshold))
		metrics.PairsForceIncludedTotal.Add(float64(n))
	}

	for _, b := range below {
		out.Excluded = append(out.Excluded, FilterDecision{JobID: b.job.ID, Similarity: b.sim})
	}
	metrics.PairsFilteredTotal.Add(float64(len(out.Excluded)))
	return out, nil
}

func passAll(jobs []models.JobPosting) []CandidateJob {
	out := make([]CandidateJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, CandidateJob{Job: j})
	}
	return out
}
