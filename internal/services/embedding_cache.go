package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/logger"
	"alfredoptarigan/applicant-screener/internal/models"
)

var ErrNoDescription = errors.New("job has no description")

// EmbeddingStore persists job vectors. Get returns nil, nil on a miss.
type EmbeddingStore interface {
	Get(ctx context.Context, jobID string) (*models.JobEmbedding, error)
	Put(ctx context.Context, e *models.JobEmbedding) error
	Delete(ctx context.Context, jobID string) error
}

type JobEmbeddingCache interface {
	// VectorFor returns the job's description vector, regenerating it when
	// the cached one was built from a different description or model.
	VectorFor(ctx context.Context, job *models.JobPosting) ([]float32, error)
	Invalidate(ctx context.Context, jobID string) error
}

type jobEmbeddingCache struct {
	store    EmbeddingStore
	embedder Embedder
	log      *zap.Logger
}

func NewJobEmbeddingCache(store EmbeddingStore, embedder Embedder, log *zap.Logger) JobEmbeddingCache {
	return &jobEmbeddingCache{
		store:    store,
		embedder: embedder,
		log:      logger.OrNop(log).With(zap.String("component", "embedding-cache")),
	}
}

func (c *jobEmbeddingCache) VectorFor(ctx context.Context, job *models.JobPosting) ([]float32, error) {
	if !job.HasDescription() {
		return nil, ErrNoDescription
	}
	hash := job.DescriptionHash
	if hash == "" {
		hash = models.HashDescription(job.Description)
	}

	cached, err := c.store.Get(ctx, job.ID)
	if err != nil {
		c.log.Warn("reading cached embedding", zap.String("job_id", job.ID), zap.Error(err))
	}
	if cached != nil && cached.DescriptionHash == hash && cached.Model == c.embedder.Model() {
		if vec := cached.Vector.Slice(); len(vec) > 0 {
			return vec, nil
		}
	}

	vec, err := c.embedder.Embed(ctx, job.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to embed job %s: %w", job.ID, err)
	}

	entry := &models.JobEmbedding{
		JobID:           job.ID,
		DescriptionHash: hash,
		Model:           c.embedder.Model(),
		Vector:          pgvector.NewVector(vec),
	}
	if err := c.store.Put(ctx, entry); err != nil {
		c.log.Warn("storing embedding", zap.String("job_id", job.ID), zap.Error(err))
	}
	c.log.Debug("job embedding regenerated", zap.String("job_id", job.ID), zap.Int("dims", len(vec)))
	return vec, nil
}

func (c *jobEmbeddingCache) Invalidate(ctx context.Context, jobID string) error {
	return c.store.Delete(ctx, jobID)
}
