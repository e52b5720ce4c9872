package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/logger"
	"alfredoptarigan/applicant-screener/internal/models"
)

// jobPointNamespace derives stable point ids from job ids.
var jobPointNamespace = uuid.MustParse("6f1c7a52-3f0e-4d8e-9a49-1f4e2b7c9d10")

// QdrantEmbeddingStore keeps job vectors in a Qdrant collection, one point per job.
type QdrantEmbeddingStore interface {
	EmbeddingStore
	InitCollection(ctx context.Context) error
}

type qdrantEmbeddingStore struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
	log            *zap.Logger
}

func NewQdrantEmbeddingStore(urlStr, apiKey, collectionName string, vectorSize uint64, log *zap.Logger) (QdrantEmbeddingStore, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// gRPC port
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &qdrantEmbeddingStore{
		client:         client,
		collectionName: collectionName,
		vectorSize:     vectorSize,
		log:            logger.OrNop(log).With(zap.String("component", "qdrant")),
	}, nil
}

func pointIDFor(jobID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(jobPointNamespace, []byte(jobID)).String())
}

func (q *qdrantEmbeddingStore) InitCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	q.log.Info("qdrant collection created", zap.String("collection", q.collectionName))
	return nil
}

func (q *qdrantEmbeddingStore) Get(ctx context.Context, jobID string) (*models.JobEmbedding, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collectionName,
		Ids:            []*qdrant.PointId{pointIDFor(jobID)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get point: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	point := points[0]
	entry := &models.JobEmbedding{JobID: jobID}
	if v, ok := point.Payload["description_hash"]; ok {
		entry.DescriptionHash = v.GetStringValue()
	}
	if v, ok := point.Payload["model"]; ok {
		entry.Model = v.GetStringValue()
	}
	if v, ok := point.Payload["updated_at"]; ok {
		if t, err := time.Parse(time.RFC3339, v.GetStringValue()); err == nil {
			entry.UpdatedAt = t
		}
	}
	entry.Vector = pgvector.NewVector(point.GetVectors().GetVector().GetData())
	return entry, nil
}

func (q *qdrantEmbeddingStore) Put(ctx context.Context, e *models.JobEmbedding) error {
	e.UpdatedAt = time.Now().UTC()
	point := &qdrant.PointStruct{
		Id:      pointIDFor(e.JobID),
		Vectors: qdrant.NewVectors(e.Vector.Slice()...),
		Payload: qdrant.NewValueMap(map[string]interface{}{
			"job_id":           e.JobID,
			"description_hash": e.DescriptionHash,
			"model":            e.Model,
			"updated_at":       e.UpdatedAt.Format(time.RFC3339),
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func (q *qdrantEmbeddingStore) Delete(ctx context.Context, jobID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("job_id", jobID),
		},
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: filter,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}
