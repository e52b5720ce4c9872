package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"alfredoptarigan/applicant-screener/internal/models"
)

func TestTruncateHeadTail(t *testing.T) {
	assert.Equal(t, "short", TruncateHeadTail("short", 10, 1))
	assert.Equal(t, "anything", TruncateHeadTail("anything", 0, 4))

	text := "abcdefghijklmnopqrstuvwxyz"
	out := TruncateHeadTail(text, 10, 1)
	assert.Equal(t, "abcdefg"+truncationSeparator+"xyz", out)

	multi := strings.Repeat("é", 40)
	out = TruncateHeadTail(multi, 5, 4)
	assert.Equal(t, 20+len([]rune(truncationSeparator)), len([]rune(out)))
}

type fakeEmbedAPI struct {
	texts []string
	model string
}

func (f *fakeEmbedAPI) EmbedContent(_ context.Context, model string, contents []*genai.Content, _ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.texts = append(f.texts, contents[0].Parts[0].Text)
	return &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.1, 0.2, 0.3}}},
	}, nil
}

func TestGeminiEmbedderTruncatesInput(t *testing.T) {
	api := &fakeEmbedAPI{}
	emb := NewGeminiEmbedder(api, "text-embedding-004", 4, 2)

	vec, err := emb.Embed(context.Background(), "  0123456789abcdef  ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "text-embedding-004", api.model)
	require.Len(t, api.texts, 1)
	assert.Equal(t, "012345"+truncationSeparator+"ef", api.texts[0])

	_, err = emb.Embed(context.Background(), "   ")
	assert.Error(t, err)
}

func TestJobEmbeddingCache(t *testing.T) {
	ctx := context.Background()
	store := newMemEmbeddingStore()
	emb := newFakeEmbedder(map[string][]float32{
		"Backend Go":          {1, 0},
		"Backend Go and Rust": {0.5, 0.5},
	})
	cache := NewJobEmbeddingCache(store, emb, nil)

	j := testJob("j1", "Backend Go")
	v1, err := cache.VectorFor(ctx, &j)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v1)

	_, err = cache.VectorFor(ctx, &j)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.callsFor("Backend Go"), "unchanged description reuses the stored vector")

	changed := testJob("j1", "Backend Go and Rust")
	v2, err := cache.VectorFor(ctx, &changed)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, v2)

	emb.mu.Lock()
	emb.model = "fake-embed-v2"
	emb.mu.Unlock()
	_, err = cache.VectorFor(ctx, &changed)
	require.NoError(t, err)
	assert.Equal(t, 2, emb.callsFor("Backend Go and Rust"), "a model change invalidates the vector")

	require.NoError(t, cache.Invalidate(ctx, "j1"))
	stored, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	blank := models.JobPosting{ID: "j2", Description: "  "}
	_, err = cache.VectorFor(ctx, &blank)
	assert.ErrorIs(t, err, ErrNoDescription)
}
