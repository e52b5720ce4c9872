package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"google.golang.org/genai"
)

const truncationSeparator = "\n[...]\n"

// TruncateHeadTail bounds text to tokenBudget*charsPerToken runes, keeping
// the first 75% and the last 25% of the budget. Text within budget is
// returned unchanged.
func TruncateHeadTail(text string, tokenBudget, charsPerToken int) string {
	if tokenBudget <= 0 || charsPerToken <= 0 {
		return text
	}
	limit := tokenBudget * charsPerToken
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	head := limit * 3 / 4
	tail := limit - head
	return string(runes[:head]) + truncationSeparator + string(runes[len(runes)-tail:])
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// embedContentAPI is the part of *genai.Models used for embeddings.
type embedContentAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

type geminiEmbedder struct {
	api           embedContentAPI
	model         string
	tokenBudget   int
	charsPerToken int
}

func NewGeminiEmbedder(api embedContentAPI, model string, tokenBudget, charsPerToken int) Embedder {
	return &geminiEmbedder{api: api, model: model, tokenBudget: tokenBudget, charsPerToken: charsPerToken}
}

func (g *geminiEmbedder) Model() string { return g.model }

func (g *geminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = TruncateHeadTail(strings.TrimSpace(text), g.tokenBudget, g.charsPerToken)
	if text == "" {
		return nil, errors.New("nothing to embed")
	}

	result, err := g.api.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return result.Embeddings[0].Values, nil
}

type cohereEmbedder struct {
	client        *cohereclient.Client
	model         string
	tokenBudget   int
	charsPerToken int
}

func NewCohereEmbedder(apiKey, model string, tokenBudget, charsPerToken int) Embedder {
	if model == "" || !strings.HasPrefix(model, "embed-") {
		model = "embed-english-v3.0"
	}
	httpClient := &http.Client{Timeout: 60 * time.Second}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &cohereEmbedder{client: client, model: model, tokenBudget: tokenBudget, charsPerToken: charsPerToken}
}

func (c *cohereEmbedder) Model() string { return c.model }

func (c *cohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = TruncateHeadTail(strings.TrimSpace(text), c.tokenBudget, c.charsPerToken)
	if text == "" {
		return nil, errors.New("nothing to embed")
	}

	resp, err := c.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          []string{text},
		Model:          c.model,
		InputType:      cohere.EmbedInputTypeSearchDocument,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed error: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || len(resp.Embeddings.Float) == 0 {
		return nil, errors.New("cohere embed returned no float embeddings")
	}

	vec := resp.Embeddings.Float[0]
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out, nil
}
