package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"alfredoptarigan/applicant-screener/internal/logger"
)

var ErrQuotaExhausted = errors.New("scoring quota exhausted")

// IsQuotaError reports whether err signals rate-limit or quota exhaustion.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExhausted) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED") {
		return true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && (apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Status == "RESOURCE_EXHAUSTED") {
		return true
	}
	// untyped errors only count on full phrases; bare codes show up in ids and urls
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "rate-limit", "resource_exhausted", "quota exceeded", "too many requests"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isRetryable is true for failures worth another attempt: server errors,
// timeouts and empty responses. Client errors other than 429 are final.
func isRetryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code >= http.StatusInternalServerError || apiErr.Code == http.StatusRequestTimeout
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code >= http.StatusInternalServerError || apiErrPtr.Code == http.StatusRequestTimeout
	}
	return true
}

type StructuredRequest struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Schema            *genai.Schema
	Temperature       float32
}

type LLMClient interface {
	// GenerateStructured returns the model's JSON output for the request.
	GenerateStructured(ctx context.Context, req StructuredRequest) (string, error)
}

// generateContentAPI is the part of *genai.Models used for generation.
type generateContentAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiOptions struct {
	MaxOutputTokens  int32
	RequestTimeout   time.Duration
	MaxRetries       int
	RetryInitialWait time.Duration
	MaxLogLength     int
}

type geminiService struct {
	api  generateContentAPI
	opts GeminiOptions
	log  *zap.Logger
}

// NewGeminiClient creates the genai client shared by scoring and embeddings.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

func NewLLMClient(api generateContentAPI, opts GeminiOptions, log *zap.Logger) LLMClient {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryInitialWait <= 0 {
		opts.RetryInitialWait = 2 * time.Second
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 4096
	}
	if opts.MaxLogLength <= 0 {
		opts.MaxLogLength = 400
	}
	return &geminiService{
		api:  api,
		opts: opts,
		log:  logger.OrNop(log).With(zap.String("component", "gemini")),
	}
}

func (g *geminiService) GenerateStructured(ctx context.Context, req StructuredRequest) (string, error) {
	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  g.opts.MaxOutputTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}}
	}

	log := g.log.With(zap.String("model", req.Model))
	log.Debug("sending prompt", zap.String("prompt", logger.TruncateForLog(req.Prompt, g.opts.MaxLogLength)))

	attempt := 0
	operation := func() (string, error) {
		attempt++
		text, err := g.generateOnce(ctx, req.Model, req.Prompt, config)
		if err == nil {
			return text, nil
		}
		if IsQuotaError(err) {
			log.Warn("quota exhausted", zap.Int("attempt", attempt), zap.Error(err))
			return "", backoff.Permanent(fmt.Errorf("%w: %w", ErrQuotaExhausted, err))
		}
		if !isRetryable(err) {
			return "", backoff.Permanent(err)
		}
		log.Warn("generation failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return "", err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.opts.RetryInitialWait
	b.MaxInterval = 8 * g.opts.RetryInitialWait
	b.MaxElapsedTime = 0

	text, err := backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.opts.MaxRetries)), ctx))
	if err != nil {
		return "", fmt.Errorf("failed after %d attempts: %w", attempt, err)
	}

	log.Debug("received response", zap.String("response", logger.TruncateForLog(text, g.opts.MaxLogLength)))
	return text, nil
}

func (g *geminiService) generateOnce(ctx context.Context, model, prompt string, config *genai.GenerateContentConfig) (string, error) {
	if g.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.RequestTimeout)
		defer cancel()
	}

	resp, err := g.api.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil {
		return "", errors.New("no response generated (nil response)")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		reason := ""
		if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
			reason = string(resp.Candidates[0].FinishReason)
		}
		return "", fmt.Errorf("no text content in response (finish reason %q)", reason)
	}
	return text, nil
}
