package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/infra/resilience"
)

// GeminiClient is the fallback copy provider, used when OpenAI is
// unavailable or its breaker is open.
type GeminiClient struct {
	api   *genai.Client
	model string
	cb    *gobreaker.CircuitBreaker
	cfg   resilience.Config
}

// NewGeminiClient creates a new GeminiClient.
func NewGeminiClient(ctx context.Context, apiKey, model string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) (*GeminiClient, error) {
	api, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		api:   api,
		model: model,
		cb:    cb,
		cfg:   cfg,
	}, nil
}

func (c *GeminiClient) Name() string { return "gemini" }

// Close releases the underlying gRPC connection.
func (c *GeminiClient) Close() error {
	return c.api.Close()
}

// GenerateCopy produces listing copy via the Gemini API.
func (c *GeminiClient) GenerateCopy(ctx context.Context, req *domain.CopyRequest) (*domain.CopyResult, error) {
	ctx, span := tracer.Start(ctx, "GeminiClient.GenerateCopy")
	defer span.End()
	span.SetAttributes(
		attribute.String("copy.type", req.CopyType),
		attribute.String("llm.model", c.model),
	)

	var out *domain.CopyResult

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			model := c.api.GenerativeModel(c.model)
			model.SetTemperature(0.7)
			model.ResponseMIMEType = "application/json"
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(copySystemPrompt)},
			}

			resp, err := model.GenerateContent(ctx, genai.Text(buildCopyPrompt(req)))
			if err != nil {
				return err
			}

			text, err := extractText(resp)
			if err != nil {
				return err
			}
			payload, err := parseCopyPayload(text)
			if err != nil {
				return err
			}

			tokens := 0
			if resp.UsageMetadata != nil {
				tokens = int(resp.UsageMetadata.TotalTokenCount)
			}
			out = &domain.CopyResult{
				Content:    payload.Content,
				Title:      payload.Title,
				Variants:   payload.Variants,
				Provider:   c.Name(),
				TokensUsed: tokens,
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "gemini", Err: err}
	}

	return out, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", domain.ErrEmptyResponse
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", domain.ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", domain.ErrEmptyResponse
	}
	return b.String(), nil
}
