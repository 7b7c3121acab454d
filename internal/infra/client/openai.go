package client

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/infra/resilience"
)

// OpenAIClient is the primary copy provider.
type OpenAIClient struct {
	api   *openai.Client
	model string
	cb    *gobreaker.CircuitBreaker
	cfg   resilience.Config
}

// NewOpenAIClient creates a new OpenAIClient.
func NewOpenAIClient(apiKey, model string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *OpenAIClient {
	return &OpenAIClient{
		api:   openai.NewClient(apiKey),
		model: model,
		cb:    cb,
		cfg:   cfg,
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

// GenerateCopy produces listing copy via chat completions.
func (c *OpenAIClient) GenerateCopy(ctx context.Context, req *domain.CopyRequest) (*domain.CopyResult, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.GenerateCopy")
	defer span.End()
	span.SetAttributes(
		attribute.String("copy.type", req.CopyType),
		attribute.String("llm.model", c.model),
	)

	var out *domain.CopyResult

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model: c.model,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: copySystemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: buildCopyPrompt(req)},
				},
				Temperature: 0.7,
				ResponseFormat: &openai.ChatCompletionResponseFormat{
					Type: openai.ChatCompletionResponseFormatTypeJSONObject,
				},
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return domain.ErrEmptyResponse
			}

			payload, err := parseCopyPayload(resp.Choices[0].Message.Content)
			if err != nil {
				return err
			}

			out = &domain.CopyResult{
				Content:    payload.Content,
				Title:      payload.Title,
				Variants:   payload.Variants,
				Provider:   c.Name(),
				TokensUsed: resp.Usage.TotalTokens,
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "openai", Err: err}
	}

	return out, nil
}
