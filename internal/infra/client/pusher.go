package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/infra/resilience"
)

// HTTPPusher delivers listing payloads to user-configured MLS/CRM
// endpoints. Endpoints vary per integration, so there is no circuit
// breaker here; failures are recorded per delivery instead.
type HTTPPusher struct {
	httpClient *http.Client
	cfg        resilience.Config
}

// NewHTTPPusher creates a new HTTPPusher.
func NewHTTPPusher(httpClient *http.Client, cfg resilience.Config) *HTTPPusher {
	return &HTTPPusher{httpClient: httpClient, cfg: cfg}
}

// Push POSTs the payload to the endpoint and returns the response code.
func (p *HTTPPusher) Push(ctx context.Context, endpointURL, apiKey string, payload *domain.ListingPushPayload) (int, error) {
	ctx, span := tracer.Start(ctx, "HTTPPusher.Push")
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	var statusCode int
	err = resilience.RetryWithBackoff(ctx, p.cfg, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		if resp.StatusCode >= 500 {
			return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return statusCode, &domain.ErrExternalService{Service: "push", Err: err}
	}
	if statusCode >= 400 {
		return statusCode, fmt.Errorf("endpoint rejected payload with status %d", statusCode)
	}

	return statusCode, nil
}
