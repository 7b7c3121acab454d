package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/infra/resilience"
)

// StagingVendorClient talks to one external virtual-staging provider.
// Both the primary and the fallback vendor expose the same contract:
// POST /v1/jobs to submit, GET /v1/jobs/{id} to poll.
type StagingVendorClient struct {
	httpClient *http.Client
	name       string
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewStagingVendorClient creates a client for a named staging vendor.
func NewStagingVendorClient(httpClient *http.Client, name, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *StagingVendorClient {
	return &StagingVendorClient{
		httpClient: httpClient,
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
	}
}

func (c *StagingVendorClient) Name() string { return c.name }

type vendorSubmitRequest struct {
	ImageURL string `json:"image_url"`
	RoomType string `json:"room_type"`
	Style    string `json:"style"`
}

type vendorSubmitResponse struct {
	JobID string `json:"job_id"`
}

type vendorStatusResponse struct {
	Status    string `json:"status"`
	ResultURL string `json:"result_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Submit sends an image for staging and returns the vendor's job handle.
func (c *StagingVendorClient) Submit(ctx context.Context, imageURL, roomType, style string) (*domain.VendorSubmission, error) {
	ctx, span := tracer.Start(ctx, "StagingVendorClient.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("vendor.name", c.name))

	var submitted vendorSubmitResponse

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(vendorSubmitRequest{
				ImageURL: imageURL,
				RoomType: roomType,
				Style:    style,
			})
			if err != nil {
				return err
			}

			endpoint := fmt.Sprintf("%s/v1/jobs", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("vendor %s returned status %d", c.name, resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&submitted)
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "staging/" + c.name, Err: err}
	}
	if submitted.JobID == "" {
		return nil, &domain.ErrExternalService{Service: "staging/" + c.name, Err: fmt.Errorf("vendor accepted job without an id")}
	}

	return &domain.VendorSubmission{VendorJobID: submitted.JobID}, nil
}

// Status polls the vendor for a submitted job.
func (c *StagingVendorClient) Status(ctx context.Context, vendorJobID string) (*domain.VendorStatus, error) {
	ctx, span := tracer.Start(ctx, "StagingVendorClient.Status")
	defer span.End()
	span.SetAttributes(attribute.String("vendor.name", c.name))

	var status vendorStatusResponse

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			endpoint := fmt.Sprintf("%s/v1/jobs/%s", c.baseURL, url.PathEscape(vendorJobID))
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				// A vendor that lost the job is treated as a job error,
				// not a transport failure, so the poller can requeue.
				status = vendorStatusResponse{Status: domain.VendorStatusError, Error: "job not found at vendor"}
				return nil
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("vendor %s returned status %d", c.name, resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&status)
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "staging/" + c.name, Err: err}
	}

	return &domain.VendorStatus{
		Status:    status.Status,
		ResultURL: status.ResultURL,
		Error:     status.Error,
	}, nil
}
