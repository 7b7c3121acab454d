package client

import (
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

// GeocodioClient is the primary geocoder.
type GeocodioClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewGeocodioClient creates a new GeocodioClient. baseURL is overridable
// for tests; pass "" for the production endpoint.
func NewGeocodioClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *GeocodioClient {
	if baseURL == "" {
		baseURL = "https://api.geocod.io/v1.7"
	}
	return &GeocodioClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
	}
}

func (c *GeocodioClient) Name() string { return "geocodio" }

type geocodioResponse struct {
	Results []struct {
		FormattedAddress string  `json:"formatted_address"`
		Accuracy         float64 `json:"accuracy"`
		Location         struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		AddressComponents struct {
			County string `json:"county"`
		} `json:"address_components"`
	} `json:"results"`
}

// Resolve geocodes a free-form address.
func (c *GeocodioClient) Resolve(ctx context.Context, address string) (*domain.GeoResult, error) {
	ctx, span := tracer.Start(ctx, "GeocodioClient.Resolve")
	defer span.End()

	var decoded geocodioResponse

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			endpoint := fmt.Sprintf("%s/geocode?q=%s&api_key=%s&limit=1",
				c.baseURL, url.QueryEscape(address), url.QueryEscape(c.apiKey))
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("geocodio returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&decoded)
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "geocodio", Err: err}
	}
	if len(decoded.Results) == 0 {
		return nil, &domain.ErrNotFound{Resource: "address", ID: address}
	}

	r := decoded.Results[0]
	span.SetAttributes(attribute.Float64("geo.accuracy", r.Accuracy))

	return &domain.GeoResult{
		Formatted: r.FormattedAddress,
		Latitude:  r.Location.Lat,
		Longitude: r.Location.Lng,
		County:    r.AddressComponents.County,
		Accurate:  r.Accuracy >= 0.8,
		Provider:  c.Name(),
	}, nil
}

// GoogleMapsClient is the fallback geocoder.
type GoogleMapsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewGoogleMapsClient creates a new GoogleMapsClient. baseURL is
// overridable for tests; pass "" for the production endpoint.
func NewGoogleMapsClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *GoogleMapsClient {
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com/maps/api"
	}
	return &GoogleMapsClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
	}
}

func (c *GoogleMapsClient) Name() string { return "google" }

type googleGeocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			LocationType string `json:"location_type"`
			Location     struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// Resolve geocodes a free-form address via the Google Geocoding API.
func (c *GoogleMapsClient) Resolve(ctx context.Context, address string) (*domain.GeoResult, error) {
	ctx, span := tracer.Start(ctx, "GoogleMapsClient.Resolve")
	defer span.End()

	var decoded googleGeocodeResponse

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			endpoint := fmt.Sprintf("%s/geocode/json?address=%s&key=%s",
				c.baseURL, url.QueryEscape(address), url.QueryEscape(c.apiKey))
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("google geocoding returned status %d", resp.StatusCode)
			}

			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				return err
			}
			if decoded.Status != "OK" && decoded.Status != "ZERO_RESULTS" {
				return fmt.Errorf("google geocoding status %s", decoded.Status)
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "google-maps", Err: err}
	}
	if len(decoded.Results) == 0 {
		return nil, &domain.ErrNotFound{Resource: "address", ID: address}
	}

	r := decoded.Results[0]
	county := ""
	for _, comp := range r.AddressComponents {
		for _, t := range comp.Types {
			if t == "administrative_area_level_2" {
				county = comp.LongName
			}
		}
	}

	return &domain.GeoResult{
		Formatted: r.FormattedAddress,
		Latitude:  r.Geometry.Location.Lat,
		Longitude: r.Geometry.Location.Lng,
		County:    county,
		Accurate:  r.Geometry.LocationType == "ROOFTOP" || r.Geometry.LocationType == "RANGE_INTERPOLATED",
		Provider:  c.Name(),
	}, nil
}
