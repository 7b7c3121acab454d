// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

// CopyGenerator produces listing copy from normalized property inputs.
// Implemented by the OpenAI and Gemini clients.
type CopyGenerator interface {
	GenerateCopy(ctx context.Context, req *domain.CopyRequest) (*domain.CopyResult, error)
	Name() string
}

// StagingVendor is one external virtual-staging provider.
type StagingVendor interface {
	Submit(ctx context.Context, imageURL, roomType, style string) (*domain.VendorSubmission, error)
	Status(ctx context.Context, vendorJobID string) (*domain.VendorStatus, error)
	Name() string
}

// Geocoder resolves a free-form address.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (*domain.GeoResult, error)
	Name() string
}

// ListingPusher delivers a generation payload to an external MLS/CRM endpoint.
type ListingPusher interface {
	Push(ctx context.Context, endpointURL, apiKey string, payload *domain.ListingPushPayload) (int, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
