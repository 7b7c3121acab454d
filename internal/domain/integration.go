package domain

import "time"

// Integration kinds.
const (
	IntegrationMLS = "mls"
	IntegrationCRM = "crm"
)

// IntegrationConfig is a user-configured MLS/CRM connector.
type IntegrationConfig struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	Name        string    `json:"name"`
	EndpointURL string    `json:"endpoint_url"`
	APIKey      string    `json:"api_key,omitempty"` // write-only; masked on read
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PushRecord tracks one delivery of a generation to an external system.
type PushRecord struct {
	ID            string    `json:"id"`
	IntegrationID string    `json:"integration_id"`
	GenerationID  string    `json:"generation_id"`
	Status        string    `json:"status"` // delivered, failed
	ResponseCode  int       `json:"response_code"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// IntegrationRequest is the payload for creating/updating an integration.
type IntegrationRequest struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	EndpointURL string `json:"endpointUrl"`
	APIKey      string `json:"apiKey,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// PushRequest is the payload for POST /v1/integrations/{id}/push.
type PushRequest struct {
	GenerationID string `json:"generationId"`
}

// ListingPushPayload is the JSON body delivered to MLS/CRM endpoints.
type ListingPushPayload struct {
	Address     string          `json:"address"`
	Property    PropertyDetails `json:"property"`
	CopyType    string          `json:"copy_type"`
	Content     string          `json:"content"`
	Title       string          `json:"title,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
	Source      string          `json:"source"`
}
