package domain

import "time"

// Copy types supported by the generator.
const (
	CopyTypeMLS    = "mls"
	CopyTypeAirbnb = "airbnb"
	CopyTypeSocial = "social"
)

// MLSMaxLength is the hard character cap most MLS boards enforce on
// public remarks. Longer output is truncated on a word boundary.
const MLSMaxLength = 1000

// PropertyDetails describes the listing being written about.
type PropertyDetails struct {
	PropertyType string   `json:"property_type"` // single_family, condo, townhouse, land, multi_family
	Bedrooms     int      `json:"bedrooms"`
	Bathrooms    float64  `json:"bathrooms"`
	SquareFeet   int      `json:"square_feet"`
	LotSize      string   `json:"lot_size,omitempty"`
	YearBuilt    int      `json:"year_built,omitempty"`
	Features     []string `json:"features,omitempty"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// Generation is a stored AI-produced listing description tied to a user/address.
type Generation struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	TeamID       string          `json:"team_id,omitempty"`
	Address      string          `json:"address"`
	FormattedAddress string      `json:"formatted_address,omitempty"`
	Latitude     float64         `json:"latitude,omitempty"`
	Longitude    float64         `json:"longitude,omitempty"`
	GeoAccurate  bool            `json:"geo_accurate"`
	Property     PropertyDetails `json:"property"`
	CopyType     string          `json:"copy_type"`
	Tone         string          `json:"tone,omitempty"`
	Content      string          `json:"content"`
	Title        string          `json:"title,omitempty"`      // airbnb only
	Variants     []string        `json:"variants,omitempty"`   // social only
	Provider     string          `json:"provider"` // openai | gemini
	TokensUsed   int             `json:"tokens_used"`
	StagedImageURL string        `json:"staged_image_url,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// GenerateRequest is the payload for POST /v1/generations.
type GenerateRequest struct {
	Address  string          `json:"address"`
	Property PropertyDetails `json:"property"`
	CopyType string          `json:"copyType"`
	Tone     string          `json:"tone,omitempty"`
}

// CopyRequest is what the copy provider clients receive: the normalized
// inputs after geocoding and validation.
type CopyRequest struct {
	Address  string
	County   string
	Property PropertyDetails
	CopyType string
	Tone     string
}

// CopyResult is the provider-agnostic output of a copy generation call.
type CopyResult struct {
	Content    string
	Title      string
	Variants   []string
	Provider   string
	TokensUsed int
}
