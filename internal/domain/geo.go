package domain

// GeoResult is a normalized geocoding answer, provider-agnostic.
type GeoResult struct {
	Formatted string  `json:"formatted"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	County    string  `json:"county,omitempty"`
	Accurate  bool    `json:"accurate"`
	Provider  string  `json:"provider"` // geocodio | google
}
