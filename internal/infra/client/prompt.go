// Package client contains adapters for the external services the API
// depends on: copy providers, staging vendors, geocoders and MLS/CRM
// delivery.
package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

var tracer = otel.Tracer("client")

// copyPayload is the JSON shape both providers are instructed to return.
type copyPayload struct {
	Content  string   `json:"content"`
	Title    string   `json:"title,omitempty"`
	Variants []string `json:"variants,omitempty"`
}

// buildCopyPrompt renders the user prompt for a copy request. Both
// providers receive the same prompt so a fallback produces comparable
// output.
func buildCopyPrompt(req *domain.CopyRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write real estate listing copy for the property at %s.\n\n", req.Address)
	if req.County != "" {
		fmt.Fprintf(&b, "County: %s\n", req.County)
	}

	p := req.Property
	fmt.Fprintf(&b, "Property type: %s\n", p.PropertyType)
	fmt.Fprintf(&b, "Bedrooms: %d, Bathrooms: %g", p.Bedrooms, p.Bathrooms)
	if p.SquareFeet > 0 {
		fmt.Fprintf(&b, ", %d sqft", p.SquareFeet)
	}
	b.WriteString("\n")
	if p.LotSize != "" {
		fmt.Fprintf(&b, "Lot size: %s\n", p.LotSize)
	}
	if p.YearBuilt > 0 {
		fmt.Fprintf(&b, "Year built: %d\n", p.YearBuilt)
	}
	if p.Neighborhood != "" {
		fmt.Fprintf(&b, "Neighborhood: %s\n", p.Neighborhood)
	}
	if len(p.Features) > 0 {
		fmt.Fprintf(&b, "Features: %s\n", strings.Join(p.Features, ", "))
	}
	if p.Notes != "" {
		fmt.Fprintf(&b, "Agent notes: %s\n", p.Notes)
	}

	tone := req.Tone
	if tone == "" {
		tone = "professional"
	}
	fmt.Fprintf(&b, "\nTone: %s\n\n", tone)

	switch req.CopyType {
	case domain.CopyTypeMLS:
		fmt.Fprintf(&b, "Write an MLS public remarks description. Hard limit %d characters. "+
			"No agent contact info, no fair-housing violations, no showing instructions. "+
			"Respond as JSON: {\"content\": \"...\"}", domain.MLSMaxLength)
	case domain.CopyTypeAirbnb:
		b.WriteString("Write a short-term rental listing: a catchy title under 50 characters " +
			"and a guest-focused description covering the space, amenities and the area. " +
			"Respond as JSON: {\"title\": \"...\", \"content\": \"...\"}")
	case domain.CopyTypeSocial:
		b.WriteString("Write social media captions announcing this listing: one primary caption " +
			"with relevant hashtags plus two shorter variants. " +
			"Respond as JSON: {\"content\": \"...\", \"variants\": [\"...\", \"...\"]}")
	}

	return b.String()
}

const copySystemPrompt = "You are an expert real estate copywriter. " +
	"You write accurate, compelling listing copy from the facts provided and never invent " +
	"features that are not listed. You always respond with a single JSON object."

// parseCopyPayload decodes a provider response, tolerating markdown fences.
func parseCopyPayload(raw string) (*copyPayload, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload copyPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if payload.Content == "" {
		return nil, fmt.Errorf("provider response missing content")
	}
	return &payload, nil
}
