package domain

import "time"

// Usage event types.
const (
	EventGeneration = "generation"
	EventStaging    = "staging"
	EventBulk       = "bulk"
)

// UsageEvent is one recorded billable action.
type UsageEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TeamID    string    `json:"team_id,omitempty"`
	EventType string    `json:"event_type"`
	CopyType  string    `json:"copy_type,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyCount is one day of the analytics series.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// AnalyticsSummary is returned by GET /v1/analytics/summary.
type AnalyticsSummary struct {
	Period       string         `json:"period"`
	TotalEvents  int            `json:"total_events"`
	CreditsSpent int            `json:"credits_spent"`
	ByEventType  map[string]int `json:"by_event_type"`
	ByCopyType   map[string]int `json:"by_copy_type"`
	ByProvider   map[string]int `json:"by_provider"`
	Daily        []DailyCount   `json:"daily"`
}

// TeamAnalytics is returned by GET /v1/analytics/team/{id}.
type TeamAnalytics struct {
	TeamID       string      `json:"team_id"`
	Period       string      `json:"period"`
	TotalEvents  int         `json:"total_events"`
	CreditsSpent int         `json:"credits_spent"`
	Members      []TeamUsage `json:"members"`
}
