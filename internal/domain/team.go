package domain

import "time"

// Team member roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// InviteTTL is how long a team invite token stays valid.
const InviteTTL = 7 * 24 * time.Hour

// Team is a brokerage or agent team sharing one credit pool.
type Team struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamMember links a user to a team with a role.
type TeamMember struct {
	TeamID   string    `json:"team_id"`
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// TeamInvite is a pending email invitation to join a team.
type TeamInvite struct {
	ID         string     `json:"id"`
	TeamID     string     `json:"team_id"`
	Email      string     `json:"email"`
	Token      string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TeamUsage is one member's generation count for the current cycle.
type TeamUsage struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Generations int    `json:"generations"`
	Credits     int    `json:"credits"`
}

// CreateTeamRequest is the payload for POST /v1/teams.
type CreateTeamRequest struct {
	Name string `json:"name"`
}

// InviteRequest is the payload for POST /v1/teams/{id}/invites.
type InviteRequest struct {
	Email string `json:"email"`
}

// AcceptInviteRequest is the payload for POST /v1/teams/invites/accept.
type AcceptInviteRequest struct {
	Token string `json:"token"`
}
