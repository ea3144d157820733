package models

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// TeamRole is a membership role inside a team. Any role grants read access
// to the team's files; owner, admin and member all grant write access.
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleAdmin  TeamRole = "admin"
	TeamRoleMember TeamRole = "member"
)

type TeamMember struct {
	TeamID    string
	UserID    string
	Role      TeamRole
	CreatedAt time.Time
}
