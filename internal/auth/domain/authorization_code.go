package domain

import "time"

// AuthorizationCode represents a single-use grant between login approval and
// token exchange. UsedAt transitions nil to non-nil exactly once.
type AuthorizationCode struct {
	ID                  string
	UserID              string
	ClientID            string
	CodeHash            string
	RedirectURI         string
	Scope               []string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}
