package domain

import "time"

// Token is an issued access/refresh pair. Only fingerprints are stored. A
// refresh rotates the pair: a new row is created and the old one revoked.
type Token struct {
	ID               string
	ClientID         string
	UserID           string
	AccessTokenHash  string
	RefreshTokenHash string
	Scope            []string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// AccessValid reports whether the access half is usable at t.
func (tok Token) AccessValid(t time.Time) bool {
	return tok.RevokedAt == nil && t.Before(tok.AccessExpiresAt)
}

// RefreshValid reports whether the refresh half is usable at t.
func (tok Token) RefreshValid(t time.Time) bool {
	return tok.RevokedAt == nil && t.Before(tok.RefreshExpiresAt)
}
