package domain

import "time"

// APIKey is a long-lived static credential issued out of band. Keys are
// soft-revoked, never hard-deleted.
type APIKey struct {
	ID         string
	Prefix     string // first characters of the key, for indexed lookup
	KeyHash    string // "pbkdf2$salt$digest" or a legacy bare sha256 hex digest
	UserID     string
	RevokedAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}
