package domain

import "time"

// Connection statuses.
const (
	ConnectionActive = "active"
	ConnectionFailed = "failed" // terminal: user must re-authenticate upstream
)

// Connection links one user to one upstream accounting account. Provider
// tokens are encrypted at rest; every successful refresh mutates the row.
type Connection struct {
	ID             string
	UserID         string
	AccessToken    string // encrypted at rest
	RefreshToken   string // encrypted at rest
	Region         string
	Division       string
	TokenExpiresAt time.Time
	Status         string
	RetryCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
