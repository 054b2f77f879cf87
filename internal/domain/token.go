package domain

import "time"

// OAuthToken holds the stored token pair for a user. One row per user:
// issuing a new refresh token overwrites the previous one.
type OAuthToken struct {
	ID           int64
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthCode is a single-use authorization code. ConsumedAt is set by the
// conditional update that redeems it; a non-nil value permanently blocks
// further exchanges.
type AuthCode struct {
	ID          int64
	UserID      string
	ClientID    string
	Code        string
	RedirectURI string
	Scope       string
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
	CreatedAt   time.Time
}

// AuthSession is the short-lived handshake state between GET /authorize
// and the credential POST. It lives in the session store, never in
// Postgres, and is consumed exactly once.
type AuthSession struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	State       string    `json:"state"`
	Scope       string    `json:"scope"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session TTL has elapsed.
func (s AuthSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
