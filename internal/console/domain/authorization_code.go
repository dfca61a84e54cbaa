package domain

import "time"

// AuthorizationCode is the single-use, short-lived artifact that hands a
// signed-in identity to a second trusted application without putting
// long-lived tokens in a URL.
type AuthorizationCode struct {
	Subject        string    `json:"subject"`
	RedirectTarget string    `json:"redirect_target"`
	ExpiresAt      time.Time `json:"expires_at"`
}
