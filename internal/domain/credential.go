package domain

import "time"

// RefreshCredential is a long-lived opaque secret that can mint new access
// tokens for Owner until ExpiresAt. It is never mutated after creation.
type RefreshCredential struct {
	Token     string    `json:"-"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpiredAt reports whether the credential is unusable at now.
func (c *RefreshCredential) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AccessToken is a signed token and the instant it stops being accepted.
type AccessToken struct {
	Value     string    `json:"access_token"`
	ExpiresAt time.Time `json:"access_token_expires_at"`
}

// TokenPair is returned by login.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}
