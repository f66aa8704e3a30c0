package domain

import "time"

// MagicLink is a single-use admin login token. The raw token is only ever
// held in memory long enough to email it; the store keeps the SHA-256 hash.
type MagicLink struct {
	ID        string     `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	TokenHash string     `json:"-" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the link is past its window at the given instant.
func (m *MagicLink) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// Used reports whether the link has already been redeemed.
func (m *MagicLink) Used() bool {
	return m.UsedAt != nil
}

// AdminSession is the server-side session minted when a magic link is
// redeemed. The cookie value is the session token; the store keeps its hash.
type AdminSession struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the session is past its lifetime.
func (s *AdminSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
