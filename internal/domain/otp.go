package domain

import "time"

// OTPChallenge is a pending email verification code. At most one unconsumed
// challenge exists per email; issuing a new one supersedes the old.
type OTPChallenge struct {
	ID        int64     `db:"id"`
	Email     string    `db:"email"`
	Code      string    `db:"code"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
	Verified  bool      `db:"verified"`
}

// Expired reports whether the challenge validity window has passed.
func (c OTPChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
