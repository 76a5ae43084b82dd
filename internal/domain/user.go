package domain

import (
	"strings"
	"time"
)

// AuthProvider represents an OAuth provider.
type AuthProvider string

const (
	AuthProviderGitHub AuthProvider = "github"
	AuthProviderGoogle AuthProvider = "google"
)

// Account represents a registered user. PasswordHash is nil for OAuth-only
// accounts; OAuthProvider and OAuthID are nil for password accounts.
type Account struct {
	ID            int64         `json:"id" db:"id"`
	Username      string        `json:"username" db:"username"`
	Email         string        `json:"email" db:"email"`
	PasswordHash  *string       `json:"-" db:"password_hash"`
	EmailVerified bool          `json:"email_verified" db:"email_verified"`
	OAuthProvider *AuthProvider `json:"oauth_provider,omitempty" db:"oauth_provider"`
	OAuthID       *string       `json:"-" db:"oauth_id"`
	AvatarURL     *string       `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// NormalizeEmail lowercases and trims an email address. Every stored email
// and every email comparison goes through this first.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
