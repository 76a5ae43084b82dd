package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sumire/studenthub/internal/domain"
	"github.com/sumire/studenthub/internal/mailer"
)

const otpLength = 6

// IdentityStore is the durable account and challenge storage consumed by the
// auth services. It is the only shared mutable resource; multi-step mutations
// are atomic inside the store.
type IdentityStore interface {
	FindAccountByID(ctx context.Context, id int64) (*domain.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	ReplaceChallenge(ctx context.Context, ch *domain.OTPChallenge) error
	FindChallenge(ctx context.Context, email, code string) (*domain.OTPChallenge, error)
	CreateVerifiedSignup(ctx context.Context, challengeID int64, acct *domain.Account) (*domain.Account, error)
	CreateOAuthAccount(ctx context.Context, acct *domain.Account) (*domain.Account, error)
}

// AuthService issues and verifies email OTP challenges and completes
// password-based signups.
type AuthService struct {
	store  IdentityStore
	mail   mailer.Sender
	otpTTL time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(store IdentityStore, mail mailer.Sender, otpTTL time.Duration) *AuthService {
	return &AuthService{store: store, mail: mail, otpTTL: otpTTL}
}

// IssueChallenge generates a fresh OTP for the email, superseding any prior
// challenge, and mails it. A delivery failure leaves the challenge persisted
// and returns ErrDeliveryFailed so the caller can retry.
func (s *AuthService) IssueChallenge(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.ErrMissingFields
	}

	acct, err := s.store.FindAccountByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("look up account: %w", err)
	}
	if acct != nil && acct.EmailVerified {
		return domain.ErrAlreadyVerified
	}

	code, err := generateOTP()
	if err != nil {
		return fmt.Errorf("generate OTP: %w", err)
	}

	now := time.Now()
	ch := &domain.OTPChallenge{
		Email:     email,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.otpTTL),
	}
	if err := s.store.ReplaceChallenge(ctx, ch); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}

	body, err := renderOTPEmail(code, s.otpTTL)
	if err != nil {
		return fmt.Errorf("render OTP email: %w", err)
	}
	if err := s.mail.Send(ctx, email, "StudentHub - Verify Your Email", body); err != nil {
		slog.Warn("OTP delivery failed", "error", err)
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}

	slog.Info("OTP challenge issued", "email", email)
	return nil
}

// CompleteSignup consumes an unexpired challenge and creates a verified
// password account in a single transaction. The chosen username is taken
// verbatim; a collision fails with ErrUsernameTaken rather than auto-resolving.
func (s *AuthService) CompleteSignup(ctx context.Context, email, code, username, password string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	username = strings.TrimSpace(username)

	if email == "" || code == "" || username == "" || password == "" {
		return nil, domain.ErrMissingFields
	}

	ch, err := s.store.FindChallenge(ctx, email, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCode
		}
		return nil, fmt.Errorf("look up challenge: %w", err)
	}
	if ch.Expired(time.Now()) {
		return nil, domain.ErrCodeExpired
	}

	taken, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return nil, domain.ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	hashStr := string(hash)

	acct, err := s.store.CreateVerifiedSignup(ctx, ch.ID, &domain.Account{
		Username:      username,
		Email:         email,
		PasswordHash:  &hashStr,
		EmailVerified: true,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("signup completed", "account_id", acct.ID, "username", acct.Username)
	return acct, nil
}

// GetAccount retrieves an account by ID.
func (s *AuthService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.store.FindAccountByID(ctx, id)
}

// generateOTP returns a fixed-length numeric code from a cryptographically
// strong random source.
func generateOTP() (string, error) {
	var b strings.Builder
	for i := 0; i < otpLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

var otpEmailTmpl = template.Must(template.New("otp").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 500px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #4F46E5;">StudentHub Email Verification</h2>
    <p>Your verification code is:</p>
    <div style="background: #4F46E5; color: white; font-size: 32px; font-weight: bold; text-align: center; padding: 20px; border-radius: 10px; letter-spacing: 8px;">
        {{.Code}}
    </div>
    <p style="color: #666; margin-top: 20px;">This code expires in {{.Minutes}} minutes.</p>
    <p style="color: #999; font-size: 12px;">If you didn't request this, please ignore this email.</p>
</div>`))

func renderOTPEmail(code string, ttl time.Duration) (string, error) {
	var buf bytes.Buffer
	err := otpEmailTmpl.Execute(&buf, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(ttl.Minutes())})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
