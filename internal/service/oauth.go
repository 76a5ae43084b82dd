package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	googleOAuth "golang.org/x/oauth2/google"

	"github.com/sumire/studenthub/internal/domain"
)

// Profile is the normalized identity returned by a provider after a completed
// handshake. Name is the provider's preferred handle, already shaped for use
// as a username base, and may be empty.
type Profile struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
}

// Provider completes the code-for-profile half of an OAuth login.
type Provider interface {
	Name() domain.AuthProvider
	AuthCodeURL(state string) string
	FetchProfile(ctx context.Context, code string) (*Profile, error)
}

// OAuthConfig holds per-provider client credentials.
type OAuthConfig struct {
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string

	// BaseURL is this server's external address; redirect URIs are derived
	// from it.
	BaseURL string
}

// OAuthService completes third-party logins: it exchanges authorization codes
// for profiles and performs find-or-create against the identity store.
type OAuthService struct {
	store     IdentityStore
	providers map[domain.AuthProvider]Provider
}

// NewOAuthService creates an OAuthService with GitHub and Google adapters
// built from the given config.
func NewOAuthService(store IdentityStore, cfg OAuthConfig) *OAuthService {
	client := &http.Client{Timeout: 10 * time.Second}

	gh := &githubProvider{
		cfg: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"user:email"},
			RedirectURL:  cfg.BaseURL + "/auth/github/callback",
		},
		client: client,
	}
	gg := &googleProvider{
		cfg: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     googleOAuth.Endpoint,
			Scopes:       []string{"openid", "profile", "email"},
			RedirectURL:  cfg.BaseURL + "/auth/google/callback",
		},
		client: client,
	}

	return &OAuthService{
		store: store,
		providers: map[domain.AuthProvider]Provider{
			gh.Name(): gh,
			gg.Name(): gg,
		},
	}
}

// Provider returns the adapter for the named provider.
func (s *OAuthService) Provider(name domain.AuthProvider) (Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// CompleteLogin finishes an OAuth callback: fetches the profile, then finds
// the account by email or creates one with a collision-free username. An
// existing account is returned verbatim; no retroactive provider linkage is
// written.
func (s *OAuthService) CompleteLogin(ctx context.Context, name domain.AuthProvider, code string) (*domain.Account, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	profile, err := p.FetchProfile(ctx, code)
	if err != nil {
		return nil, err
	}

	email := domain.NormalizeEmail(profile.Email)
	if email == "" {
		return nil, domain.ErrNoEmail
	}

	acct, err := s.store.FindAccountByEmail(ctx, email)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("look up account: %w", err)
	}

	base := profile.Name
	if base == "" {
		base, _, _ = strings.Cut(email, "@")
	}

	// Concurrent callbacks race on the unique constraints: an email loser
	// adopts the winner's account, a username loser re-resolves.
	for attempt := 0; attempt < 3; attempt++ {
		username, err := ResolveUsername(ctx, base, s.store.UsernameExists)
		if err != nil {
			return nil, err
		}

		created, err := s.store.CreateOAuthAccount(ctx, &domain.Account{
			Username:      username,
			Email:         email,
			EmailVerified: true,
			OAuthProvider: &name,
			OAuthID:       &profile.ID,
			AvatarURL:     optional(profile.AvatarURL),
		})
		switch {
		case err == nil:
			slog.Info("oauth account created", "provider", name, "account_id", created.ID, "username", created.Username)
			return created, nil
		case errors.Is(err, domain.ErrEmailTaken):
			return s.store.FindAccountByEmail(ctx, email)
		case errors.Is(err, domain.ErrUsernameTaken):
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("create oauth account for %s: %w", name, domain.ErrConflict)
}

type githubProvider struct {
	cfg    *oauth2.Config
	client *http.Client
}

func (p *githubProvider) Name() domain.AuthProvider { return domain.AuthProviderGitHub }

func (p *githubProvider) AuthCodeURL(state string) string { return p.cfg.AuthCodeURL(state) }

// FetchProfile exchanges the code and loads the GitHub profile. The profile
// endpoint may omit the email, in which case the account's email list is
// consulted for the primary address.
func (p *githubProvider) FetchProfile(ctx context.Context, code string) (*Profile, error) {
	// Exchange resolves its HTTP client through the context; without this it
	// would fall back to http.DefaultClient, which has no timeout.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: github: %v", domain.ErrTokenExchange, err)
	}

	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := p.get(ctx, "https://api.github.com/user", token.AccessToken, &user); err != nil {
		return nil, fmt.Errorf("%w: github profile: %v", domain.ErrTokenExchange, err)
	}

	email := user.Email
	if email == "" {
		email, err = p.primaryEmail(ctx, token.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	return &Profile{
		ID:        strconv.FormatInt(user.ID, 10),
		Email:     email,
		Name:      user.Login,
		AvatarURL: user.AvatarURL,
	}, nil
}

func (p *githubProvider) primaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := p.get(ctx, "https://api.github.com/user/emails", accessToken, &emails); err != nil {
		return "", fmt.Errorf("%w: github emails: %v", domain.ErrTokenExchange, err)
	}

	for _, e := range emails {
		if e.Primary {
			return e.Email, nil
		}
	}
	return "", domain.ErrNoEmail
}

func (p *githubProvider) get(ctx context.Context, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type googleProvider struct {
	cfg    *oauth2.Config
	client *http.Client
}

func (p *googleProvider) Name() domain.AuthProvider { return domain.AuthProviderGoogle }

func (p *googleProvider) AuthCodeURL(state string) string { return p.cfg.AuthCodeURL(state) }

// FetchProfile exchanges the code and reads the OpenID claims embedded in the
// token response. The id_token arrives straight from Google's token endpoint
// over TLS, so its signature is not re-verified locally.
func (p *googleProvider) FetchProfile(ctx context.Context, code string) (*Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: google: %v", domain.ErrTokenExchange, err)
	}

	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return nil, fmt.Errorf("%w: google: token response has no id_token", domain.ErrTokenExchange)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: google: parse id_token: %v", domain.ErrTokenExchange, err)
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return nil, domain.ErrNoEmail
	}
	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)

	return &Profile{
		ID:        sub,
		Email:     email,
		Name:      strings.ToLower(strings.ReplaceAll(name, " ", "_")),
		AvatarURL: picture,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
