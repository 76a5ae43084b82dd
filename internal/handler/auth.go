package handler

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/studenthub/internal/domain"
	"github.com/sumire/studenthub/internal/service"
)

const (
	sessionCookie = "studenthub_session"
	stateCookie   = "oauth_state"
)

// AuthHandler handles the authentication endpoints.
type AuthHandler struct {
	auth        *service.AuthService
	oauth       *service.OAuthService
	sessions    *service.SessionManager
	frontendURL string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService, oauth *service.OAuthService, sessions *service.SessionManager, frontendURL string) *AuthHandler {
	return &AuthHandler{auth: auth, oauth: oauth, sessions: sessions, frontendURL: frontendURL}
}

// SendOTP issues an email verification challenge.
func (h *AuthHandler) SendOTP(c echo.Context) error {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.auth.IssueChallenge(c.Request().Context(), req.Email); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "OTP sent successfully"})
}

// VerifyOTP completes a signup and establishes a session.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		OTP      string `json:"otp" validate:"required"`
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	acct, err := h.auth.CompleteSignup(c.Request().Context(), req.Email, req.OTP, req.Username, req.Password)
	if err != nil {
		return err
	}

	if err := h.login(c, acct.ID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Account created successfully",
		"user":    acct,
	})
}

// GitHubRedirect sends the browser to GitHub's consent page.
func (h *AuthHandler) GitHubRedirect(c echo.Context) error {
	return h.redirectToProvider(c, domain.AuthProviderGitHub)
}

// GoogleRedirect sends the browser to Google's consent page.
func (h *AuthHandler) GoogleRedirect(c echo.Context) error {
	return h.redirectToProvider(c, domain.AuthProviderGoogle)
}

// GitHubCallback handles the OAuth callback from GitHub.
func (h *AuthHandler) GitHubCallback(c echo.Context) error {
	return h.callback(c, domain.AuthProviderGitHub)
}

// GoogleCallback handles the OAuth callback from Google.
func (h *AuthHandler) GoogleCallback(c echo.Context) error {
	return h.callback(c, domain.AuthProviderGoogle)
}

func (h *AuthHandler) redirectToProvider(c echo.Context, name domain.AuthProvider) error {
	p, ok := h.oauth.Provider(name)
	if !ok {
		return domain.ErrNotFound
	}

	state, err := generateState()
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
	return c.Redirect(http.StatusTemporaryRedirect, p.AuthCodeURL(state))
}

// callback finishes the provider handshake. The browser is mid-navigation, so
// every failure degrades to a redirect carrying an error code instead of a
// JSON body.
func (h *AuthHandler) callback(c echo.Context, name domain.AuthProvider) error {
	if err := h.validateState(c); err != nil {
		return h.errorRedirect(c, name, "oauth_failed", err)
	}

	code := c.QueryParam("code")
	if code == "" {
		return h.errorRedirect(c, name, "oauth_failed", fmt.Errorf("missing code parameter"))
	}

	acct, err := h.oauth.CompleteLogin(c.Request().Context(), name, code)
	if err != nil {
		if errors.Is(err, domain.ErrNoEmail) {
			return h.errorRedirect(c, name, "no_email", err)
		}
		return h.errorRedirect(c, name, "oauth_failed", err)
	}

	if err := h.login(c, acct.ID); err != nil {
		return h.errorRedirect(c, name, "oauth_failed", err)
	}

	return c.Redirect(http.StatusTemporaryRedirect, h.frontendURL+"?login=success")
}

// Me returns the current account, or 401 with a null user when no session is
// active.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := GetAccountID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]any{"user": nil})
	}

	acct, err := h.auth.GetAccount(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, map[string]any{"user": nil})
		}
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"user": acct})
}

// Logout clears the session cookie. Calling it without a session is not an
// error.
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) login(c echo.Context, accountID int64) error {
	token, err := h.sessions.Issue(accountID)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessions.TTL().Seconds()),
	})
	return nil
}

func (h *AuthHandler) errorRedirect(c echo.Context, name domain.AuthProvider, code string, err error) error {
	slog.Warn("oauth callback failed", "provider", name, "error", err)
	return c.Redirect(http.StatusTemporaryRedirect, h.frontendURL+"/login?error="+code)
}

func (h *AuthHandler) validateState(c echo.Context) error {
	cookie, err := c.Cookie(stateCookie)
	if err != nil {
		return fmt.Errorf("missing %s cookie", stateCookie)
	}

	state := c.QueryParam("state")
	if state == "" || state != cookie.Value {
		return fmt.Errorf("state mismatch")
	}
	return nil
}

// generateState returns an unpredictable CSRF state. A failed random read
// aborts the redirect; a guessable state must never reach the provider.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
