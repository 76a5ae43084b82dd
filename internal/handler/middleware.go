package handler

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/studenthub/internal/service"
)

const contextKeyAccountID = "account_id"

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", c.RealIP(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)

			return err
		}
	}
}

// Session reads the session cookie, verifies it and binds the account ID to
// the request context. Requests without a valid session pass through
// unauthenticated; handlers decide whether that is an error.
func Session(sessions *service.SessionManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(sessionCookie)
			if err != nil || cookie.Value == "" {
				return next(c)
			}

			accountID, err := sessions.Verify(cookie.Value)
			if err != nil {
				return next(c)
			}

			c.Set(contextKeyAccountID, accountID)
			return next(c)
		}
	}
}

// GetAccountID extracts the authenticated account ID from the echo context.
func GetAccountID(c echo.Context) (int64, bool) {
	id, ok := c.Get(contextKeyAccountID).(int64)
	return id, ok
}
