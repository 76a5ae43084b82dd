package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/studenthub/internal/domain"
)

// APIError represents an error in the API response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// HTTPErrorHandler is the global error handler for echo.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, apiErr := mapError(err)
	if jsonErr := c.JSON(status, map[string]any{"error": apiErr}); jsonErr != nil {
		slog.Error("failed to send error response", "error", jsonErr)
	}
}

func mapError(err error) (int, APIError) {
	// Handle echo's own HTTP errors (404, 405, etc.)
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, APIError{
			Code:    http.StatusText(echoErr.Code),
			Message: msg,
		}
	}

	switch {
	case errors.Is(err, domain.ErrMissingFields):
		return http.StatusBadRequest, APIError{
			Code:    "missing_fields",
			Message: "All fields are required",
		}
	case errors.Is(err, domain.ErrAlreadyVerified):
		return http.StatusBadRequest, APIError{
			Code:    "email_registered",
			Message: "Email already registered",
		}
	case errors.Is(err, domain.ErrInvalidCode):
		return http.StatusBadRequest, APIError{
			Code:    "invalid_otp",
			Message: "Invalid OTP",
		}
	case errors.Is(err, domain.ErrCodeExpired):
		return http.StatusBadRequest, APIError{
			Code:    "otp_expired",
			Message: "OTP expired",
		}
	case errors.Is(err, domain.ErrUsernameTaken):
		return http.StatusBadRequest, APIError{
			Code:    "username_taken",
			Message: "Username already taken",
		}
	case errors.Is(err, domain.ErrEmailTaken):
		return http.StatusBadRequest, APIError{
			Code:    "email_registered",
			Message: "Email already registered",
		}
	case errors.Is(err, domain.ErrDeliveryFailed):
		return http.StatusInternalServerError, APIError{
			Code:    "delivery_failed",
			Message: "Failed to send OTP. Check email configuration.",
		}
	case errors.Is(err, domain.ErrNoEmail), errors.Is(err, domain.ErrTokenExchange):
		return http.StatusBadGateway, APIError{
			Code:    "upstream_error",
			Message: "The identity provider request failed",
		}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "The requested resource was not found",
		}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, APIError{
			Code:    "unauthorized",
			Message: "Authentication is required",
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, APIError{
			Code:    "invalid_input",
			Message: "The request body is invalid",
		}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, APIError{
			Code:    "conflict",
			Message: "The resource already exists or conflicts with current state",
		}
	default:
		var validationErrs domain.ValidationErrors
		if errors.As(err, &validationErrs) {
			details := make([]FieldError, 0, len(validationErrs))
			for _, fe := range validationErrs {
				details = append(details, FieldError{Field: fe.Field, Message: fe.Message})
			}
			return http.StatusBadRequest, APIError{
				Code:    "validation_error",
				Message: "Validation failed",
				Details: details,
			}
		}

		slog.Error("unhandled error", "error", err)
		return http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "An unexpected error occurred",
		}
	}
}
