package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	identitydomain "github.com/slipvault/slipvault/internal/identity/domain"
	slipdomain "github.com/slipvault/slipvault/internal/slip/domain"
	"github.com/slipvault/slipvault/internal/vision"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var extractionErr *vision.ExtractionError
	if errors.As(err, &extractionErr) {
		return http.StatusBadGateway, errorPayload{
			Type:    "extraction_failed",
			Message: extractionErr.Reason,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identitydomain.ErrInvalidCredentials),
		errors.Is(err, identitydomain.ErrSessionInvalid):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, slipdomain.ErrUnauthorized):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, slipdomain.ErrNotFound),
		errors.Is(err, identitydomain.ErrUserNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, slipdomain.ErrTitleRequired):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "title", Code: "title_required", Message: "title is required"},
			},
		}
	case errors.Is(err, identitydomain.ErrPasswordMismatch):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "confirm_password", Code: "password_mismatch", Message: "passwords do not match"},
			},
		}
	case errors.Is(err, identitydomain.ErrPasswordTooShort):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "password", Code: "password_too_short", Message: "password must be at least 6 characters"},
			},
		}
	case errors.Is(err, identitydomain.ErrInvalidRole):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "role", Code: "invalid_role", Message: "invalid role"},
			},
		}
	case errors.Is(err, identitydomain.ErrEmailTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "email already registered",
		}
	case errors.Is(err, identitydomain.ErrAlreadyInCompany):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "user already belongs to a company",
		}
	case errors.Is(err, identitydomain.ErrNotInCompany):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "user is not a member of the company",
		}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, slipdomain.ErrInvalidActor):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}
