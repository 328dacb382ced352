package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hogliux/collect/internal/domain"
)

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	tests := []struct {
		name       string
		err        *Error
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", ValidationError("bad action"), TypeValidation, http.StatusBadRequest},
		{"forbidden", ForbiddenError("admin locked"), TypeForbidden, http.StatusForbidden},
		{"not found", NotFoundError("no such instance"), TypeNotFound, http.StatusNotFound},
		{"conflict", ConflictError("busy"), TypeConflict, http.StatusConflict},
		{"rate limited", RateLimitedError("slow down"), TypeRateLimited, http.StatusTooManyRequests},
		{"internal", InternalError("store failed", cause), TypeInternal, http.StatusInternalServerError},
		{"external", ExternalError("server failed", cause), TypeExternal, http.StatusBadGateway},
		{"unavailable", UnavailableError("offline", cause), TypeUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus())
			assert.NotNil(t, tt.err.Context)
			assert.Contains(t, tt.err.Error(), string(tt.wantType))
		})
	}
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "validation: bad input", ValidationError("bad input").Error())
	assert.Equal(t, "internal: wrapper: root", InternalError("wrapper", errors.New("root")).Error())
}

func TestWithContext(t *testing.T) {
	err := (&Error{Type: TypeValidation, Message: "bad"}).
		WithContext("field", "actions").
		WithContext("field", "action")

	assert.Equal(t, map[string]any{"field": "action"}, err.Context)
	assert.Equal(t, "action", err.ToResponse().Context["field"])
}

func TestUnwrapAndIs(t *testing.T) {
	root := errors.New("root")
	err := InternalError("wrapped", root)

	assert.Equal(t, root, errors.Unwrap(err))
	assert.ErrorIs(t, err, root)
	assert.Nil(t, errors.Unwrap(ValidationError("x")))
}

func TestAsStructuredError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
		wantMsg  string
	}{
		{"structured passes through", NotFoundError("gone"), TypeNotFound, "gone"},
		{"wrapped structured", fmt.Errorf("ctx: %w", ConflictError("busy")), TypeConflict, "busy"},
		{"no connection", fmt.Errorf("start: %w", domain.ErrNoConnection), TypeUnavailable, "no network connection"},
		{"instance missing", domain.ErrInstanceNotFound, TypeNotFound, "instance not found"},
		{"admin password", domain.ErrAdminPassword, TypeForbidden, "admin password incorrect"},
		{"rate limited", domain.ErrTooManyAttempts, TypeRateLimited, "too many password attempts"},
		{"manifest error", &domain.ManifestError{Message: "Form list unavailable"}, TypeExternal, "Form list unavailable"},
		{"plain error", errors.New("boom"), TypeInternal, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsStructuredError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantMsg, got.Message)
		})
	}

	assert.Nil(t, AsStructuredError(nil))
}

func TestHTTPStatusUnknownType(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, (&Error{Type: "mystery"}).HTTPStatus())
}
