package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", Invalid("email", "bad"), http.StatusBadRequest},
		{"conflict", Conflict(CodeEmptyCart, "empty"), http.StatusConflict},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"unauthorized", Unauthorized("no"), http.StatusUnauthorized},
		{"forbidden", Forbidden("no"), http.StatusForbidden},
		{"external", External("gateway", errors.New("boom")), http.StatusBadGateway},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status())
		})
	}
}

func TestAsUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("reserve line: %w", InsufficientStock("Ankara fabric"))

	e := As(wrapped)
	assert.Equal(t, CodeInsufficientStock, e.Code)
	assert.Contains(t, e.Message, "Ankara fabric")
	assert.True(t, IsCode(wrapped, CodeInsufficientStock))
	assert.True(t, IsKind(wrapped, KindConflict))
}

func TestAsWrapsUnknownErrorsAsInternal(t *testing.T) {
	cause := errors.New("connection reset")

	e := As(cause)
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, "Internal server error", e.Message)
	assert.ErrorIs(t, e, cause)
}
