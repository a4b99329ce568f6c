package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		retryable bool
	}{
		{name: "internal", err: ErrInternal, retryable: true},
		{name: "unavailable", err: ErrServiceUnavailable, retryable: true},
		{name: "validation", err: ErrValidation, retryable: false},
		{name: "not found", err: ErrNotFound, retryable: false},
		{name: "invalid rule", err: ErrInvalidRule, retryable: false},
		{name: "invalid event", err: ErrInvalidEvent, retryable: false},
		{name: "forced fatal", err: ErrInternal.AsFatal(), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
			assert.Equal(t, !tt.retryable, tt.err.IsFatal())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.False(t, IsRetryable(fmt.Errorf("decode: %w", ErrInvalidEvent)))
	assert.True(t, IsRetryable(fmt.Errorf("insert run: %w", ErrInternal.WithCause(errors.New("boom")))))
}

func TestWithDetail_DoesNotMutateSentinel(t *testing.T) {
	err := ErrNotFound.WithDetail("run_id", "r-1")

	assert.Equal(t, "r-1", err.Details["run_id"])
	assert.NotContains(t, ErrNotFound.Details, "run_id")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrValidation.WithDetail("field", "eventType"))
	assert.Equal(t, "VALIDATION_ERROR", resp["error_code"])
	assert.Equal(t, map[string]interface{}{"field": "eventType"}, resp["details"])

	resp = ToErrorResponse(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])

	assert.Equal(t, http.StatusUnprocessableEntity, ToHTTPStatus(ErrInvalidRule))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errors.New("boom")))
}

func TestRecoverPanic(t *testing.T) {
	assert.NoError(t, RecoverPanic(nil))

	err := RecoverPanic("bad state")
	require.Error(t, err)

	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.True(t, appErr.IsFatal())
	assert.Equal(t, true, appErr.Details["panic"])
	assert.NotEmpty(t, appErr.Details["stack_trace"])
	assert.Contains(t, err.Error(), "panic: bad state")

	cause := errors.New("nil map write")
	assert.ErrorIs(t, RecoverPanic(cause), cause)
}
