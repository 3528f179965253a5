package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	err := NewAPIError(ErrNotFound, "integration not found", nil)
	assert.Equal(t, ErrNotFound, err.Code)
	assert.Equal(t, "NOT_FOUND: integration not found", err.Error())
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		code   ErrorCode
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrBadRequest, http.StatusBadRequest},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrInvalidSignature, http.StatusForbidden},
		{ErrStaleTimestamp, http.StatusPreconditionFailed},
		{ErrReplayDetected, http.StatusPreconditionFailed},
		{ErrInternalServer, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.status, MapErrorToHTTPStatus(NewAPIError(c.code, "x", nil)))
	}

	assert.Equal(t, http.StatusInternalServerError, MapErrorToHTTPStatus(errors.New("plain")))
}
