package apierror

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrConflict         ErrorCode = "CONFLICT"
	ErrBadRequest       ErrorCode = "BAD_REQUEST"
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	// Lowercase on the wire: clients already branch on this exact string.
	ErrRateLimited      ErrorCode = "rate_limit_exceeded"
	ErrInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	ErrStaleTimestamp   ErrorCode = "STALE_TIMESTAMP"
	ErrReplayDetected   ErrorCode = "REPLAY_DETECTED"
	ErrInternalServer   ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest:
			return http.StatusBadRequest
		case ErrRateLimited:
			return http.StatusTooManyRequests
		case ErrInvalidSignature:
			return http.StatusForbidden
		case ErrStaleTimestamp, ErrReplayDetected:
			return http.StatusPreconditionFailed
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
