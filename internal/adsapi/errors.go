package adsapi

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is returned by every query when the access token or the
// ad account id is missing.
var ErrNotConfigured = errors.New("ads api not configured: access token and account id are required")

// throttleCodes are the error codes the ads API uses for request-rate limits.
var throttleCodes = map[int]bool{
	17:    true, // user request limit reached
	80004: true, // ads management calls to this ad account
}

// APIError is the error object carried in failed ads API responses.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

// ThrottledError means the remote side rejected the call for rate reasons.
// The client's limiter has already been escalated when this is returned.
type ThrottledError struct {
	Endpoint string
	API      APIError
	// RetryAfter is how long until the limiter lets the next call out.
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("ads api throttled on %s: code %d: %s", e.Endpoint, e.API.Code, e.API.Message)
}

// RemoteError covers timeouts, network failures and non-2xx responses.
type RemoteError struct {
	Endpoint   string
	StatusCode int
	API        *APIError
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("ads api request to %s failed: %v", e.Endpoint, e.Err)
	case e.API != nil:
		return fmt.Sprintf("ads api %s returned %d: code %d: %s", e.Endpoint, e.StatusCode, e.API.Code, e.API.Message)
	default:
		return fmt.Sprintf("ads api %s returned %d", e.Endpoint, e.StatusCode)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
