package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Centralized service layer errors.
// All errors returned by service methods are defined here for consistency
// and to make error handling in handlers predictable.

// ===== Thread Errors =====
var (
	ErrThreadNotFound       = errors.New("thread not found")
	ErrNotAwaitingApproval  = errors.New("thread is not awaiting approval")
	ErrThreadBusy           = errors.New("thread is already being processed")
	ErrInvalidSearchRequest = errors.New("invalid search request")
)

// ===== Provider Errors =====
var (
	ErrNoLLMResponse         = errors.New("language model returned no choices")
	ErrProviderNotConfigured = errors.New("provider is not configured")
	ErrUpstream              = errors.New("upstream provider error")
	ErrCircuitOpen           = errors.New("circuit breaker is open")
)

// UpstreamError describes a failed call to an external provider.
// errors.Is(err, ErrUpstream) matches any UpstreamError.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// IsRetryable reports whether a failed provider call may succeed if repeated:
// rate limits, server errors, timeouts and network failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrProviderNotConfigured) {
		return false
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		switch upErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		case 0:
			return upErr.Err != nil && isNetworkError(upErr.Err)
		}
		return false
	}

	return isNetworkError(err)
}

// IsKeyRejected reports whether a provider refused the credential itself, so
// another key may be tried
func IsKeyRejected(err error) bool {
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		return false
	}
	switch upErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
