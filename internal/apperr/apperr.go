// Package apperr provides the error taxonomy and retry policy for the
// audit pipeline. Every outbound call classifies its failures here so the
// rest of the system can make retry and reporting decisions uniformly.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Code identifies a failure class. Codes are part of the persisted audit
// record, so the set is closed and values are stable.
type Code string

const (
	FetchTimeout     Code = "FETCH_TIMEOUT"
	Fetch5xx         Code = "FETCH_5XX"
	Fetch4xx         Code = "FETCH_4XX"
	FetchRateLimited Code = "FETCH_RATE_LIMITED"
	FetchConnection  Code = "FETCH_CONNECTION_ERROR"
	PhaseTimeout     Code = "PHASE_TIMEOUT"
	PhaseError       Code = "PHASE_ERROR"
	SeedInsufficient Code = "SEED_INSUFFICIENT_URLS"
)

// IsRetryable reports whether failures with this code are worth retrying.
func (c Code) IsRetryable() bool {
	switch c {
	case FetchTimeout, Fetch5xx, FetchRateLimited, FetchConnection:
		return true
	default:
		return false
	}
}

// AuditError is a categorized pipeline error.
type AuditError struct {
	Code       Code
	URL        string
	Operation  string
	Message    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *AuditError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s during %s on %s: %s: %v", e.Code, e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s during %s on %s: %s", e.Code, e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuditError) Unwrap() error { return e.Cause }

// Is matches on code so callers can use errors.Is with a sentinel.
func (e *AuditError) Is(target error) bool {
	t, ok := target.(*AuditError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an AuditError.
func New(code Code, url, operation, message string, cause error) *AuditError {
	return &AuditError{Code: code, URL: url, Operation: operation, Message: message, Cause: cause}
}

// FromStatus classifies an HTTP status code. Returns nil for statuses that
// are not errors (including 3xx, which the fetch client follows itself).
func FromStatus(status int, url string) *AuditError {
	switch {
	case status == 429:
		e := New(FetchRateLimited, url, "fetch", "rate limited", nil)
		e.StatusCode = status
		return e
	case status >= 500:
		e := New(Fetch5xx, url, "fetch", fmt.Sprintf("server returned %d", status), nil)
		e.StatusCode = status
		return e
	case status >= 400:
		e := New(Fetch4xx, url, "fetch", fmt.Sprintf("client error %d", status), nil)
		e.StatusCode = status
		return e
	default:
		return nil
	}
}

// Classify wraps a transport-level error with the matching code.
func Classify(err error, url, operation string) *AuditError {
	if err == nil {
		return nil
	}

	var ae *AuditError
	if errors.As(err, &ae) {
		return ae
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return New(FetchTimeout, url, operation, "request timed out", err)
	}
	if isConnectionError(err) {
		return New(FetchConnection, url, operation, "connection failed", err)
	}
	return New(PhaseError, url, operation, err.Error(), err)
}

// CodeOf extracts the failure code from an error, or PhaseError for
// uncategorized errors.
func CodeOf(err error) Code {
	var ae *AuditError
	if errors.As(err, &ae) {
		return ae.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchTimeout
	}
	return PhaseError
}

// StatusOf extracts the HTTP status carried by an error, if any.
func StatusOf(err error) int {
	var ae *AuditError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

// IsRetryable reports whether an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ae *AuditError
	if errors.As(err, &ae) {
		return ae.Code.IsRetryable()
	}
	return isTimeout(err) || isConnectionError(err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded")
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "no such host")
}
