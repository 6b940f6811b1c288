package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorClass partitions upstream failures for retry shaping.
type ErrorClass int

const (
	// ClassPermanent covers authentication, permission, and anything else
	// retrying cannot fix. Never retried.
	ClassPermanent ErrorClass = iota
	// ClassRateLimit covers 429s and load-shaped transient failures.
	// Retried with exponential backoff plus jitter.
	ClassRateLimit
	// ClassMalformedOutput covers invalid structured output from a model.
	// Not load-related, so retried with linear backoff.
	ClassMalformedOutput
)

func (c ErrorClass) String() string {
	switch c {
	case ClassRateLimit:
		return "rate-limit"
	case ClassMalformedOutput:
		return "malformed-output"
	default:
		return "permanent"
	}
}

// RateLimitError marks an upstream call rejected for load reasons.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// NewRateLimitError wraps err as rate-limited.
func NewRateLimitError(err error) *RateLimitError {
	return &RateLimitError{Err: err}
}

// MalformedOutputError marks a model response that could not be parsed.
type MalformedOutputError struct {
	Err error
}

func (e *MalformedOutputError) Error() string { return e.Err.Error() }
func (e *MalformedOutputError) Unwrap() error { return e.Err }

// NewMalformedOutputError wraps err as malformed model output.
func NewMalformedOutputError(err error) *MalformedOutputError {
	return &MalformedOutputError{Err: err}
}

// Classify buckets err into one of the three retry classes. Typed errors in
// the chain win; network-level transient failures count as rate-limit class
// since both are load-shaped; everything else is permanent.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassPermanent
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		return ClassRateLimit
	}

	var moe *MalformedOutputError
	if errors.As(err, &moe) {
		return ClassMalformedOutput
	}

	if isNetworkTransient(err) {
		return ClassRateLimit
	}

	// Heuristics for errors wrapped by SDKs that don't expose types.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return ClassRateLimit
	}
	if strings.Contains(msg, "invalid json") || strings.Contains(msg, "malformed output") {
		return ClassMalformedOutput
	}

	return ClassPermanent
}

// ClassifyHTTPStatus maps an HTTP status code onto a retry class.
func ClassifyHTTPStatus(statusCode int) ErrorClass {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return ClassRateLimit
	default:
		return ClassPermanent
	}
}

func isNetworkTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
