package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the category of a failed retrieval.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindTimeout      ErrorKind = "timeout"
	KindRateLimit    ErrorKind = "rate_limit"
	KindServer       ErrorKind = "server"
	KindClient       ErrorKind = "client"
	KindMissingField ErrorKind = "missing_field"
)

// RetrieveError is returned by every Source. Retryable tells the Fetcher
// whether another attempt may succeed.
type RetrieveError struct {
	Kind       ErrorKind
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

func (e *RetrieveError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *RetrieveError) Unwrap() error {
	return e.Cause
}

func NewNetworkError(cause error) *RetrieveError {
	return &RetrieveError{Kind: KindNetwork, Retryable: true, Message: "request failed", Cause: cause}
}

func NewTimeoutError(cause error) *RetrieveError {
	return &RetrieveError{Kind: KindTimeout, Retryable: true, Message: "timed out", Cause: cause}
}

func NewMissingFieldError(field string) *RetrieveError {
	return &RetrieveError{Kind: KindMissingField, Message: fmt.Sprintf("%s not found on page", field)}
}

// ClassifyHTTPStatus maps a non-2xx status code to a RetrieveError.
func ClassifyHTTPStatus(statusCode int) *RetrieveError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &RetrieveError{Kind: KindRateLimit, Retryable: true, StatusCode: statusCode, Message: "rate limit exceeded"}
	case statusCode == http.StatusRequestTimeout:
		return &RetrieveError{Kind: KindTimeout, Retryable: true, StatusCode: statusCode, Message: "server timed out"}
	case statusCode >= 500:
		return &RetrieveError{Kind: KindServer, Retryable: true, StatusCode: statusCode, Message: "server returned an error"}
	default:
		return &RetrieveError{Kind: KindClient, StatusCode: statusCode, Message: fmt.Sprintf("unexpected HTTP %d", statusCode)}
	}
}

// transportError classifies err from a request made under ctx.
func transportError(ctx context.Context, err error) *RetrieveError {
	var re *RetrieveError
	if errors.As(err, &re) {
		return re
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	return NewNetworkError(err)
}

// IsRetryable reports whether err is a RetrieveError worth another attempt.
func IsRetryable(err error) bool {
	var re *RetrieveError
	return errors.As(err, &re) && re.Retryable
}
