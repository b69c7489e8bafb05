package unifiedllm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed LLM request.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindAccessDenied   ErrorKind = "access_denied"
	KindNotFound       ErrorKind = "not_found"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindContextLength  ErrorKind = "context_length"
	KindQuotaExceeded  ErrorKind = "quota_exceeded"
	KindContentFilter  ErrorKind = "content_filter"
	KindRateLimit      ErrorKind = "rate_limit"
	KindServer         ErrorKind = "server"
	KindTimeout        ErrorKind = "timeout"
	KindNetwork        ErrorKind = "network"
	KindAborted        ErrorKind = "aborted"
	KindConfiguration  ErrorKind = "configuration"
	KindUnknown        ErrorKind = "unknown"
)

// Retryable reports whether a request failing with this kind may succeed if
// sent again.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindServer, KindTimeout, KindNetwork, KindUnknown:
		return true
	default:
		return false
	}
}

// Error is returned by the client and every provider adapter.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Code       string
	Message    string
	// RetryAfter is the delay the provider asked for, if any.
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = fmt.Sprintf("[%s] %s", e.Provider, msg)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind ErrorKind, provider, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Cause: cause}
}

// kindForStatus maps an HTTP status code onto an error kind.
func kindForStatus(status int) ErrorKind {
	switch status {
	case 400, 422:
		return KindInvalidRequest
	case 401:
		return KindAuthentication
	case 402:
		return KindQuotaExceeded
	case 403:
		return KindAccessDenied
	case 404:
		return KindNotFound
	case 408:
		return KindTimeout
	case 413:
		return KindContextLength
	case 429:
		return KindRateLimit
	case 500, 502, 503, 504:
		return KindServer
	default:
		return KindUnknown
	}
}

// ErrorFromStatusCode builds the error for an HTTP failure reported by
// provider.
func ErrorFromStatusCode(status int, provider, message, code string) *Error {
	return &Error{
		Kind:       kindForStatus(status),
		Provider:   provider,
		StatusCode: status,
		Code:       code,
		Message:    message,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying. Errors that did not come
// from this package are assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Retryable()
}
