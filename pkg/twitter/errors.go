package twitter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies API failures. The values double as the reason strings
// recorded on skipped accounts, so they are stable identifiers.
type ErrorType string

const (
	ErrorTypeNoAuth      ErrorType = "no_auth"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeAPI         ErrorType = "api_error"
	ErrorTypeREST        ErrorType = "rest_error"
	ErrorTypeBadJSON     ErrorType = "bad_json"
	ErrorTypeNotFound    ErrorType = "http_404"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeStaleQuery  ErrorType = "stale_query"
)

// Error represents a classified API error.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("twitter %s error (code %d): %s", e.Type, e.Code, e.Message)
}

// NewHTTPError builds an Error from an HTTP status code. 429 maps to the
// rate-limit type; everything else keeps an http_<code> reason so skip
// records stay diagnosable.
func NewHTTPError(code int, message string) *Error {
	t := ErrorType(fmt.Sprintf("http_%d", code))
	if code == 429 {
		t = ErrorTypeRateLimited
	}
	return &Error{Type: t, Message: message, Code: code}
}

// Reason extracts a stable reason string from any error for skip records.
func Reason(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return string(apiErr.Type)
	}
	if err != nil {
		return "exception"
	}
	return ""
}

// IsRateLimit reports whether an error is a rate-limit signal, either by
// classification or by message content (HTTP 429 or rate markers in the
// text).
func IsRateLimit(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Type == ErrorTypeRateLimited || apiErr.Code == 429 {
			return true
		}
	}
	if err == nil {
		return false
	}
	return IsRateLimitMessage(err.Error())
}

// IsNotFound reports whether an error is an HTTP 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404
	}
	return false
}

// IsNoAuth reports whether an error means the session credential is missing.
func IsNoAuth(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == ErrorTypeNoAuth
	}
	return false
}

// IsRateLimitMessage reports whether free-form error text looks like a
// rate-limit response.
func IsRateLimitMessage(message string) bool {
	text := strings.ToLower(message)
	return strings.Contains(text, "429") || strings.Contains(text, "rate")
}

// ShouldRetryStaleQuery reports whether a GraphQL application error message
// suggests the persisted query id went stale (an upstream rename or removal)
// rather than a rate limit. A true result is worth one registry refresh and
// one retried call, no more.
func ShouldRetryStaleQuery(message string) bool {
	text := strings.ToLower(message)
	if text == "" {
		return false
	}
	if strings.Contains(text, "rate") || strings.Contains(text, "429") {
		return false
	}
	return strings.Contains(text, "query") ||
		strings.Contains(text, "unknown") ||
		strings.Contains(text, "unspecified") ||
		strings.Contains(text, "operation")
}
