// Package errors defines the error types used throughout the Mastodon API wrapper.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// joinParts joins error message parts with the specified separator.
func joinParts(parts []string, sep string) string {
	return strings.Join(parts, sep)
}

// ConfigError indicates a problem with the client configuration.
type ConfigError struct {
	// Field contains the name of the configuration field that caused the error
	Field string
	// Message contains the detailed error message
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// AuthError indicates the token exchange or app registration failed.
type AuthError struct {
	// StatusCode is the HTTP status code (if from an HTTP response)
	StatusCode int
	// Message contains the detailed error message
	Message string
	// Body contains the raw response body (if available)
	Body string
	// Err contains the underlying error if available
	Err error
}

func (e *AuthError) Error() string {
	var parts []string
	parts = append(parts, "auth error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status code %d", e.StatusCode))
	}
	if e.Body != "" {
		parts = append(parts, fmt.Sprintf("body: %q", e.Body))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, fmt.Sprintf("err: %v", e.Err))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + ": " + joinParts(parts[1:], ", ")
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NetworkError indicates the request never produced an HTTP response:
// connection failures, timeouts, cancelled contexts and unreadable bodies.
// Network errors are never retried by the client.
type NetworkError struct {
	// Method is the HTTP method of the failed request
	Method string
	// URL is the URL that was being accessed
	URL string
	// Err contains the underlying transport error
	Err error
}

func (e *NetworkError) Error() string {
	msg := "unknown failure"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Method != "" && e.URL != "" {
		return fmt.Sprintf("network error during %s %s: %s", e.Method, e.URL, msg)
	}
	return fmt.Sprintf("network error: %s", msg)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned for HTTP 404 responses.
type NotFoundError struct {
	// URL is the URL that was not found
	URL string
	// Message is the server supplied error text, if any
	Message string
}

func (e *NotFoundError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "endpoint not found"
	}
	if e.URL != "" {
		return fmt.Sprintf("not found: %s: %s", e.URL, msg)
	}
	return "not found: " + msg
}

// APIError represents an error response from the Mastodon API, or a
// response whose body could not be parsed.
type APIError struct {
	// StatusCode is the HTTP status code
	StatusCode int
	// Message is the error text from the server, or a description of the parse failure
	Message string
	// Description is the optional error_description field from OAuth endpoints
	Description string
	// Err contains the underlying decode error if available
	Err error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Description != "" {
		msg += " (" + e.Description + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// RateLimitError is returned when the server throttles a request while the
// client is in "throw" mode, or when the rate-limit headers cannot be parsed.
type RateLimitError struct {
	// Message contains the detailed error message
	Message string
	// ResetAt is the local time at which the current window resets, if known
	ResetAt time.Time
	// Err is the header parse error or the context error that interrupted a
	// rate-limit wait, if any
	Err error
}

func (e *RateLimitError) Error() string {
	var sb strings.Builder
	sb.WriteString("rate limit error: ")
	sb.WriteString(e.Message)
	if !e.ResetAt.IsZero() {
		fmt.Fprintf(&sb, " (resets at %s)", e.ResetAt.Format(time.RFC3339))
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IllegalArgumentError indicates invalid parameters detected before sending.
type IllegalArgumentError struct {
	// Argument is the name of the offending parameter
	Argument string
	// Message contains the detailed error message
	Message string
}

func (e *IllegalArgumentError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("illegal argument %s: %s", e.Argument, e.Message)
	}
	return fmt.Sprintf("illegal argument: %s", e.Message)
}

// MalformedEventError indicates a streaming response violated the
// server-sent event framing or carried an undecodable payload.
type MalformedEventError struct {
	// Reason is a short description such as "missing field" or "bad JSON"
	Reason string
	// Field names the missing or offending field, if any
	Field string
	// Data holds the offending line or payload text
	Data string
	// Err contains the underlying decode error if available
	Err error
}

func (e *MalformedEventError) Error() string {
	var sb strings.Builder
	sb.WriteString("malformed event: ")
	sb.WriteString(e.Reason)
	if e.Field != "" {
		fmt.Fprintf(&sb, " %q", e.Field)
	}
	if e.Data != "" {
		fmt.Fprintf(&sb, ": %q", e.Data)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsRateLimited reports whether err wraps a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsNetwork reports whether err wraps a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
