// Package apierr defines the closed error taxonomy for the GitHub
// client. Every error crossing the client boundary carries a stable
// category tag, a human-readable message, and, when the response
// provided one, the upstream request correlation id.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Category classifies an API error. The set is closed and matched
// exhaustively; retryability is derived from the tag alone.
type Category string

const (
	// CategoryConfiguration indicates invalid client configuration
	// (bad credential material, malformed base URL).
	CategoryConfiguration Category = "configuration"

	// CategoryAuthentication indicates the request was not authenticated
	// (HTTP 401, failed token exchange).
	CategoryAuthentication Category = "authentication"

	// CategoryAuthorization indicates the authenticated principal lacks
	// permission (HTTP 403 without a rate-limit signature).
	CategoryAuthorization Category = "authorization"

	// CategoryRequest indicates the request was rejected as invalid
	// (HTTP 400, 422 validation failures).
	CategoryRequest Category = "request"

	// CategoryResource indicates a resource-level condition
	// (HTTP 404 not found, 409 conflict).
	CategoryResource Category = "resource"

	// CategoryRateLimit indicates a primary or secondary rate limit
	// (HTTP 429, or 403 with a rate-limit message).
	CategoryRateLimit Category = "rate_limit"

	// CategoryNetwork indicates a transport-level failure (timeout,
	// connection refused, TLS failure).
	CategoryNetwork Category = "network"

	// CategoryServer indicates a 5xx response from GitHub.
	CategoryServer Category = "server"

	// CategoryResponse indicates a malformed or undecodable response.
	CategoryResponse Category = "response"

	// CategoryWebhook indicates malformed webhook signature input.
	CategoryWebhook Category = "webhook"

	// CategoryGraphQL indicates errors reported in a GraphQL response
	// errors array.
	CategoryGraphQL Category = "graphql"
)

// Error is a classified GitHub API error. Secret material never appears
// in an Error.
type Error struct {
	// Category is the closed-taxonomy classification.
	Category Category

	// StatusCode is the HTTP status code, zero for non-HTTP failures.
	StatusCode int

	// Message is the upstream error description.
	Message string

	// RequestID is the X-GitHub-Request-Id correlation value, if present.
	RequestID string

	// ResetAt is when the rate limit window resets. Set only for
	// rate-limit errors that carried reset information.
	ResetAt time.Time

	// RetryAfter is an explicit server-provided wait hint. When set, the
	// retry executor uses it in preference to computed backoff.
	RetryAfter time.Duration

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "github %s error", e.Category)
	if e.StatusCode > 0 {
		fmt.Fprintf(&builder, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&builder, ": %s", e.Message)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&builder, " (request id %s)", e.RequestID)
	}
	if e.Err != nil {
		fmt.Fprintf(&builder, ": %v", e.Err)
	}
	return builder.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error class is safe to retry.
// Authentication, authorization, validation, not-found, and conflict
// failures are deterministic and never retried. Rate limits, network
// failures, and 5xx responses are transient.
func (e *Error) Retryable() bool {
	switch e.Category {
	case CategoryRateLimit, CategoryNetwork, CategoryServer:
		return true
	default:
		return false
	}
}

// RetryHint returns the server-provided wait duration, zero when absent.
// Rate-limit errors without a Retry-After header derive the hint from
// the window reset time.
func (e *Error) RetryHint() time.Duration {
	if e.RetryAfter > 0 {
		return e.RetryAfter
	}
	if !e.ResetAt.IsZero() {
		if hint := time.Until(e.ResetAt); hint > 0 {
			return hint
		}
	}
	return 0
}

// IsNotFound reports whether err is a 404 resource error.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Category == CategoryResource && apiErr.StatusCode == http.StatusNotFound
}

// IsRateLimited reports whether err is a rate-limit error.
func IsRateLimited(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Category == CategoryRateLimit
}

// IsAuthentication reports whether err is an authentication error.
func IsAuthentication(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Category == CategoryAuthentication
}

// wireError is GitHub's JSON error body shape.
type wireError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
	Errors           []struct {
		Resource string `json:"resource"`
		Field    string `json:"field"`
		Code     string `json:"code"`
		Message  string `json:"message"`
	} `json:"errors"`
}

// ClassifyResponse maps a non-2xx response to a taxonomy member. The
// body has already been read by the caller.
func ClassifyResponse(statusCode int, headers http.Header, body []byte) *Error {
	apiErr := &Error{
		StatusCode: statusCode,
		RequestID:  headers.Get("X-GitHub-Request-Id"),
	}

	var wire wireError
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		apiErr.Message = wire.Message
		for _, validation := range wire.Errors {
			detail := validation.Message
			if detail == "" {
				detail = validation.Code
			}
			apiErr.Message += fmt.Sprintf("; %s.%s: %s", validation.Resource, validation.Field, detail)
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		apiErr.Category = CategoryAuthentication
	case statusCode == http.StatusForbidden && isRateLimitMessage(apiErr.Message):
		apiErr.Category = CategoryRateLimit
	case statusCode == http.StatusForbidden:
		apiErr.Category = CategoryAuthorization
	case statusCode == http.StatusNotFound, statusCode == http.StatusConflict:
		apiErr.Category = CategoryResource
	case statusCode == http.StatusUnprocessableEntity, statusCode == http.StatusBadRequest:
		apiErr.Category = CategoryRequest
	case statusCode == http.StatusTooManyRequests:
		apiErr.Category = CategoryRateLimit
	case statusCode >= 500:
		apiErr.Category = CategoryServer
	default:
		apiErr.Category = CategoryResponse
	}

	if apiErr.Category == CategoryRateLimit {
		if seconds, err := strconv.Atoi(headers.Get("Retry-After")); err == nil && seconds > 0 {
			apiErr.RetryAfter = time.Duration(seconds) * time.Second
		}
		if resetUnix, err := strconv.ParseInt(headers.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			apiErr.ResetAt = time.Unix(resetUnix, 0)
		}
	}

	return apiErr
}

// isRateLimitMessage checks whether a 403 message indicates a rate limit
// rather than a permission problem. GitHub's rate-limit 403 bodies
// contain recognizable phrases.
func isRateLimitMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "secondary rate") ||
		strings.Contains(lower, "abuse detection")
}

// Network wraps a transport failure as a retryable Network error.
func Network(err error) *Error {
	return &Error{
		Category: CategoryNetwork,
		Message:  "transport failure",
		Err:      err,
	}
}

// Timeout wraps a context cancellation or deadline expiry as a
// network-category error, so waits aborted mid-backoff or mid-quota
// still surface with a taxonomy tag. The context error stays reachable
// through errors.Is.
func Timeout(err error) *Error {
	return &Error{
		Category: CategoryNetwork,
		Message:  "wait aborted",
		Err:      err,
	}
}

// Response wraps a body-decoding failure as a terminal Response error.
func Response(requestID string, err error) *Error {
	return &Error{
		Category:  CategoryResponse,
		Message:   "malformed response",
		RequestID: requestID,
		Err:       err,
	}
}

// Configuration creates a configuration error.
func Configuration(message string, err error) *Error {
	return &Error{
		Category: CategoryConfiguration,
		Message:  message,
		Err:      err,
	}
}

// Authentication creates an authentication error carrying the upstream
// status code.
func Authentication(statusCode int, message string) *Error {
	return &Error{
		Category:   CategoryAuthentication,
		StatusCode: statusCode,
		Message:    message,
	}
}

// GraphQL creates an error from a GraphQL response errors array. The
// HTTP exchange succeeded; the failure is semantic and never retried.
func GraphQL(requestID string, messages []string) *Error {
	return &Error{
		Category:  CategoryGraphQL,
		Message:   strings.Join(messages, "; "),
		RequestID: requestID,
	}
}

// Webhook creates a webhook input error.
func Webhook(message string) *Error {
	return &Error{
		Category: CategoryWebhook,
		Message:  message,
	}
}
