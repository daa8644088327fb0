package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestClassifyResponse_StatusMapping(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		body         string
		wantCategory Category
		wantRetry    bool
	}{
		{
			name:         "401 authentication",
			statusCode:   401,
			body:         `{"message":"Bad credentials"}`,
			wantCategory: CategoryAuthentication,
			wantRetry:    false,
		},
		{
			name:         "403 rate limit pattern",
			statusCode:   403,
			body:         `{"message":"API rate limit exceeded for user"}`,
			wantCategory: CategoryRateLimit,
			wantRetry:    true,
		},
		{
			name:         "403 other is authorization",
			statusCode:   403,
			body:         `{"message":"Resource not accessible by integration"}`,
			wantCategory: CategoryAuthorization,
			wantRetry:    false,
		},
		{
			name:         "404 not found",
			statusCode:   404,
			body:         `{"message":"Not Found"}`,
			wantCategory: CategoryResource,
			wantRetry:    false,
		},
		{
			name:         "409 conflict",
			statusCode:   409,
			body:         `{"message":"Merge conflict"}`,
			wantCategory: CategoryResource,
			wantRetry:    false,
		},
		{
			name:         "422 validation",
			statusCode:   422,
			body:         `{"message":"Validation Failed"}`,
			wantCategory: CategoryRequest,
			wantRetry:    false,
		},
		{
			name:         "429 secondary rate limit",
			statusCode:   429,
			body:         `{"message":"You have exceeded a secondary rate limit"}`,
			wantCategory: CategoryRateLimit,
			wantRetry:    true,
		},
		{
			name:         "502 server",
			statusCode:   502,
			body:         `{"message":"Server Error"}`,
			wantCategory: CategoryServer,
			wantRetry:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := ClassifyResponse(tt.statusCode, http.Header{}, []byte(tt.body))
			if apiErr.Category != tt.wantCategory {
				t.Errorf("Category = %s, want %s", apiErr.Category, tt.wantCategory)
			}
			if apiErr.Retryable() != tt.wantRetry {
				t.Errorf("Retryable() = %v, want %v", apiErr.Retryable(), tt.wantRetry)
			}
		})
	}
}

func TestClassifyResponse_CapturesRequestID(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-GitHub-Request-Id", "ABCD:1234:5678")

	apiErr := ClassifyResponse(404, headers, []byte(`{"message":"Not Found"}`))
	if apiErr.RequestID != "ABCD:1234:5678" {
		t.Errorf("RequestID = %q, want correlation id from header", apiErr.RequestID)
	}
	if got := apiErr.Error(); got == "" || !errors.As(error(apiErr), new(*Error)) {
		t.Errorf("Error() = %q", got)
	}
}

func TestClassifyResponse_ValidationDetails(t *testing.T) {
	body := `{"message":"Validation Failed","errors":[{"resource":"Issue","field":"title","code":"missing_field"}]}`
	apiErr := ClassifyResponse(422, http.Header{}, []byte(body))

	want := "Validation Failed; Issue.title: missing_field"
	if apiErr.Message != want {
		t.Errorf("Message = %q, want %q", apiErr.Message, want)
	}
}

func TestClassifyResponse_NonJSONBody(t *testing.T) {
	apiErr := ClassifyResponse(500, http.Header{}, []byte("upstream exploded"))
	if apiErr.Message != "upstream exploded" {
		t.Errorf("Message = %q, want raw body text", apiErr.Message)
	}
}

func TestRetryHint_PrefersRetryAfterHeader(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", "300")
	headers.Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix()))

	apiErr := ClassifyResponse(429, headers, []byte(`{"message":"slow down"}`))
	if apiErr.RetryHint() != 300*time.Second {
		t.Errorf("RetryHint() = %v, want 300s from Retry-After", apiErr.RetryHint())
	}
}

func TestRetryHint_FallsBackToReset(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute)
	headers := http.Header{}
	headers.Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))

	apiErr := ClassifyResponse(429, headers, []byte(`{"message":"rate limit"}`))
	hint := apiErr.RetryHint()
	if hint <= 9*time.Minute || hint > 10*time.Minute+time.Second {
		t.Errorf("RetryHint() = %v, want ~10m until reset", hint)
	}
}

func TestRetryHint_PastResetIsZero(t *testing.T) {
	apiErr := &Error{Category: CategoryRateLimit, ResetAt: time.Now().Add(-time.Minute)}
	if hint := apiErr.RetryHint(); hint != 0 {
		t.Errorf("RetryHint() = %v, want 0 for a reset in the past", hint)
	}
}

func TestPredicates(t *testing.T) {
	notFound := ClassifyResponse(404, http.Header{}, []byte(`{"message":"Not Found"}`))
	wrapped := fmt.Errorf("fetching repo: %w", notFound)

	if !IsNotFound(wrapped) {
		t.Error("IsNotFound() = false for wrapped 404")
	}
	if IsRateLimited(wrapped) {
		t.Error("IsRateLimited() = true for 404")
	}
	if !IsAuthentication(Authentication(401, "bad credentials")) {
		t.Error("IsAuthentication() = false for authentication error")
	}
}

func TestNetworkError(t *testing.T) {
	cause := errors.New("connection refused")
	netErr := Network(cause)

	if !netErr.Retryable() {
		t.Error("network errors must be retryable")
	}
	if !errors.Is(netErr, cause) {
		t.Error("Unwrap must expose the transport cause")
	}
}

func TestConfigurationError(t *testing.T) {
	cfgErr := Configuration("parsing private key", errors.New("bad pem"))
	if cfgErr.Retryable() {
		t.Error("configuration errors must not be retryable")
	}
	if cfgErr.Category != CategoryConfiguration {
		t.Errorf("Category = %s, want configuration", cfgErr.Category)
	}
}
