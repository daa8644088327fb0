// Package testutil provides testing utilities for the GitHub client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock GitHub endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGitHub is a configurable mock GitHub API server for testing.
type MockGitHub struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	requestCount      int
	conditionalCount  int
	exchangeCount     int
	lastRequestHeader http.Header
}

// NewMockGitHub creates a mock GitHub API server. It answers the App
// installation token exchange endpoint out of the box; everything else
// falls through to the default healthy handler until a custom handler
// or response is installed.
func NewMockGitHub() *MockGitHub {
	mock := &MockGitHub{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()
		if exists {
			handler(w, r)
			return
		}

		if r.Method == http.MethodPost && isExchangePath(r.URL.Path) {
			mock.handleTokenExchange(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

func isExchangePath(path string) bool {
	var installationID int64
	_, err := fmt.Sscanf(path, "/app/installations/%d/access_tokens", &installationID)
	return err == nil
}

// URL returns the mock server URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGitHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.exchangeCount = 0
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGitHub) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockGitHub) SetResponse(path string, response MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if response.Delay > 0 {
			time.Sleep(response.Delay)
		}
		for key, value := range response.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(response.StatusCode)
		if response.Body != "" {
			w.Write([]byte(response.Body))
		}
	})
}

// RequestCount returns the number of requests received.
func (m *MockGitHub) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// ConditionalCount returns the number of conditional requests received.
func (m *MockGitHub) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// ExchangeCount returns the number of token exchange calls received.
func (m *MockGitHub) ExchangeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exchangeCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockGitHub) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// handleTokenExchange answers the App installation token exchange.
func (m *MockGitHub) handleTokenExchange(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.exchangeCount++
	count := m.exchangeCount
	m.mu.Unlock()

	if r.Header.Get("Authorization") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"A JSON web token could not be decoded"}`)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"token":      fmt.Sprintf("ghs_mock%d", count),
		"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
}

// defaultHandler provides a healthy GitHub-like response.
func (m *MockGitHub) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setQuotaHeaders(w.Header(), "core", 5000, 4999)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-GitHub-Request-Id", "MOCK:0000")

	if r.Header.Get("If-None-Match") != "" {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", `"default-etag"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func setQuotaHeaders(headers http.Header, resource string, limit, remaining int) {
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
	headers.Set("X-RateLimit-Used", strconv.Itoa(limit-remaining))
	headers.Set("X-RateLimit-Resource", resource)
}

// NewHealthyResponse creates a 200 OK response with quota headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "5000",
			"X-RateLimit-Remaining": "4999",
			"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
			"X-RateLimit-Resource":  "core",
			"ETag":                  `"test-etag-123"`,
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates an exhausted-quota 403 response.
func NewRateLimitResponse(resetIn time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message":"API rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "5000",
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(resetIn).Unix(), 10),
			"X-RateLimit-Resource":  "core",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"Server Error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewPagedHandler serves a JSON array split into pages of pageSize with
// GitHub-style Link headers. The page query parameter selects the page.
func NewPagedHandler(items []string, pageSize int) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 {
			page = 1
		}
		totalPages := (len(items) + pageSize - 1) / pageSize

		start := (page - 1) * pageSize
		if start > len(items) {
			start = len(items)
		}
		end := start + pageSize
		if end > len(items) {
			end = len(items)
		}

		base := "http://" + r.Host + r.URL.Path
		var link string
		if page < totalPages {
			link = fmt.Sprintf(`<%s?page=%d>; rel="next", <%s?page=%d>; rel="last"`, base, page+1, base, totalPages)
		}
		if link != "" {
			w.Header().Set("Link", link)
		}

		setQuotaHeaders(w.Header(), "core", 5000, 4999)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
		w.WriteHeader(http.StatusOK)

		w.Write([]byte("["))
		for i, item := range items[start:end] {
			if i > 0 {
				w.Write([]byte(","))
			}
			w.Write([]byte(item))
		}
		w.Write([]byte("]"))
	}
}

// NewConditionalHandler responds 304 when the request carries the
// matching ETag and the full body otherwise.
func NewConditionalHandler(etag, data string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		setQuotaHeaders(w.Header(), "core", 5000, 4999)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
