// Package githubapi provides the core GitHub API client with
// authentication, rate limiting, resilience, caching, and pagination.
package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ghwire/ghwire/pkg/apierr"
	"github.com/ghwire/ghwire/pkg/auth"
	"github.com/ghwire/ghwire/pkg/cache"
	"github.com/ghwire/ghwire/pkg/logging"
	"github.com/ghwire/ghwire/pkg/ratelimit"
	"github.com/ghwire/ghwire/pkg/resilience"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_requests_total",
		Help: "Total GitHub API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "github_request_duration_seconds",
		Help:    "GitHub API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "github_errors_total",
		Help: "Total GitHub API errors by category",
	}, []string{"category"})
)

// DefaultBaseURL is the public GitHub API root. GitHub Enterprise
// installs override it.
const DefaultBaseURL = "https://api.github.com"

// apiVersion pins the REST API version header. Responses can change
// shape between versions; pinning keeps decoding stable.
const apiVersion = "2022-11-28"

const maxErrorBody = 1 << 20

// Config holds the client configuration. Credential fields are a
// union: at most one of Token, App, AccessToken may be set; all empty
// means anonymous access (60 requests/hour).
type Config struct {
	// BaseURL is the API root. HTTPS is required except for loopback
	// addresses (local test servers). Defaults to DefaultBaseURL.
	BaseURL string

	// UserAgent identifies the integration (required by GitHub).
	UserAgent string

	// Token is a static bearer token (PAT or fine-grained PAT).
	Token string

	// App configures GitHub App authentication.
	App *auth.AppConfig

	// AccessToken is an externally-refreshed OAuth access token.
	AccessToken string

	// AccessTokenExpiry is when AccessToken stops working. Zero means
	// no known expiry.
	AccessTokenExpiry time.Time

	// Accept overrides the Accept header, e.g. for preview media types.
	// Defaults to "application/vnd.github+json".
	Accept string

	// RequestsPerSecond adds client-side request smoothing in front of
	// the quota tracker. Zero disables smoothing.
	RequestsPerSecond float64

	// Redis enables the ETag response cache when set.
	Redis *redis.Client

	// CacheTTL bounds cached response lifetime. Zero uses the cache
	// package default.
	CacheTTL time.Duration

	// RateLimit configures quota throttling thresholds.
	RateLimit ratelimit.Config

	// Resilience configures the circuit breaker and retry executor.
	Resilience resilience.Config

	// HTTPClient performs the requests. Defaults to a 30s-timeout
	// client.
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration for the given
// user agent and static token. Leave token empty for anonymous access.
func DefaultConfig(userAgent, token string) Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		UserAgent:  userAgent,
		Token:      token,
		RateLimit:  ratelimit.DefaultConfig(),
		Resilience: resilience.DefaultConfig(),
	}
}

// Client is the GitHub API client. All requests flow through the
// resilience orchestrator; responses feed the rate limit tracker.
//
// Safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	baseURL      *url.URL
	userAgent    string
	accept       string
	auth         *auth.Manager
	tracker      *ratelimit.Tracker
	orchestrator *resilience.Orchestrator
	cache        *cache.Manager
	limiter      *rate.Limiter
	logger       zerolog.Logger
}

// New creates a GitHub API client.
func New(config Config) (*Client, error) {
	if config.UserAgent == "" {
		return nil, apierr.Configuration("user agent is required", nil)
	}

	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, apierr.Configuration("parsing base URL", err)
	}
	if baseURL.Scheme != "https" && !isLoopback(baseURL.Hostname()) {
		return nil, apierr.Configuration("base URL must use https", nil)
	}

	logger := logging.NewLogger("github-client")

	manager, err := buildAuthManager(config, logger)
	if err != nil {
		return nil, err
	}

	tracker := ratelimit.NewTracker(config.RateLimit, logger)

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	accept := config.Accept
	if accept == "" {
		accept = "application/vnd.github+json"
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	var responseCache *cache.Manager
	if config.Redis != nil {
		responseCache = cache.NewManager(config.Redis, cache.Config{TTL: config.CacheTTL})
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      baseURL,
		userAgent:    config.UserAgent,
		accept:       accept,
		auth:         manager,
		tracker:      tracker,
		orchestrator: resilience.NewOrchestrator(config.Resilience, tracker, logger),
		cache:        responseCache,
		limiter:      limiter,
		logger:       logger,
	}, nil
}

// buildAuthManager maps the credential union onto an auth.Manager.
func buildAuthManager(config Config, logger zerolog.Logger) (*auth.Manager, error) {
	credentials := 0
	if config.Token != "" {
		credentials++
	}
	if config.App != nil {
		credentials++
	}
	if config.AccessToken != "" {
		credentials++
	}
	if credentials > 1 {
		return nil, apierr.Configuration("at most one credential may be configured", nil)
	}

	switch {
	case config.Token != "":
		return auth.NewToken(config.Token, logger)
	case config.App != nil:
		return auth.NewApp(*config.App, logger)
	case config.AccessToken != "":
		return auth.NewRefreshable(config.AccessToken, config.AccessTokenExpiry, logger)
	default:
		return auth.NewAnonymous(logger), nil
	}
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// Do executes an API request against path (relative to the base URL),
// marshaling body to JSON when non-nil and decoding the response into
// result when non-nil. The request runs under the full resilience
// stack.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = encoded
	}

	response, err := c.doRaw(ctx, method, c.resolve(path), payload)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if result == nil {
		io.Copy(io.Discard, response.Body)
		return nil
	}
	if response.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		return apierr.Response(response.Header.Get("X-GitHub-Request-Id"), err)
	}
	return nil
}

// Get issues a GET request and decodes the JSON response into result.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.Do(ctx, http.MethodGet, path, nil, result)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPost, path, body, result)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPatch, path, body, result)
}

// Put issues a PUT request with an optional JSON body.
func (c *Client) Put(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPut, path, body, result)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// RateLimit returns the latest quota snapshot for a category.
func (c *Client) RateLimit(category ratelimit.Category) (ratelimit.Quota, bool) {
	return c.tracker.Status(category)
}

// BreakerState exposes the circuit breaker state for a category.
func (c *Client) BreakerState(category ratelimit.Category) resilience.State {
	return c.orchestrator.BreakerState(category)
}

// resolve joins a request path onto the base URL. Absolute URLs (from
// pagination Link headers) pass through untouched.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.baseURL.String(), "/") + "/" + strings.TrimLeft(path, "/")
}

// doRaw executes one orchestrated request and returns the response with
// its body fully read into memory, so callers can decode it without
// holding the connection.
func (c *Client) doRaw(ctx context.Context, method, rawURL string, payload []byte) (*http.Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, apierr.Configuration("parsing request URL", err)
	}
	endpoint := parsed.Path
	category := categoryFor(parsed.Path)
	operation := method + " " + endpoint

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var response *http.Response
	err = c.orchestrator.Execute(ctx, operation, category, func(ctx context.Context) error {
		attemptResponse, attemptErr := c.attempt(ctx, method, rawURL, endpoint, payload)
		if attemptErr != nil {
			var apiErr *apierr.Error
			if errors.As(attemptErr, &apiErr) {
				errorsTotal.WithLabelValues(string(apiErr.Category)).Inc()
			}
			return attemptErr
		}
		response = attemptResponse
		return nil
	})
	if err != nil {
		return nil, err
	}

	requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", response.StatusCode)).Inc()
	return response, nil
}

// attempt performs a single HTTP exchange: fresh auth headers, cache
// revalidation for GETs, quota feedback, and error classification.
func (c *Client) attempt(ctx context.Context, method, rawURL, endpoint string, payload []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apierr.Timeout(err)
		}
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, apierr.Configuration("creating request", err)
	}

	// Auth headers are produced fresh for every attempt: a long backoff
	// can outlive an installation token.
	authHeaders, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, err
	}
	for key, values := range authHeaders {
		for _, value := range values {
			request.Header.Set(key, value)
		}
	}
	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("Accept", c.accept)
	request.Header.Set("X-GitHub-Api-Version", apiVersion)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	var cacheKey cache.Key
	var cached *cache.Entry
	useCache := c.cache != nil && method == http.MethodGet
	if useCache {
		cacheKey = cache.NewKey(rawURL, request.Header.Get("Authorization"))
		entry, cacheErr := c.cache.Get(ctx, cacheKey)
		if cacheErr != nil && cacheErr != cache.ErrCacheMiss {
			c.logger.Warn().Err(cacheErr).Str("endpoint", endpoint).Msg("Cache get failed")
		}
		if entry.Revalidatable() {
			cached = entry
			cache.ApplyConditionalHeaders(request, entry)
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Msg("Executing GitHub request")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, apierr.Network(err)
	}

	c.tracker.UpdateFromHeaders(response.Header)

	if response.StatusCode == http.StatusNotModified {
		response.Body.Close()
		if cached == nil {
			// 304 without a validator sent is a server bug.
			return nil, apierr.Response(response.Header.Get("X-GitHub-Request-Id"),
				errors.New("unexpected 304 response"))
		}
		cache.NotModified.Inc()
		if err := c.cache.Touch(ctx, cacheKey); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache touch failed")
		}
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified, serving cached response")
		return cached.ToResponse(), nil
	}

	if response.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		response.Body.Close()
		requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", response.StatusCode)).Inc()
		return nil, apierr.ClassifyResponse(response.StatusCode, response.Header, body)
	}

	// Load the body so the connection is released before any decode.
	body, err := io.ReadAll(response.Body)
	response.Body.Close()
	if err != nil {
		return nil, apierr.Response(response.Header.Get("X-GitHub-Request-Id"), err)
	}
	response.Body = io.NopCloser(bytes.NewReader(body))

	if useCache && response.StatusCode == http.StatusOK {
		entry, entryErr := cache.FromResponse(response)
		if entryErr == nil && entry.Revalidatable() {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache set failed")
			}
		}
	}

	return response, nil
}

// categoryFor maps a request path to its rate limit category. The
// tracker corrects this from the X-RateLimit-Resource header once a
// response arrives; this only matters for the first request in a
// category.
func categoryFor(path string) ratelimit.Category {
	switch {
	case strings.HasPrefix(path, "/search"):
		return ratelimit.CategorySearch
	case strings.HasPrefix(path, "/graphql"):
		return ratelimit.CategoryGraphQL
	default:
		return ratelimit.CategoryCore
	}
}
