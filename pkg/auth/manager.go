// Package auth produces request headers for each supported GitHub
// credential type and manages the installation token cache for App
// authentication.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghwire/ghwire/pkg/apierr"
)

// tokenRefreshMargin is how far before expiry a cached installation
// token is replaced. GitHub installation tokens live one hour; a 5
// minute margin avoids a token expiring mid-request.
const tokenRefreshMargin = 5 * time.Minute

// credentialKind is the closed set of credential variants. Exactly one
// is active per Manager.
type credentialKind int

const (
	kindAnonymous credentialKind = iota
	kindToken
	kindApp
	kindRefreshable
)

// cachedToken is an installation token snapshot. Replaced wholesale on
// refresh, never mutated in place.
type cachedToken struct {
	value     string
	expiresAt time.Time
}

// fresh reports whether the token is still usable with the refresh
// margin applied.
func (t *cachedToken) fresh(now time.Time) bool {
	return t != nil && t.value != "" && now.Before(t.expiresAt.Add(-tokenRefreshMargin))
}

// Manager owns one credential and produces authentication headers for
// it. For App credentials it also owns the installation token cache:
// reads take the read lock, a miss or stale entry triggers an
// exclusive-lock double-check before the token exchange so concurrent
// callers trigger at most one exchange.
//
// Safe for concurrent use.
type Manager struct {
	kind   credentialKind
	logger zerolog.Logger

	// Static token credential (PAT, fine-grained, OAuth).
	token string

	// Refreshable token credential.
	accessToken  string
	accessExpiry time.Time

	// App credential.
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	exchangeClient *http.Client
	baseURL        string

	now func() time.Time

	mu     sync.RWMutex
	cached map[int64]*cachedToken
}

// AppConfig holds the fields for GitHub App authentication.
type AppConfig struct {
	// AppID is the App's numeric identifier, used as the JWT issuer.
	AppID int64

	// PrivateKeyPEM is the App's PEM-encoded RSA signing key.
	PrivateKeyPEM []byte

	// InstallationID scopes tokens to one installation. Zero means the
	// Manager issues App-level JWTs directly (no token exchange).
	InstallationID int64

	// BaseURL is the API root for the token exchange call.
	BaseURL string

	// HTTPClient performs the token exchange. The exchange deliberately
	// bypasses the resilience orchestrator to avoid recursive re-entry;
	// it has its own bounded retry. Defaults to a 30s-timeout client.
	HTTPClient *http.Client
}

// NewAnonymous creates a Manager that attaches no Authorization header.
func NewAnonymous(logger zerolog.Logger) *Manager {
	return &Manager{kind: kindAnonymous, logger: logger, now: time.Now}
}

// NewToken creates a Manager for a static bearer token (PAT,
// fine-grained, or OAuth token).
func NewToken(token string, logger zerolog.Logger) (*Manager, error) {
	if token == "" {
		return nil, apierr.Configuration("token credential is empty", nil)
	}
	return &Manager{kind: kindToken, token: token, logger: logger, now: time.Now}, nil
}

// NewRefreshable creates a Manager for an externally-refreshed access
// token with an optional expiry. A zero expiry means the token does not
// expire.
func NewRefreshable(accessToken string, expiry time.Time, logger zerolog.Logger) (*Manager, error) {
	if accessToken == "" {
		return nil, apierr.Configuration("access token is empty", nil)
	}
	return &Manager{
		kind:         kindRefreshable,
		accessToken:  accessToken,
		accessExpiry: expiry,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// NewApp creates a Manager for GitHub App authentication. Returns a
// configuration error when the private key is malformed.
func NewApp(config AppConfig, logger zerolog.Logger) (*Manager, error) {
	if config.AppID == 0 {
		return nil, apierr.Configuration("app id is required", nil)
	}

	privateKey, err := parsePrivateKey(config.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Manager{
		kind:           kindApp,
		appID:          config.AppID,
		installationID: config.InstallationID,
		privateKey:     privateKey,
		exchangeClient: httpClient,
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		logger:         logger,
		now:            time.Now,
		cached:         make(map[int64]*cachedToken),
	}, nil
}

// Headers returns the authentication headers for one request. App
// credentials with an installation id resolve to a cached (or freshly
// exchanged) installation token; without one the signed App assertion
// itself is the bearer value.
func (m *Manager) Headers(ctx context.Context) (http.Header, error) {
	headers := http.Header{}

	switch m.kind {
	case kindAnonymous:
		return headers, nil

	case kindToken:
		headers.Set("Authorization", "Bearer "+m.token)
		return headers, nil

	case kindRefreshable:
		if !m.accessExpiry.IsZero() && !m.now().Before(m.accessExpiry) {
			return nil, apierr.Authentication(0, "access token expired")
		}
		headers.Set("Authorization", "Bearer "+m.accessToken)
		return headers, nil

	case kindApp:
		if m.installationID == 0 {
			assertion, err := signAssertion(m.appID, m.privateKey, m.now())
			if err != nil {
				return nil, apierr.Configuration("signing app assertion", err)
			}
			headers.Set("Authorization", "Bearer "+assertion)
			return headers, nil
		}

		token, err := m.installationToken(ctx, m.installationID)
		if err != nil {
			return nil, err
		}
		headers.Set("Authorization", "Bearer "+token)
		return headers, nil

	default:
		return nil, apierr.Configuration("unknown credential kind", nil)
	}
}

// RefreshIfNeeded proactively refreshes the installation token when it
// is missing or within the refresh margin of expiry. Idempotent and
// safe to call opportunistically before any request; a no-op for
// non-App credentials.
func (m *Manager) RefreshIfNeeded(ctx context.Context) error {
	if m.kind != kindApp || m.installationID == 0 {
		return nil
	}
	_, err := m.installationToken(ctx, m.installationID)
	return err
}

// installationToken returns a fresh installation token, exchanging the
// App assertion for a new one when the cache is empty or stale.
func (m *Manager) installationToken(ctx context.Context, installationID int64) (string, error) {
	now := m.now()

	m.mu.RLock()
	token := m.cached[installationID]
	m.mu.RUnlock()
	if token.fresh(now) {
		return token.value, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check: another caller may have refreshed while we waited
	// for the write lock.
	if token := m.cached[installationID]; token.fresh(m.now()) {
		return token.value, nil
	}

	value, expiresAt, err := m.exchange(ctx, installationID)
	if err != nil {
		return "", err
	}

	m.cached[installationID] = &cachedToken{value: value, expiresAt: expiresAt}
	m.logger.Debug().
		Int64("installation_id", installationID).
		Time("expires_at", expiresAt).
		Msg("Installation token refreshed")

	return value, nil
}

// exchange trades a signed App assertion for an installation token.
// This call bypasses the resilience orchestrator (it runs underneath
// it) and retries once on transport failures and 5xx responses.
func (m *Manager) exchange(ctx context.Context, installationID int64) (string, time.Time, error) {
	assertion, err := signAssertion(m.appID, m.privateKey, m.now())
	if err != nil {
		return "", time.Time{}, apierr.Configuration("signing app assertion", err)
	}

	url := m.baseURL + "/app/installations/" + strconv.FormatInt(installationID, 10) + "/access_tokens"

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("create token exchange request: %w", err)
		}
		request.Header.Set("Authorization", "Bearer "+assertion)
		request.Header.Set("Accept", "application/vnd.github+json")

		response, err := m.exchangeClient.Do(request)
		if err != nil {
			lastErr = apierr.Network(err)
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(response.Body, 1<<20))
		response.Body.Close()
		if readErr != nil {
			lastErr = apierr.Response(response.Header.Get("X-GitHub-Request-Id"), readErr)
			continue
		}

		if response.StatusCode >= 500 {
			lastErr = apierr.Authentication(response.StatusCode, "token exchange failed")
			continue
		}
		if response.StatusCode != http.StatusCreated {
			return "", time.Time{}, apierr.Authentication(response.StatusCode, "token exchange rejected")
		}

		var result struct {
			Token     string    `json:"token"`
			ExpiresAt time.Time `json:"expires_at"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return "", time.Time{}, apierr.Response(response.Header.Get("X-GitHub-Request-Id"), err)
		}
		if result.Token == "" {
			return "", time.Time{}, apierr.Authentication(response.StatusCode, "token exchange returned empty token")
		}

		return result.Token, result.ExpiresAt, nil
	}

	return "", time.Time{}, lastErr
}

// SanitizeHeaders returns a copy of headers safe for logging. The
// Authorization value is replaced with a prefix-derived type hint; the
// secret itself never appears.
func (m *Manager) SanitizeHeaders(headers http.Header) http.Header {
	sanitized := headers.Clone()
	if sanitized.Get("Authorization") == "" {
		return sanitized
	}
	sanitized.Set("Authorization", redactAuthorization(headers.Get("Authorization")))
	return sanitized
}

// redactAuthorization maps a bearer value to a type hint. GitHub token
// prefixes identify the credential type without revealing the secret.
func redactAuthorization(value string) string {
	token := strings.TrimPrefix(value, "Bearer ")
	token = strings.TrimPrefix(token, "token ")

	var hint string
	switch {
	case strings.HasPrefix(token, "ghp_"):
		hint = "personal-token"
	case strings.HasPrefix(token, "github_pat_"):
		hint = "fine-grained-token"
	case strings.HasPrefix(token, "ghs_"):
		hint = "installation-token"
	case strings.HasPrefix(token, "gho_"):
		hint = "oauth-token"
	case strings.Count(token, ".") == 2:
		hint = "app-jwt"
	default:
		hint = "token"
	}
	return "Bearer [redacted:" + hint + "]"
}
