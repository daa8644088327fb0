package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key identifies one cached response. Responses are private to the
// credential that fetched them, so the key includes a fingerprint of
// the Authorization value alongside the URL.
type Key struct {
	// URL is the full request URL including the query string.
	URL string

	// CredentialFingerprint scopes the entry to one credential. Empty
	// for anonymous requests.
	CredentialFingerprint string
}

// NewKey builds a Key, deriving the fingerprint from the Authorization
// header value. The value itself is hashed immediately and never
// stored.
func NewKey(url, authorization string) Key {
	return Key{URL: url, CredentialFingerprint: Fingerprint(authorization)}
}

// Fingerprint reduces a credential to a short non-reversible
// identifier. Safe to log and to embed in Redis keys.
func Fingerprint(authorization string) string {
	if authorization == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(authorization))
	return hex.EncodeToString(sum[:8])
}

// String renders the Redis key. Format: ghapi:<fingerprint>:<url>,
// with "anon" standing in for the empty fingerprint.
func (k Key) String() string {
	fingerprint := k.CredentialFingerprint
	if fingerprint == "" {
		fingerprint = "anon"
	}
	return strings.Join([]string{"ghapi", fingerprint, k.URL}, ":")
}
