// Package webhook validates the authenticity of inbound GitHub webhook
// deliveries via their HMAC signature headers.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ghwire/ghwire/pkg/apierr"
)

// Standard GitHub webhook headers.
const (
	// SignatureHeader carries the HMAC-SHA256 payload signature.
	SignatureHeader = "X-Hub-Signature-256"

	// SignatureHeaderSHA1 carries the deprecated HMAC-SHA1 signature.
	SignatureHeaderSHA1 = "X-Hub-Signature"

	// EventHeader names the event type (e.g. "push", "pull_request").
	EventHeader = "X-GitHub-Event"

	// DeliveryHeader carries the unique delivery id, useful for dedup
	// and replay awareness. Not enforced here.
	DeliveryHeader = "X-GitHub-Delivery"
)

// Verifier validates webhook payload signatures.
type Verifier struct {
	logger zerolog.Logger
}

// NewVerifier creates a webhook verifier.
func NewVerifier(logger zerolog.Logger) *Verifier {
	return &Verifier{logger: logger}
}

// Verify checks the signature header against an HMAC computed over the
// raw payload bytes with the shared secret. The payload must be the
// unparsed request body; any re-serialization breaks the digest.
//
// A structurally valid but mismatched signature returns (false, nil).
// Malformed input (missing prefix, non-hex digest, unsupported
// algorithm) returns a webhook-category error.
func (v *Verifier) Verify(payload []byte, signatureHeader, secret string) (bool, error) {
	algorithm, hexDigest, found := strings.Cut(signatureHeader, "=")
	if !found || hexDigest == "" {
		return false, apierr.Webhook("signature header missing algorithm prefix")
	}

	var newHash func() hash.Hash
	switch algorithm {
	case "sha256":
		newHash = sha256.New
	case "sha1":
		// Deprecated by GitHub; still delivered for legacy hooks.
		v.logger.Warn().Msg("Webhook signed with deprecated sha1 signature")
		newHash = sha1.New
	default:
		return false, apierr.Webhook("unsupported signature algorithm " + algorithm)
	}

	provided, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false, apierr.Webhook("signature digest is not valid hex")
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	// hmac.Equal is a fixed-time comparison; never compare digests with
	// bytes.Equal, which short-circuits on the first difference.
	return hmac.Equal(provided, expected), nil
}

// VerifyRequest is a convenience for HTTP handlers: it reads the
// signature from the request headers, preferring SHA-256 over the
// deprecated SHA-1 header.
func (v *Verifier) VerifyRequest(payload []byte, headers http.Header, secret string) (bool, error) {
	signature := headers.Get(SignatureHeader)
	if signature == "" {
		signature = headers.Get(SignatureHeaderSHA1)
	}
	if signature == "" {
		return false, apierr.Webhook("no signature header present")
	}
	return v.Verify(payload, signature, secret)
}
