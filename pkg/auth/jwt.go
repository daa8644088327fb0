package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strconv"
	"time"

	"github.com/ghwire/ghwire/pkg/apierr"
)

// Signed assertion lifetime. GitHub rejects assertions valid for more
// than 10 minutes; issuing 60 seconds in the past absorbs clock skew
// between us and GitHub, and the total validity stays at exactly 600s.
const (
	assertionBackdate = 60 * time.Second
	assertionLifetime = 9 * time.Minute
)

// appClaims is the JWT claim set for GitHub App authentication.
type appClaims struct {
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	Issuer    string `json:"iss"`
}

// parsePrivateKey decodes a PEM-encoded RSA private key. GitHub issues
// PKCS1 keys, but some key-conversion tools produce PKCS8, so both are
// accepted.
func parsePrivateKey(privateKeyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, apierr.Configuration("no PEM block found in private key", nil)
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return privateKey, nil
	}

	keyInterface, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if pkcs8Err != nil {
		return nil, apierr.Configuration("parsing private key", fmt.Errorf("%v (also tried PKCS8: %v)", err, pkcs8Err))
	}
	rsaKey, ok := keyInterface.(*rsa.PrivateKey)
	if !ok {
		return nil, apierr.Configuration("private key is not RSA", nil)
	}
	return rsaKey, nil
}

// signAssertion creates the RS256-signed JWT used to authenticate as the
// App. The assertion is short-lived and used solely for App-level
// endpoints and installation token exchange.
func signAssertion(appID int64, privateKey *rsa.PrivateKey, now time.Time) (string, error) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))

	claims := appClaims{
		IssuedAt:  now.Add(-assertionBackdate).Unix(),
		ExpiresAt: now.Add(assertionLifetime).Unix(),
		Issuer:    strconv.FormatInt(appID, 10),
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(claimsJSON)

	signingInput := header + "." + payload
	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}
