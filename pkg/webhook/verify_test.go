package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ghwire/ghwire/pkg/apierr"
)

func testVerifier() *Verifier {
	return NewVerifier(zerolog.New(os.Stderr).Level(zerolog.Disabled))
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func signSHA1(secret string, payload []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(payload)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerify_ValidSignature(t *testing.T) {
	payload := []byte(`{"a":1}`)

	ok, err := testVerifier().Verify(payload, sign("s3cr3t", payload), "s3cr3t")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("correctly signed payload did not verify")
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	payload := []byte(`{"a":1}`)
	signature := sign("s3cr3t", payload)

	tampered := append([]byte(nil), payload...)
	tampered[2] ^= 0x01

	ok, err := testVerifier().Verify(tampered, signature, "s3cr3t")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("tampered payload verified")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	payload := []byte(`{"a":1}`)

	ok, err := testVerifier().Verify(payload, sign("s3cr3t", payload), "different")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("signature verified with the wrong secret")
	}
}

func TestVerify_MalformedHeader(t *testing.T) {
	payload := []byte(`{"a":1}`)

	tests := []struct {
		name   string
		header string
	}{
		{"no prefix", "deadbeef"},
		{"empty digest", "sha256="},
		{"unknown algorithm", "md5=deadbeef"},
		{"non-hex digest", "sha256=zzzz"},
		{"empty header", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := testVerifier().Verify(payload, tt.header, "s3cr3t")
			if err == nil {
				t.Fatal("malformed header must error, not return false")
			}
			if ok {
				t.Error("malformed header verified")
			}
			var apiErr *apierr.Error
			if !errors.As(err, &apiErr) || apiErr.Category != apierr.CategoryWebhook {
				t.Errorf("err = %v, want webhook category", err)
			}
		})
	}
}

func TestVerify_SHA1Accepted(t *testing.T) {
	payload := []byte(`{"a":1}`)
	signature := signSHA1("s3cr3t", payload)

	ok, err := testVerifier().Verify(payload, signature, "s3cr3t")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("sha1 signature did not verify")
	}
}

func TestVerifyRequest_PrefersSHA256(t *testing.T) {
	payload := []byte(`{"a":1}`)

	headers := http.Header{}
	headers.Set(SignatureHeader, sign("s3cr3t", payload))
	headers.Set(SignatureHeaderSHA1, "sha1=0000")

	ok, err := testVerifier().VerifyRequest(payload, headers, "s3cr3t")
	if err != nil {
		t.Fatalf("VerifyRequest: %v", err)
	}
	if !ok {
		t.Error("sha256 header was not preferred")
	}
}

func TestVerifyRequest_NoSignature(t *testing.T) {
	_, err := testVerifier().VerifyRequest([]byte(`{"a":1}`), http.Header{}, "s3cr3t")
	if err == nil {
		t.Error("missing signature header must error")
	}
}
