package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testCodec(t *testing.T) *HMACCodec {
	t.Helper()
	secret := []byte("0123456789abcdef0123456789abcdef")
	c, err := NewHMACCodec(secret, "sleeplab-test")
	if err != nil {
		t.Fatalf("NewHMACCodec: %v", err)
	}
	return c
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	c := testCodec(t)
	extra := map[string]string{"scope": "sync agent patterns"}

	tok, exp, err := c.Issue("install-1", TypeAccess, 15*time.Minute, extra)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(strings.Split(tok, ".")) != 3 {
		t.Fatalf("expected three dot segments, got %q", tok)
	}

	claims, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "install-1" || claims.Type != TypeAccess {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.Extra["scope"] != "sync agent patterns" {
		t.Fatalf("extra claims lost: %+v", claims.Extra)
	}
	if claims.ExpiresAt != claims.IssuedAt+int64((15*time.Minute).Seconds()) {
		t.Fatalf("exp != iat+ttl: iat=%d exp=%d", claims.IssuedAt, claims.ExpiresAt)
	}
	if exp.Unix() != claims.ExpiresAt {
		t.Fatalf("returned exp %d != claim exp %d", exp.Unix(), claims.ExpiresAt)
	}
}

func TestVerifyExpired(t *testing.T) {
	c := testCodec(t)
	tok, _, err := c.Issue("install-1", TypeAccess, -time.Minute, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.Verify(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifySignatureTamper(t *testing.T) {
	c := testCodec(t)
	tok, _, err := c.Issue("install-1", TypeChallenge, 5*time.Minute, map[string]string{"nonce": "n"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(tok, ".")
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decode sig: %v", err)
	}

	// Flipping any byte of the signature must fail as an invalid
	// signature, never as expiry or a parse error.
	for i := range sig {
		mut := append([]byte(nil), sig...)
		mut[i] ^= 0x01
		tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(mut)
		if _, err := c.Verify(tampered); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("byte %d: expected ErrInvalidSignature, got %v", i, err)
		}
	}
}

func TestVerifyMalformed(t *testing.T) {
	c := testCodec(t)
	for _, in := range []string{"", "abc", "a.b", "a.b.c.d", "not a token at all"} {
		if _, err := c.Verify(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestVerifyUnknownType(t *testing.T) {
	c := testCodec(t)

	// A well-signed token with a typ outside the known set must still be
	// rejected.
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "sleeplab-test",
		"sub": "install-1",
		"typ": "refresh",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok, err := raw.SignedString(c.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Verify(tok); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	c := testCodec(t)
	other, err := NewHMACCodec([]byte("ffffffffffffffffffffffffffffffff"), "sleeplab-test")
	if err != nil {
		t.Fatalf("NewHMACCodec: %v", err)
	}
	tok, _, err := c.Issue("install-1", TypeAccess, time.Minute, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestIssueRejectsUnknownType(t *testing.T) {
	c := testCodec(t)
	if _, _, err := c.Issue("install-1", "session", time.Minute, nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}
