package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeChallenge = "challenge"
	TypeAccess    = "access"
)

var (
	ErrMalformed        = errors.New("token: malformed token")
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrExpired          = errors.New("token: expired")
	ErrUnknownType      = errors.New("token: unknown token type")
)

// Claims is the verified content of a token. Extra carries the
// type-specific claims: "pk" and "nonce" for challenges, "scope" for
// access tokens.
type Claims struct {
	Subject   string
	Type      string
	IssuedAt  int64
	ExpiresAt int64
	Extra     map[string]string
}

// Codec issues and verifies compact signed claim sets. Verification is
// stateless: a valid signature plus an unexpired timestamp is the whole
// proof, there is no server-side session record and no revocation list.
type Codec interface {
	Issue(subject, typ string, ttl time.Duration, extra map[string]string) (string, time.Time, error)
	Verify(tokenStr string) (*Claims, error)
}

type HMACCodec struct {
	secret []byte
	iss    string
}

func NewHMACCodec(secret []byte, issuer string) (*HMACCodec, error) {
	if len(secret) < 32 {
		return nil, errors.New("token: signing secret must be at least 32 bytes")
	}
	if issuer == "" {
		return nil, errors.New("token: issuer required")
	}
	return &HMACCodec{secret: secret, iss: issuer}, nil
}

func (c *HMACCodec) Issue(subject, typ string, ttl time.Duration, extra map[string]string) (string, time.Time, error) {
	if typ != TypeChallenge && typ != TypeAccess {
		return "", time.Time{}, ErrUnknownType
	}
	now := time.Now()
	exp := now.Add(ttl)

	claims := jwt.MapClaims{
		"iss": c.iss,
		"sub": subject,
		"typ": typ,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := tok.SignedString(c.secret)
	return ss, exp, err
}

func (c *HMACCodec) Verify(tokenStr string) (*Claims, error) {
	keyFunc := func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	}

	tok, err := jwt.ParseWithClaims(
		tokenStr,
		jwt.MapClaims{},
		keyFunc,
		jwt.WithIssuer(c.iss),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			// Signature mismatch, wrong issuer, wrong method: all of
			// these collapse into one failure so callers cannot probe
			// which check tripped.
			return nil, ErrInvalidSignature
		}
	}
	if !tok.Valid {
		return nil, ErrInvalidSignature
	}

	std, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}

	getString := func(k string) string {
		if v, ok := std[k].(string); ok {
			return v
		}
		return ""
	}
	getInt64 := func(k string) int64 {
		switch v := std[k].(type) {
		case float64:
			return int64(v)
		case int64:
			return v
		default:
			return 0
		}
	}

	typ := getString("typ")
	if typ != TypeChallenge && typ != TypeAccess {
		return nil, ErrUnknownType
	}

	extra := map[string]string{}
	for k, v := range std {
		switch k {
		case "iss", "sub", "typ", "iat", "exp":
			continue
		}
		if s, ok := v.(string); ok {
			extra[k] = s
		}
	}

	return &Claims{
		Subject:   getString("sub"),
		Type:      typ,
		IssuedAt:  getInt64("iat"),
		ExpiresAt: getInt64("exp"),
		Extra:     extra,
	}, nil
}
