package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/AdithyaKothamasu/Sleep-lab/internal/token"
)

const (
	ChallengeTTL = 5 * time.Minute
	AccessTTL    = 15 * time.Minute

	// AccessScope names the protected operations an exchanged access
	// token is good for.
	AccessScope = "sync agent patterns"
)

// ErrAuthentication is the single failure surfaced by Exchange. Which
// verification step tripped is logged server-side only, so the response
// cannot be used as an oracle.
var ErrAuthentication = errors.New("identity: authentication failed")

// Protocol runs the challenge/response handshake that binds a device
// keypair to an install identity. State machine per install:
// UNREGISTERED -> KEY_REGISTERED -> CHALLENGED -> AUTHENTICATED, with a
// fresh challenge on every renewal.
type Protocol struct {
	installs InstallStore
	codec    token.Codec
	logger   *log.Logger
}

func NewProtocol(installs InstallStore, codec token.Codec, logger *log.Logger) *Protocol {
	return &Protocol{installs: installs, codec: codec, logger: logger}
}

type ChallengeResult struct {
	InstallID      string
	ChallengeToken string
	ExpiresAt      time.Time
}

// Challenge registers (or re-registers) the device public key under the
// install id and issues a challenge token binding {installId, publicKey,
// nonce}. An empty install id mints a fresh identity.
func (p *Protocol) Challenge(ctx context.Context, installID string, publicKey []byte) (*ChallengeResult, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, errors.New("identity: public key must be 32 bytes")
	}
	if installID == "" {
		installID = uuid.NewString()
	}
	if err := p.installs.Put(ctx, installID, publicKey); err != nil {
		return nil, err
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	tok, exp, err := p.codec.Issue(installID, token.TypeChallenge, ChallengeTTL, map[string]string{
		"pk":    base64.StdEncoding.EncodeToString(publicKey),
		"nonce": base64.RawURLEncoding.EncodeToString(nonce),
	})
	if err != nil {
		return nil, err
	}
	return &ChallengeResult{InstallID: installID, ChallengeToken: tok, ExpiresAt: exp}, nil
}

type AccessResult struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Exchange trades a signed challenge for an access token. Every step must
// pass: token validity and type, structural match against the challenge's
// embedded identity, match against the stored public key, and an ed25519
// signature over the raw challenge token string. Any failure
// short-circuits with ErrAuthentication.
func (p *Protocol) Exchange(ctx context.Context, installID string, publicKey []byte, challengeToken string, signature []byte) (*AccessResult, error) {
	claims, err := p.codec.Verify(challengeToken)
	if err != nil {
		p.logger.Printf("exchange install=%s: challenge verify: %v", installID, err)
		return nil, ErrAuthentication
	}
	if claims.Type != token.TypeChallenge {
		p.logger.Printf("exchange install=%s: token type %q", installID, claims.Type)
		return nil, ErrAuthentication
	}

	boundKey, err := base64.StdEncoding.DecodeString(claims.Extra["pk"])
	if err != nil || claims.Subject != installID || subtle.ConstantTimeCompare(boundKey, publicKey) != 1 {
		p.logger.Printf("exchange install=%s: challenge binding mismatch", installID)
		return nil, ErrAuthentication
	}

	stored, err := p.installs.Get(ctx, installID)
	if err != nil {
		p.logger.Printf("exchange install=%s: lookup: %v", installID, err)
		return nil, ErrAuthentication
	}
	if subtle.ConstantTimeCompare(stored.PublicKey, publicKey) != 1 {
		p.logger.Printf("exchange install=%s: stored key mismatch", installID)
		return nil, ErrAuthentication
	}

	if len(signature) != ed25519.SignatureSize ||
		!ed25519.Verify(ed25519.PublicKey(publicKey), []byte(challengeToken), signature) {
		p.logger.Printf("exchange install=%s: signature verify failed", installID)
		return nil, ErrAuthentication
	}

	access, exp, err := p.codec.Issue(installID, token.TypeAccess, AccessTTL, map[string]string{
		"scope": AccessScope,
	})
	if err != nil {
		return nil, err
	}
	return &AccessResult{AccessToken: access, ExpiresAt: exp}, nil
}
