package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/AdithyaKothamasu/Sleep-lab/internal/crypto"
)

const (
	// KeyPrefix fronts every agent API key so Validate can reject junk
	// without a store lookup.
	KeyPrefix = "slk_"

	keyEntropyBytes = 32
)

var (
	ErrKeyNotFound = errors.New("agent: api key not recognized")
	ErrNoActiveKey = errors.New("agent: no active key for install")
)

// KeyRecord maps one active API key to its install and that install's
// wrapped DEK. The plaintext DEK never persists; lookup of the wrapped
// form always goes through this record, so revoking it makes the old DEK
// unreachable.
type KeyRecord struct {
	APIKey     string
	InstallID  string
	WrappedDEK []byte
	CreatedAt  time.Time
}

// KeyStore persists key records with the invariant of at most one active
// key per install. Replace and DeleteByInstall act on the key record and
// its install mapping as a single unit: the two views are never
// half-written.
type KeyStore interface {
	Replace(ctx context.Context, rec KeyRecord) error
	GetByKey(ctx context.Context, apiKey string) (*KeyRecord, error)
	GetByInstall(ctx context.Context, installID string) (*KeyRecord, error)
	DeleteByInstall(ctx context.Context, installID string) (*KeyRecord, error)
}

// RecordPurger is the slice of the record store the registry needs for
// the revocation cascade.
type RecordPurger interface {
	DeleteInstall(ctx context.Context, installID string) error
}

// Registry mints, validates and revokes agent API keys, and owns the
// per-install DEK lifecycle that rides along with them.
//
// Two concurrent Register calls for one install are not mutually
// excluded; the store settles on whichever wrote last and the loser's key
// simply never validates.
type Registry struct {
	keys    KeyStore
	records RecordPurger
	kek     []byte
	logger  *log.Logger
}

func NewRegistry(keys KeyStore, records RecordPurger, kek []byte, logger *log.Logger) *Registry {
	return &Registry{keys: keys, records: records, kek: kek, logger: logger}
}

// Register mints a fresh DEK and API key for the install, replacing any
// existing key. Replacement is a revocation: the old key stops validating
// immediately, and the install's records are purged because they were
// sealed under the retired DEK and can never decrypt again.
func (r *Registry) Register(ctx context.Context, installID string) (*KeyRecord, error) {
	if installID == "" {
		return nil, errors.New("agent: empty install id")
	}

	if prior, err := r.keys.GetByInstall(ctx, installID); err == nil {
		r.logger.Printf("register install=%s: replacing key from %s", installID, prior.CreatedAt.Format(time.RFC3339))
		if err := r.records.DeleteInstall(ctx, installID); err != nil {
			return nil, err
		}
	}

	dek, err := crypto.GenerateDEK()
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(dek)

	wrapped, err := crypto.WrapDEK(dek, r.kek)
	if err != nil {
		return nil, err
	}

	suffix := make([]byte, keyEntropyBytes)
	if _, err := rand.Read(suffix); err != nil {
		return nil, err
	}
	rec := KeyRecord{
		APIKey:     KeyPrefix + hex.EncodeToString(suffix),
		InstallID:  installID,
		WrappedDEK: wrapped,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.keys.Replace(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Validate resolves an API key to its record. Strings without the key
// prefix are rejected on the fast path.
func (r *Registry) Validate(ctx context.Context, apiKey string) (*KeyRecord, error) {
	if !strings.HasPrefix(apiKey, KeyPrefix) {
		return nil, ErrKeyNotFound
	}
	rec, err := r.keys.GetByKey(ctx, apiKey)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	return rec, nil
}

// FindByInstall returns the install's active key record, if any.
func (r *Registry) FindByInstall(ctx context.Context, installID string) (*KeyRecord, error) {
	rec, err := r.keys.GetByInstall(ctx, installID)
	if err != nil {
		return nil, ErrNoActiveKey
	}
	return rec, nil
}

// Revoke deletes the install's key record and cascades to every encrypted
// record for that install. Irreversible purge, not a soft delete.
func (r *Registry) Revoke(ctx context.Context, installID string) (*KeyRecord, error) {
	rec, err := r.keys.DeleteByInstall(ctx, installID)
	if err != nil {
		return nil, ErrNoActiveKey
	}
	if err := r.records.DeleteInstall(ctx, installID); err != nil {
		return nil, err
	}
	r.logger.Printf("revoke install=%s: key and records purged", installID)
	return rec, nil
}

// UnwrapDEK recovers the install's plaintext DEK from a validated key
// record. Callers must Zero the result when done.
func (r *Registry) UnwrapDEK(rec *KeyRecord) ([]byte, error) {
	return crypto.UnwrapDEK(rec.WrappedDEK, r.kek)
}
