package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

type KDFParams struct {
	M    uint32
	T    uint32
	P    uint8
	Salt []byte
}

// ServerKDF is the argon2id cost profile for deriving the process KEK from
// the configured master secret. Paid once at startup.
func ServerKDF(salt []byte) KDFParams {
	return KDFParams{M: 64 * 1024, T: 3, P: 4, Salt: salt}
}

// DeriveKEK stretches the configured master secret into the 256-bit
// key-encryption-key with argon2id.
func DeriveKEK(master []byte, p KDFParams) ([]byte, error) {
	if len(master) == 0 {
		return nil, errors.New("crypto: empty master secret")
	}
	if len(p.Salt) < 16 {
		return nil, errors.New("crypto: KDF salt must be at least 16 bytes")
	}
	return argon2.IDKey(master, p.Salt, p.T, p.M, p.P, 32), nil
}

// SubKey derives an independent 256-bit subkey from the KEK for a named
// purpose, e.g. the token signing secret. Distinct info strings yield
// unrelated keys.
func SubKey(kek []byte, info string) ([]byte, error) {
	if len(kek) == 0 {
		return nil, errors.New("crypto: empty KEK")
	}
	stream := hkdf.New(sha256.New, kek, nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(stream, key); err != nil {
		return nil, err
	}
	return key, nil
}
