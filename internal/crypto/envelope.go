package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// DEKSize is the size of a data encryption key.
	DEKSize = 32
	// IVSize is the AES-GCM nonce size used for record payloads.
	IVSize = 12
	// TagSize is the AES-GCM authentication tag size.
	TagSize = 16

	wrapInfo = "sleeplab/dek-wrap/v1"
)

var (
	ErrUnwrap  = errors.New("crypto: key unwrap failed")
	ErrDecrypt = errors.New("crypto: message authentication failed")
)

// Sealed is one encrypted record payload. The AEAD primitive appends the
// tag to the ciphertext; Encrypt splits them so the store keeps them as
// separate fields, and Decrypt reassembles the exact concatenation.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// GenerateDEK returns a fresh random 256-bit data encryption key.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, err
	}
	return dek, nil
}

// WrapDEK seals a DEK under the master key-encryption-key. The wrapping
// key is derived from the KEK with HKDF-SHA256 so the KEK itself is never
// used as a cipher key directly. Layout: [nonce||ciphertext||tag].
func WrapDEK(dek, kek []byte) ([]byte, error) {
	if len(dek) != DEKSize {
		return nil, errors.New("crypto: bad DEK size")
	}
	wrapKey, err := deriveWrapKey(kek)
	if err != nil {
		return nil, err
	}
	defer Zero(wrapKey)

	aead, err := chacha20poly1305.NewX(wrapKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(dek)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, dek, nil)
	return out, nil
}

// UnwrapDEK recovers a DEK previously sealed with WrapDEK. A KEK that does
// not match the wrapping KEK yields ErrUnwrap, never garbage key bytes.
func UnwrapDEK(wrapped, kek []byte) ([]byte, error) {
	if len(wrapped) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ErrUnwrap
	}
	wrapKey, err := deriveWrapKey(kek)
	if err != nil {
		return nil, err
	}
	defer Zero(wrapKey)

	aead, err := chacha20poly1305.NewX(wrapKey)
	if err != nil {
		return nil, err
	}
	nonce := wrapped[:chacha20poly1305.NonceSizeX]
	dek, err := aead.Open(nil, nonce, wrapped[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, ErrUnwrap
	}
	return dek, nil
}

// Encrypt seals a record payload with AES-256-GCM under the install's DEK,
// generating a fresh 96-bit IV per call.
func Encrypt(plaintext, dek []byte) (Sealed, error) {
	aead, err := newGCM(dek)
	if err != nil {
		return Sealed{}, err
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Sealed{}, err
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - TagSize
	return Sealed{
		Ciphertext: sealed[:tagStart],
		IV:         iv,
		Tag:        sealed[tagStart:],
	}, nil
}

// Decrypt opens a record payload. Any bit of corruption in ciphertext, IV,
// or tag, and any wrong key, fails authentication as a whole.
func Decrypt(s Sealed, dek []byte) ([]byte, error) {
	if len(s.IV) != IVSize || len(s.Tag) != TagSize {
		return nil, ErrDecrypt
	}
	aead, err := newGCM(dek)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(s.Ciphertext)+TagSize)
	sealed = append(sealed, s.Ciphertext...)
	sealed = append(sealed, s.Tag...)
	pt, err := aead.Open(nil, s.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func newGCM(dek []byte) (cipher.AEAD, error) {
	if len(dek) != DEKSize {
		return nil, errors.New("crypto: bad DEK size")
	}
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func deriveWrapKey(kek []byte) ([]byte, error) {
	if len(kek) == 0 {
		return nil, errors.New("crypto: empty KEK")
	}
	stream := hkdf.New(sha256.New, kek, nil, []byte(wrapInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(stream, key); err != nil {
		return nil, err
	}
	return key, nil
}
