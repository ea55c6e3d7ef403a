package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dek := randBytes(t, DEKSize)
	pt := randBytes(t, 4096)

	sealed, err := Encrypt(pt, dek)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(sealed.IV) != IVSize || len(sealed.Tag) != TagSize {
		t.Fatalf("bad iv/tag sizes: %d/%d", len(sealed.IV), len(sealed.Tag))
	}
	out, err := Decrypt(sealed, dek)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, out) {
		t.Fatal("plaintext mismatch")
	}
}

func TestEncryptNonDeterministic(t *testing.T) {
	dek := randBytes(t, DEKSize)
	pt := []byte("same plaintext")

	a, err := Encrypt(pt, dek)
	if err != nil {
		t.Fatalf("encrypt a: %v", err)
	}
	b, err := Encrypt(pt, dek)
	if err != nil {
		t.Fatalf("encrypt b: %v", err)
	}
	if bytes.Equal(a.IV, b.IV) {
		t.Fatal("IV reused across calls")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Fatal("identical ciphertext for identical plaintext")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	k1 := randBytes(t, DEKSize)
	k2 := randBytes(t, DEKSize)
	sealed, err := Encrypt([]byte("secret"), k1)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt(sealed, k2); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestDecryptTamper(t *testing.T) {
	dek := randBytes(t, DEKSize)
	sealed, err := Encrypt([]byte("integrity matters"), dek)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	mutCT := sealed
	mutCT.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
	mutCT.Ciphertext[0] ^= 0xFF
	if _, err := Decrypt(mutCT, dek); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("ciphertext tamper: expected ErrDecrypt, got %v", err)
	}

	mutIV := sealed
	mutIV.IV = append([]byte(nil), sealed.IV...)
	mutIV.IV[0] ^= 0xFF
	if _, err := Decrypt(mutIV, dek); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("iv tamper: expected ErrDecrypt, got %v", err)
	}

	mutTag := sealed
	mutTag.Tag = append([]byte(nil), sealed.Tag...)
	mutTag.Tag[len(mutTag.Tag)-1] ^= 0xFF
	if _, err := Decrypt(mutTag, dek); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("tag tamper: expected ErrDecrypt, got %v", err)
	}
}

func TestWrapUnwrapDEK(t *testing.T) {
	kek1 := randBytes(t, 32)
	kek2 := randBytes(t, 32)

	dek, err := GenerateDEK()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	wrapped, err := WrapDEK(dek, kek1)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if bytes.Contains(wrapped, dek) {
		t.Fatal("wrapped form contains plaintext DEK")
	}

	got, err := UnwrapDEK(wrapped, kek1)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if !bytes.Equal(dek, got) {
		t.Fatal("unwrapped DEK mismatch")
	}

	if _, err := UnwrapDEK(wrapped, kek2); !errors.Is(err, ErrUnwrap) {
		t.Fatalf("wrong KEK: expected ErrUnwrap, got %v", err)
	}

	mut := append([]byte(nil), wrapped...)
	mut[len(mut)-1] ^= 0x01
	if _, err := UnwrapDEK(mut, kek1); !errors.Is(err, ErrUnwrap) {
		t.Fatalf("tampered wrap: expected ErrUnwrap, got %v", err)
	}
}

func TestGenerateDEKUnique(t *testing.T) {
	a, err := GenerateDEK()
	if err != nil {
		t.Fatalf("generate a: %v", err)
	}
	b, err := GenerateDEK()
	if err != nil {
		t.Fatalf("generate b: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two DEKs identical")
	}
}

func TestDeriveKEKDeterministic(t *testing.T) {
	salt := randBytes(t, 16)
	a, err := DeriveKEK([]byte("master-secret"), ServerKDF(salt))
	if err != nil {
		t.Fatalf("derive a: %v", err)
	}
	b, err := DeriveKEK([]byte("master-secret"), ServerKDF(salt))
	if err != nil {
		t.Fatalf("derive b: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("same secret+salt gave different KEKs")
	}
	c, err := DeriveKEK([]byte("other-secret"), ServerKDF(salt))
	if err != nil {
		t.Fatalf("derive c: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatal("different secrets gave the same KEK")
	}
}

func TestSubKeyDomainSeparation(t *testing.T) {
	kek := randBytes(t, 32)
	a, err := SubKey(kek, "sleeplab/token/v1")
	if err != nil {
		t.Fatalf("subkey a: %v", err)
	}
	b, err := SubKey(kek, "sleeplab/other/v1")
	if err != nil {
		t.Fatalf("subkey b: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("distinct infos gave the same subkey")
	}
}
