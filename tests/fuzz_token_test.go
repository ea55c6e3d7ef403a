package tests

import (
	"testing"
	"time"

	"github.com/AdithyaKothamasu/Sleep-lab/internal/token"
)

// FuzzVerifyNeverAccepts feeds arbitrary strings to Verify: it must never
// panic and must never produce claims for input it did not issue.
func FuzzVerifyNeverAccepts(f *testing.F) {
	codec, err := token.NewHMACCodec([]byte("0123456789abcdef0123456789abcdef"), "sleeplab-fuzz")
	if err != nil {
		f.Fatalf("codec: %v", err)
	}
	issued, _, err := codec.Issue("install-1", token.TypeAccess, time.Minute, nil)
	if err != nil {
		f.Fatalf("issue: %v", err)
	}

	f.Add(issued)
	f.Add("")
	f.Add("a.b.c")
	f.Add(issued + "x")
	f.Fuzz(func(t *testing.T, in string) {
		claims, err := codec.Verify(in)
		if err != nil {
			return
		}
		// The only verifiable string this harness ever signed is the
		// seed token itself.
		if in != issued {
			t.Fatalf("accepted unissued input %q", in)
		}
		if claims.Subject != "install-1" || claims.Type != token.TypeAccess {
			t.Fatalf("seed token claims corrupted: %+v", claims)
		}
	})
}
