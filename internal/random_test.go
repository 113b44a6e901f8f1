package internal

import "testing"

func TestNewOpaqueToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		token, digest, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken: %v", err)
		}
		if !WellFormedToken(token) {
			t.Fatalf("generated token %q is not well formed", token)
		}
		if digest != HashToken(token) || len(digest) != 64 {
			t.Fatalf("unexpected digest %q", digest)
		}
		if _, dup := seen[token]; dup {
			t.Fatal("duplicate token generated")
		}
		seen[token] = struct{}{}
	}
}

func FuzzWellFormedToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if token, _, err := NewOpaqueToken(); err == nil {
		f.Add(token)
	}

	f.Fuzz(func(t *testing.T, input string) {
		if WellFormedToken(input) && len(input) != 43 {
			t.Fatalf("accepted token of length %d", len(input))
		}
		_ = HashToken(input)
	})
}
