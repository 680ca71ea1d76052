package users

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestHashIP(t *testing.T) {
	// sha256("1.2.3.4")
	const want = "6694f83c9f476da31f5df6bcc520034e7e57d421d247b9d34f49edbfc84a764c"
	if got := HashIP("1.2.3.4"); got != want {
		t.Errorf("HashIP = %s, want %s", got, want)
	}
	if HashIP(" 1.2.3.4\n") != HashIP("1.2.3.4") {
		t.Error("surrounding whitespace changed the hash")
	}
	if HashIP("1.2.3.4") == HashIP("1.2.3.5") {
		t.Error("different addresses hash equal")
	}
}

func TestUserUUID(t *testing.T) {
	a := UserUUID("a@example.com", "1.2.3.4")
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a != UserUUID("a@example.com", "1.2.3.4") {
		t.Error("UserUUID not deterministic")
	}
	if a == UserUUID("a@example.com", "1.2.3.5") {
		t.Error("UserUUID ignores the IP")
	}
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(testKey(1))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("user@example.com")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("user@example.com")) {
		t.Error("sealed value contains the plaintext")
	}
	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "user@example.com" {
		t.Errorf("Open = %q", got)
	}

	again, _ := s.Seal("user@example.com")
	if bytes.Equal(sealed, again) {
		t.Error("two seals of the same email are identical")
	}
}

func TestSealer_OpenFailures(t *testing.T) {
	s, _ := NewSealer(testKey(1))
	other, _ := NewSealer(testKey(2))
	sealed, _ := s.Seal("user@example.com")

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name  string
		open  *Sealer
		input []byte
	}{
		{"wrong key", other, sealed},
		{"tampered", s, tampered},
		{"too short", s, sealed[:10]},
		{"empty", s, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.open.Open(tt.input); !errors.Is(err, ErrSealed) {
				t.Errorf("expected ErrSealed, got %v", err)
			}
		})
	}
}

func TestSealer_HashEmail(t *testing.T) {
	s, _ := NewSealer(testKey(1))
	other, _ := NewSealer(testKey(2))

	h := s.HashEmail("User@Example.com ")
	if h != s.HashEmail("user@example.com") {
		t.Error("hash not normalised for case and whitespace")
	}
	if h == other.HashEmail("user@example.com") {
		t.Error("hash independent of key")
	}
}

func TestParseKeyAndNewSealer(t *testing.T) {
	good := strings.Repeat("ab", KeySize)
	if key, err := ParseKey(good); err != nil || len(key) != KeySize {
		t.Errorf("ParseKey(good) = %d bytes, %v", len(key), err)
	}
	for _, bad := range []string{"", "zz", strings.Repeat("ab", KeySize-1)} {
		if _, err := ParseKey(bad); err == nil {
			t.Errorf("ParseKey(%q) succeeded", bad)
		}
	}
	if _, err := NewSealer(testKey(1)[:16]); err == nil {
		t.Error("NewSealer accepted a short key")
	}
}
