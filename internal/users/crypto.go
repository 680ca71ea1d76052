package users

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the length of the email key in bytes.
const KeySize = 32

const nonceSize = 24

// ErrSealed is returned when a sealed email cannot be opened.
var ErrSealed = errors.New("users: sealed email is corrupt or uses another key")

// HashIP returns the hex SHA-256 digest of a public IP address. Addresses
// are never stored in the clear.
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ip)))
	return hex.EncodeToString(sum[:])
}

// UserUUID derives the stable user identifier from the registration email
// and public IP: the hex SHA-256 of their concatenation.
func UserUUID(email, ip string) string {
	sum := sha256.Sum256([]byte(email + ip))
	return hex.EncodeToString(sum[:])
}

// Sealer hashes emails for lookup and seals them for storage under one
// secret key.
type Sealer struct {
	key [KeySize]byte
}

// NewSealer returns a Sealer for a KeySize-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("users: email key must be %d bytes, got %d", KeySize, len(key))
	}
	s := &Sealer{}
	copy(s.key[:], key)
	return s, nil
}

// ParseKey decodes a hex-encoded email key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("users: decode email key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("users: email key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// HashEmail returns a keyed digest of the normalised email, stable across
// calls so it can be indexed.
func (s *Sealer) HashEmail(email string) string {
	mac := hmac.New(sha256.New, s.key[:])
	mac.Write([]byte(normalizeEmail(email)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Seal encrypts email with a random nonce. The nonce is prepended to the
// ciphertext.
func (s *Sealer) Seal(email string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("users: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(email), &nonce, &s.key), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSealed
	}
	return string(out), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
