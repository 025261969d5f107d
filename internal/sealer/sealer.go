// Package sealer encrypts secrets before they are written to a database.
package sealer

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const prefix = "enc:v1:"

// Sealer encrypts with XChaCha20-Poly1305. A nil *Sealer passes values through unchanged.
type Sealer struct {
	key []byte
}

// New returns nil for an empty key.
func New(key []byte) (*Sealer, error) {
	if len(key) == 0 {
		return nil, nil
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("[sealer.New] key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// Seal encrypts value. Empty strings stay empty.
func (s *Sealer) Seal(value string) (string, error) {
	if s == nil || value == "" {
		return value, nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", errors.Wrap(err, "[Sealer.Seal] NewX")
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "[Sealer.Seal] rand.Read")
	}
	sealed := aead.Seal(nonce, nonce, []byte(value), nil)
	return prefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value. Values without the sealed prefix are returned as
// stored, so rows written before a key was configured stay readable.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	if s == nil {
		return "", errors.New("[Sealer.Open] value is sealed but no key is configured")
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", errors.Wrap(err, "[Sealer.Open] decode")
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", errors.Wrap(err, "[Sealer.Open] NewX")
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("[Sealer.Open] sealed value too short")
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", errors.Wrap(err, "[Sealer.Open] open")
	}
	return string(plain), nil
}

// SealPtr seals an optional value, keeping nil as nil.
func (s *Sealer) SealPtr(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	sealed, err := s.Seal(*value)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

// OpenPtr opens an optional value, keeping nil as nil.
func (s *Sealer) OpenPtr(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	plain, err := s.Open(*value)
	if err != nil {
		return nil, err
	}
	return &plain, nil
}
