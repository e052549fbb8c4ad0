package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealInfo = "nanoweb ssh password seal v1"

var errSealCorrupt = errors.New("sealed value is corrupt")

// sealer encrypts the SSH password carried inside a token.
// The key is derived from the signing secret, so rotating the secret
// invalidates every outstanding sealed password along with its signature.
type sealer struct {
	key []byte
}

func newSealer(secret []byte) (*sealer, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("derive seal key: %w", err)
	}
	return &sealer{key: key}, nil
}

// seal returns base64url(nonce || ciphertext). binding is authenticated but
// not encrypted; the same binding must be presented to open.
func (s *sealer) seal(plaintext, binding string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), []byte(binding))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *sealer) open(sealed, binding string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", errSealCorrupt
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", errSealCorrupt
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(binding))
	if err != nil {
		return "", errSealCorrupt
	}
	return string(plain), nil
}
