package handoff

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const minSecretLen = 32

var ErrWeakSecret = fmt.Errorf("session secret must be at least %d characters", minSecretLen)

var errOpen = errors.New("handoff record failed authentication")

// sealer encrypts and authenticates records so the cache never holds a
// readable or forgeable quiz.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(secret string) (*sealer, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("docquiz handoff v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive handoff key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init handoff cipher: %w", err)
	}
	return &sealer{aead: aead}, nil
}

// seal returns nonce || ciphertext. ad binds the box to its handle.
func (s *sealer) seal(plaintext, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("handoff nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, ad), nil
}

func (s *sealer) open(box, ad []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(box) < ns+s.aead.Overhead() {
		return nil, errOpen
	}
	pt, err := s.aead.Open(nil, box[:ns], box[ns:], ad)
	if err != nil {
		return nil, errOpen
	}
	return pt, nil
}
