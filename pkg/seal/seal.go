// Package seal provides authenticated sealing of inter-node payloads.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required cluster key size in bytes.
const KeySize = 32

// Common errors.
var (
	ErrInvalidKeySize = errors.New("seal: cluster key must be 32 bytes")
	ErrUnsealFailed   = errors.New("seal: payload authentication failed")
)

// Algorithm identifies the AEAD algorithm.
type Algorithm string

const (
	AlgorithmAESGCM   Algorithm = "aes-gcm"
	AlgorithmChaCha20 Algorithm = "chacha20-poly1305"
)

// Sealer seals and unseals payloads with a shared cluster key.
type Sealer struct {
	aead cipher.AEAD
	alg  Algorithm
}

// New creates a sealer with the given cluster key, selecting the
// algorithm by hardware capability.
func New(key []byte) (*Sealer, error) {
	if hasAESHardware() {
		return NewWithAlgorithm(key, AlgorithmAESGCM)
	}
	return NewWithAlgorithm(key, AlgorithmChaCha20)
}

// NewWithAlgorithm creates a sealer with an explicit algorithm.
func NewWithAlgorithm(key []byte, alg Algorithm) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	switch alg {
	case AlgorithmAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		return &Sealer{aead: aead, alg: alg}, nil

	case AlgorithmChaCha20:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, err
		}
		return &Sealer{aead: aead, alg: alg}, nil

	default:
		return nil, errors.New("seal: unknown algorithm " + string(alg))
	}
}

// Algorithm returns the selected AEAD algorithm.
func (s *Sealer) Algorithm() Algorithm {
	return s.alg
}

// Seal encrypts and authenticates payload. The sender's node ID is
// bound as additional data, so a sealed payload cannot be replayed
// under a different declared identity.
func (s *Sealer) Seal(payload []byte, senderID string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	// Nonce is prepended to the sealed payload.
	return s.aead.Seal(nonce, nonce, payload, []byte(senderID)), nil
}

// Unseal authenticates and decrypts a sealed payload from senderID.
func (s *Sealer) Unseal(sealed []byte, senderID string) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, ErrUnsealFailed
	}

	nonce := sealed[:s.aead.NonceSize()]
	ciphertext := sealed[s.aead.NonceSize():]

	payload, err := s.aead.Open(nil, nonce, ciphertext, []byte(senderID))
	if err != nil {
		return nil, ErrUnsealFailed
	}
	return payload, nil
}

// hasAESHardware reports whether the platform accelerates AES.
// Go's crypto/aes uses AES-NI on amd64 and the crypto extensions on arm64.
func hasAESHardware() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}
