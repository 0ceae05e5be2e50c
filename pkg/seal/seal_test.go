// Package seal tests.
package seal

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSealUnseal_RoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmAESGCM, AlgorithmChaCha20} {
		t.Run(string(alg), func(t *testing.T) {
			s, err := NewWithAlgorithm(testKey(), alg)
			if err != nil {
				t.Fatalf("NewWithAlgorithm(%s) error = %v", alg, err)
			}

			payload := []byte(`{"term":3,"candidate_id":"mmnode-01"}`)
			sealed, err := s.Seal(payload, "mmnode-01")
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}

			if bytes.Contains(sealed, payload) {
				t.Error("sealed payload contains plaintext")
			}

			opened, err := s.Unseal(sealed, "mmnode-01")
			if err != nil {
				t.Fatalf("Unseal() error = %v", err)
			}
			if !bytes.Equal(opened, payload) {
				t.Errorf("Unseal() = %q, want %q", opened, payload)
			}
		})
	}
}

func TestUnseal_WrongSenderID(t *testing.T) {
	s, _ := New(testKey())

	sealed, err := s.Seal([]byte("payload"), "mmnode-01")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if _, err := s.Unseal(sealed, "mmnode-02"); err != ErrUnsealFailed {
		t.Errorf("Unseal with wrong sender = %v, want ErrUnsealFailed", err)
	}
}

func TestUnseal_WrongKey(t *testing.T) {
	s1, _ := New(testKey())

	otherKey := testKey()
	otherKey[0] ^= 0xff
	s2, _ := New(otherKey)

	sealed, _ := s1.Seal([]byte("payload"), "mmnode-01")
	if _, err := s2.Unseal(sealed, "mmnode-01"); err != ErrUnsealFailed {
		t.Errorf("Unseal with wrong key = %v, want ErrUnsealFailed", err)
	}
}

func TestUnseal_Truncated(t *testing.T) {
	s, _ := New(testKey())

	if _, err := s.Unseal([]byte("short"), "mmnode-01"); err != ErrUnsealFailed {
		t.Errorf("Unseal(short) = %v, want ErrUnsealFailed", err)
	}
}

func TestNew_InvalidKeySize(t *testing.T) {
	if _, err := New([]byte("too-short")); err != ErrInvalidKeySize {
		t.Errorf("New(short key) = %v, want ErrInvalidKeySize", err)
	}
}

func TestSeal_NonceUniqueness(t *testing.T) {
	s, _ := New(testKey())

	a, _ := s.Seal([]byte("same"), "mmnode-01")
	b, _ := s.Seal([]byte("same"), "mmnode-01")

	if bytes.Equal(a, b) {
		t.Error("two seals of the same payload produced identical output")
	}
}
