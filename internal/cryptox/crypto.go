// Package cryptox implements the cryptographic primitives used by psylog:
// password-based key derivation for backup archives (PBKDF2-HMAC-SHA256),
// AES-256-GCM sealing, nonce-prefixed value sealing for the secure store and
// salted PIN hashing (argon2id).
//
// Derived keys are returned inside memguard locked buffers; callers must
// Destroy them when done.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/psylog/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Algorithm is written into every envelope; readers reject anything else.
	Algorithm = "AES-256-GCM"

	KeySize   = 32
	SaltSize  = 16
	NonceSize = 12
	TagSize   = 16

	// MinIterations is the floor for PBKDF2; envelopes asking for fewer are
	// rejected on both encrypt and decrypt.
	MinIterations = 120_000
)

func deriveKeyBytes(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// DeriveKey stretches password into a 256-bit AES key using PBKDF2-HMAC-SHA256.
// The returned buffer is locked in memory and must be destroyed by the caller.
func DeriveKey(password, salt []byte, iterations int) (*memguard.LockedBuffer, error) {
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: %d pbkdf2 iterations is below the minimum of %d", common.ErrCrypto, iterations, MinIterations)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", common.ErrCrypto, SaltSize, len(salt))
	}
	key := memguard.NewBufferFromBytes(deriveKeyBytes(password, salt, iterations))
	if key.Size() == 0 {
		return nil, fmt.Errorf("%w: could not allocate key buffer", common.ErrCrypto)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	aead, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return aead, nil
}

// Seal encrypts plaintext with AES-GCM under key and nonce. The 16-byte tag
// is appended to the ciphertext, matching the layout javax.crypto and
// Python's AESGCM produce.
func Seal(key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", common.ErrCrypto, aead.NonceSize())
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// Open reverses Seal. Any tag mismatch is reported as common.ErrAuthFailed.
func Open(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", common.ErrCrypto, aead.NonceSize())
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrAuthFailed
	}
	return plaintext, nil
}

// SealValue encrypts a small value with a fresh random nonce and returns
// nonce||ciphertext.
func SealValue(key, plaintext []byte) ([]byte, error) {
	nonce := common.GenerateRandByteArray(NonceSize)
	ct, err := Seal(key, nonce, plaintext)
	if err != nil {
		return nil, err
	}
	return append(nonce, ct...), nil
}

// OpenValue expects the nonce-prefixed layout produced by SealValue.
func OpenValue(key, in []byte) ([]byte, error) {
	if len(in) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: sealed value too short: %d bytes", common.ErrCrypto, len(in))
	}
	return Open(key, in[:NonceSize], in[NonceSize:])
}
