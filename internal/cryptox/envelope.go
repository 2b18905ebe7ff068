package cryptox

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/psylog/internal/common"
)

// Envelope is the public metadata stored next to an encrypted payload
// (metadata.json in the outer archive). Binary fields are hex-encoded on disk.
type Envelope struct {
	Algorithm  string
	Salt       []byte
	IV         []byte
	Iterations int
	Timestamp  time.Time
}

type envelopeJSON struct {
	Algorithm  string `json:"algorithm"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	Iterations int    `json:"iterations"`
	Timestamp  int64  `json:"timestamp"`
}

// NewEnvelope returns an envelope with a fresh random salt and IV.
// Envelopes are single-use: encrypting twice with one would reuse the IV.
func NewEnvelope(iterations int, now time.Time) Envelope {
	return Envelope{
		Algorithm:  Algorithm,
		Salt:       common.GenerateRandByteArray(SaltSize),
		IV:         common.GenerateRandByteArray(NonceSize),
		Iterations: iterations,
		Timestamp:  now,
	}
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(envelopeJSON{
		Algorithm:  e.Algorithm,
		Salt:       hex.EncodeToString(e.Salt),
		IV:         hex.EncodeToString(e.IV),
		Iterations: e.Iterations,
		Timestamp:  e.Timestamp.UnixMilli(),
	}, "", "  ")
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	salt, err := hex.DecodeString(raw.Salt)
	if err != nil {
		return fmt.Errorf("salt: %w", err)
	}
	iv, err := hex.DecodeString(raw.IV)
	if err != nil {
		return fmt.Errorf("iv: %w", err)
	}
	*e = Envelope{
		Algorithm:  raw.Algorithm,
		Salt:       salt,
		IV:         iv,
		Iterations: raw.Iterations,
		Timestamp:  time.UnixMilli(raw.Timestamp),
	}
	return nil
}

// Validate checks the envelope can be used for decryption.
func (e Envelope) Validate() error {
	if e.Algorithm != Algorithm {
		return fmt.Errorf("%w: unsupported algorithm %q", common.ErrCrypto, e.Algorithm)
	}
	if len(e.Salt) != SaltSize {
		return fmt.Errorf("%w: salt must be %d bytes", common.ErrCrypto, SaltSize)
	}
	if len(e.IV) != NonceSize {
		return fmt.Errorf("%w: iv must be %d bytes", common.ErrCrypto, NonceSize)
	}
	if e.Iterations < MinIterations {
		return fmt.Errorf("%w: iteration count %d below minimum", common.ErrCrypto, e.Iterations)
	}
	return nil
}

// EncryptWithPassword derives a key for env and seals plaintext under env.IV.
func EncryptWithPassword(password []byte, env Envelope, plaintext []byte) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	key, err := DeriveKey(password, env.Salt, env.Iterations)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	return Seal(key.Bytes(), env.IV, plaintext)
}

// DecryptWithPassword reverses EncryptWithPassword. A wrong password surfaces
// as common.ErrAuthFailed.
func DecryptWithPassword(password []byte, env Envelope, ciphertext []byte) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	key, err := DeriveKey(password, env.Salt, env.Iterations)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	return Open(key.Bytes(), env.IV, ciphertext)
}
