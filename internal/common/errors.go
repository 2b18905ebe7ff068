// Package common defines shared sentinel errors and small helpers used across
// psylog components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Persistence layer unavailable or failing.
	ErrStorage = errors.New("storage error")

	// Key derivation or cipher failure. Never downgraded to "unencrypted".
	ErrCrypto = errors.New("crypto error")

	// Authenticated decryption failed: wrong password or tampered payload.
	ErrAuthFailed = fmt.Errorf("%w: authentication failed", ErrCrypto)

	// Malformed or truncated container, missing required entry.
	ErrArchiveFormat = errors.New("archive format error")

	// Encrypted archive and no password supplied.
	ErrPasswordRequired = errors.New("password required")

	// A single attachment failed to read or write.
	ErrMediaIO = errors.New("media i/o error")

	// Snapshot text empty or unparsable.
	ErrValidation = errors.New("validation error")

	// A build or restore is already in progress.
	ErrBusy = errors.New("operation already in progress")

	ErrNotFound = errors.New("not found")
)

// Classify maps an error to a short user-facing message. Raw internals are
// never returned; unknown errors collapse to a generic message.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPasswordRequired):
		return "password needed"
	case errors.Is(err, ErrAuthFailed):
		return "wrong password or corrupted backup"
	case errors.Is(err, ErrCrypto):
		return "encryption failure"
	case errors.Is(err, ErrArchiveFormat):
		return "backup file is damaged or not a backup"
	case errors.Is(err, ErrValidation):
		return "backup data is empty or invalid"
	case errors.Is(err, ErrBusy):
		return "another backup or restore is running"
	case errors.Is(err, ErrStorage):
		return "storage unavailable"
	case errors.Is(err, ErrMediaIO):
		return "media file could not be processed"
	case errors.Is(err, ErrNotFound):
		return "not found"
	default:
		return "unexpected error"
	}
}
