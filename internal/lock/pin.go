package lock

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/cryptox"
)

const minPinLength = 4

// SetPin stores a salted hash of pin. PINs are 4+ digits.
func (p *Policy) SetPin(ctx context.Context, pin string) error {
	pin = strings.TrimSpace(pin)
	if len(pin) < minPinLength || strings.IndexFunc(pin, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return fmt.Errorf("%w: pin must be at least %d digits", common.ErrValidation, minPinLength)
	}
	if err := p.store.SetString(ctx, keyPinHash, cryptox.HashPin(pin)); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (p *Policy) HasPin(ctx context.Context) (bool, error) {
	_, ok, err := p.store.GetString(ctx, keyPinHash)
	return ok, err
}

func (p *Policy) ClearPin(ctx context.Context) error {
	return p.store.Delete(ctx, keyPinHash)
}

// VerifyPin checks pin against the stored hash. No PIN set means false.
func (p *Policy) VerifyPin(ctx context.Context, pin string) (bool, error) {
	hash, ok, err := p.store.GetString(ctx, keyPinHash)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return cryptox.VerifyPin(strings.TrimSpace(pin), hash)
}

// UnlockWithPin verifies pin and records a "pin" unlock on success.
func (p *Policy) UnlockWithPin(ctx context.Context, pin string) (bool, error) {
	ok, err := p.VerifyPin(ctx, pin)
	if err != nil || !ok {
		return false, err
	}
	if err := p.RecordUnlock(ctx, MethodPin); err != nil {
		return false, err
	}
	return true, nil
}
