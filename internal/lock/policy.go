// Package lock implements the access-lock policy: the single rule that decides
// whether the user must re-authenticate before data is shown, the deferred
// auto-lock that follows the app into the background, PIN management and the
// access history.
//
// Every decision flows through Decide. Storage failures fail closed: the
// session is marked locked and the error is returned to the host.
package lock

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/dmitrijs2005/psylog/internal/securestore"
	"github.com/dmitrijs2005/psylog/internal/timex"
)

const (
	keyEnabled     = "lock.enabled"
	keyAutoDelay   = "lock.auto_delay"
	keyPinHash     = "lock.pin_hash"
	keyLastUnlock  = "lock.last_unlock"
	keyInitialized = "lock.initialized"
	keyHistory     = "lock.history"
)

// Config is the persisted lock configuration.
type Config struct {
	Enabled              bool
	AutoLockDelaySeconds uint32
	PinHash              string
	// LastUnlockAtEpochMs is meaningful only when HasLastUnlock is set.
	LastUnlockAtEpochMs int64
	HasLastUnlock       bool
	Initialized         bool
}

// HasUnlocked reports whether an unlock was ever recorded.
func (c Config) HasUnlocked() bool {
	return c.HasLastUnlock
}

// Decide is the lock rule:
//
//	enabled && (locked || never unlocked || now-lastUnlock >= delay)
//
// Exactly delay*1000 ms after the last unlock counts as "must authenticate".
func Decide(cfg Config, locked bool, now time.Time) bool {
	if !cfg.Enabled {
		return false
	}
	if locked || !cfg.HasUnlocked() {
		return true
	}
	elapsed := now.UnixMilli() - cfg.LastUnlockAtEpochMs
	return elapsed >= int64(cfg.AutoLockDelaySeconds)*1000
}

// Policy owns the per-session lock state on top of the persisted Config.
// Construct one per running session and pass it to the components that need it.
type Policy struct {
	store     *securestore.Store
	log       logging.Logger
	now       timex.Clock
	afterFunc timex.AfterFunc

	mu             sync.Mutex
	locked         bool
	lastBackground time.Time
	pending        timex.Timer
	pendingGen     uint64
}

// Option customises a Policy.
type Option func(*Policy)

// WithClock replaces time.Now.
func WithClock(now timex.Clock) Option {
	return func(p *Policy) { p.now = now }
}

// WithAfterFunc replaces time.AfterFunc for the deferred lock.
func WithAfterFunc(f timex.AfterFunc) Option {
	return func(p *Policy) { p.afterFunc = f }
}

func NewPolicy(store *securestore.Store, log logging.Logger, opts ...Option) *Policy {
	p := &Policy{
		store:     store,
		log:       log.With("component", "lock"),
		now:       time.Now,
		afterFunc: timex.RealAfterFunc,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Config reads the persisted configuration.
func (p *Policy) Config(ctx context.Context) (Config, error) {
	var cfg Config

	enabled, _, err := p.store.GetBool(ctx, keyEnabled)
	if err != nil {
		return Config{}, err
	}
	delay, _, err := p.store.GetInt(ctx, keyAutoDelay)
	if err != nil {
		return Config{}, err
	}
	pin, _, err := p.store.GetString(ctx, keyPinHash)
	if err != nil {
		return Config{}, err
	}
	last, hasLast, err := p.store.GetLong(ctx, keyLastUnlock)
	if err != nil {
		return Config{}, err
	}
	initialized, _, err := p.store.GetBool(ctx, keyInitialized)
	if err != nil {
		return Config{}, err
	}

	cfg.Enabled = enabled
	if delay > 0 {
		cfg.AutoLockDelaySeconds = uint32(delay)
	}
	cfg.PinHash = pin
	cfg.LastUnlockAtEpochMs = last
	cfg.HasLastUnlock = hasLast
	cfg.Initialized = initialized
	return cfg, nil
}

// failClosed marks the session locked after a storage failure.
func (p *Policy) failClosed(ctx context.Context, op string, err error) error {
	p.mu.Lock()
	p.locked = true
	p.mu.Unlock()
	p.log.Error(ctx, "lock state unavailable, failing closed", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, err)
}

// NeedsAuthentication applies Decide to the persisted config and the session
// flag. On storage failure it returns true together with the error.
func (p *Policy) NeedsAuthentication(ctx context.Context) (bool, error) {
	cfg, err := p.Config(ctx)
	if err != nil {
		return true, p.failClosed(ctx, "needs authentication", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return Decide(cfg, p.locked, p.now()), nil
}

// Initialize is called once at startup: the session starts locked iff
// authentication is needed, and the app is marked initialized.
func (p *Policy) Initialize(ctx context.Context) (bool, error) {
	needs, err := p.NeedsAuthentication(ctx)
	if err != nil {
		return true, err
	}
	p.mu.Lock()
	p.locked = needs
	p.mu.Unlock()

	if err := p.store.SetBool(ctx, keyInitialized, true); err != nil {
		return true, p.failClosed(ctx, "initialize", err)
	}
	return needs, nil
}

// IsLocked returns the in-memory session flag.
func (p *Policy) IsLocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locked
}

// Lock marks the session locked. It is a no-op while locking is disabled.
func (p *Policy) Lock(ctx context.Context) error {
	cfg, err := p.Config(ctx)
	if err != nil {
		return p.failClosed(ctx, "lock", err)
	}
	if !cfg.Enabled {
		return nil
	}
	p.mu.Lock()
	p.locked = true
	p.mu.Unlock()
	return nil
}

// RecordUnlock persists the unlock time, appends to the access history and
// clears the session flag. The flag is only cleared once the write succeeded.
func (p *Policy) RecordUnlock(ctx context.Context, method Method) error {
	m, err := ParseMethod(string(method))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	history, err := p.readHistory(ctx)
	if err != nil {
		p.locked = true
		return fmt.Errorf("record unlock: %w", err)
	}
	history = appendEvent(history, AccessEvent{TimestampMs: now.UnixMilli(), Method: m})

	encoded, err := encodeHistory(history)
	if err != nil {
		p.locked = true
		return fmt.Errorf("record unlock: %w: %v", common.ErrStorage, err)
	}

	err = p.store.Batch().
		SetLong(keyLastUnlock, now.UnixMilli()).
		SetBool(keyInitialized, true).
		SetString(keyHistory, encoded).
		Commit(ctx)
	if err != nil {
		p.locked = true
		p.log.Error(ctx, "unlock not persisted, staying locked", "method", m, "error", err)
		return fmt.Errorf("record unlock: %w", err)
	}

	p.locked = false
	p.log.Info(ctx, "unlocked", "method", m)
	return nil
}

// OnBackgrounded starts the auto-lock countdown. With a zero delay the session
// locks immediately; otherwise a deferred check runs after the delay and locks
// only if the app has stayed in the background for the whole delay.
func (p *Policy) OnBackgrounded(ctx context.Context) error {
	cfg, err := p.Config(ctx)
	if err != nil {
		return p.failClosed(ctx, "backgrounded", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !cfg.Enabled {
		return nil
	}

	p.cancelPendingLocked()
	p.lastBackground = p.now()

	if cfg.AutoLockDelaySeconds == 0 {
		p.locked = true
		return nil
	}

	delay := time.Duration(cfg.AutoLockDelaySeconds) * time.Second
	gen := p.pendingGen
	p.pending = p.afterFunc(delay, func() { p.deferredLock(gen, delay) })
	return nil
}

func (p *Policy) deferredLock(gen uint64, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.pendingGen {
		return
	}
	p.pending = nil
	if p.now().Sub(p.lastBackground) >= delay {
		p.locked = true
	}
}

// OnForegrounded cancels a pending deferred lock. It never unlocks.
func (p *Policy) OnForegrounded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelPendingLocked()
}

func (p *Policy) cancelPendingLocked() {
	p.pendingGen++
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
}

// SetEnabled turns locking on or off. Disabling clears the session flag and
// any pending deferred lock.
func (p *Policy) SetEnabled(ctx context.Context, enabled bool) error {
	b := p.store.Batch().SetBool(keyEnabled, enabled)
	if enabled {
		b.SetBool(keyInitialized, true)
	}
	if err := b.Commit(ctx); err != nil {
		return p.failClosed(ctx, "set enabled", err)
	}

	if !enabled {
		p.mu.Lock()
		p.locked = false
		p.cancelPendingLocked()
		p.mu.Unlock()
	}
	return nil
}

// SetAutoLockDelay stores the delay in seconds; negative values become 0.
func (p *Policy) SetAutoLockDelay(ctx context.Context, seconds int) error {
	if seconds < 0 {
		seconds = 0
	}
	if seconds > math.MaxInt32 {
		seconds = math.MaxInt32
	}
	if err := p.store.SetInt(ctx, keyAutoDelay, int32(seconds)); err != nil {
		return p.failClosed(ctx, "set auto-lock delay", err)
	}
	return nil
}
