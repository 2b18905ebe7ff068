// Package biometric orchestrates external authentication prompts: at most
// one prompt is outstanding, prompts are debounced, and every prompt resolves
// exactly once.
package biometric

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/psylog/internal/lock"
	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/dmitrijs2005/psylog/internal/timex"
)

const DefaultDebounce = 800 * time.Millisecond

// Recorder receives successful unlocks. *lock.Policy implements it.
type Recorder interface {
	RecordUnlock(ctx context.Context, method lock.Method) error
}

// Observer is told how each prompt ended.
type Observer interface {
	PromptResolved(kind string)
}

type nopObserver struct{}

func (nopObserver) PromptResolved(string) {}

// Gate tracks the in-flight prompt and the debounce window.
type Gate struct {
	recorder Recorder
	log      logging.Logger
	now      timex.Clock
	debounce time.Duration
	observer Observer

	mu         sync.Mutex
	current    *Prompt
	lastPrompt time.Time
}

type Option func(*Gate)

func WithClock(now timex.Clock) Option {
	return func(g *Gate) { g.now = now }
}

func WithDebounce(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.debounce = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(g *Gate) {
		if o != nil {
			g.observer = o
		}
	}
}

func NewGate(recorder Recorder, log logging.Logger, opts ...Option) *Gate {
	g := &Gate{
		recorder: recorder,
		log:      log.With("component", "biometric"),
		now:      time.Now,
		debounce: DefaultDebounce,
		observer: nopObserver{},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// CanPromptNow is false while a prompt is in flight or within the debounce
// window after the last prompt was shown.
func (g *Gate) CanPromptNow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canPromptLocked()
}

func (g *Gate) canPromptLocked() bool {
	if g.current != nil {
		return false
	}
	if g.lastPrompt.IsZero() {
		return true
	}
	return g.now().Sub(g.lastPrompt) >= g.debounce
}

// InFlight reports whether a prompt is outstanding.
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != nil
}

// Begin opens a prompt. It returns false, and no prompt, when CanPromptNow
// is false; that is not an error.
func (g *Gate) Begin() (*Prompt, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.canPromptLocked() {
		return nil, false
	}
	p := &Prompt{gate: g, done: make(chan Outcome, 1)}
	g.current = p
	g.lastPrompt = g.now()
	return p, true
}

// Reset force-clears the in-flight prompt, resolving it as cancelled. Call it
// when the host resumes from suspension, since a prompt interrupted by the
// suspension may never report back.
func (g *Gate) Reset() {
	g.mu.Lock()
	p := g.current
	g.mu.Unlock()

	if p != nil {
		g.log.Warn(context.Background(), "resetting prompt that never resolved")
		p.Cancel()
	}
}

func (g *Gate) release(p *Prompt) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == p {
		g.current = nil
	}
}

// Authenticator shows the platform prompt and resolves p. It may call
// p.Failed any number of times before one terminal call.
type Authenticator interface {
	Authenticate(ctx context.Context, p *Prompt)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, p *Prompt)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, p *Prompt) { f(ctx, p) }

// TryPrompt begins a prompt, hands it to auth and waits for the outcome.
// When no prompt may be shown it returns OutcomeSkipped. Cancelling ctx
// cancels the prompt.
func (g *Gate) TryPrompt(ctx context.Context, auth Authenticator) (Outcome, error) {
	p, ok := g.Begin()
	if !ok {
		return Outcome{Kind: OutcomeSkipped}, nil
	}

	go auth.Authenticate(ctx, p)

	select {
	case o := <-p.Done():
		if o.Kind == OutcomeError && o.Err != nil {
			return o, o.Err
		}
		return o, nil
	case <-ctx.Done():
		p.Cancel()
		o := <-p.Done()
		if o.Kind == OutcomeCancelled {
			return o, fmt.Errorf("prompt: %w", ctx.Err())
		}
		return o, o.Err
	}
}
