package biometric

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/psylog/internal/lock"
)

type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeError     OutcomeKind = "error"
	OutcomeCancelled OutcomeKind = "cancelled"
	// OutcomeSkipped is returned by TryPrompt when no prompt was shown.
	OutcomeSkipped OutcomeKind = "skipped"
)

// Outcome is the single terminal result of a prompt.
type Outcome struct {
	Kind   OutcomeKind
	Method lock.Method
	Reason string
	// Failures counts recoverable failed reads before the terminal result.
	Failures int
	Err      error
}

// Prompt is one outstanding authentication request. Exactly one of Succeed,
// Error or Cancel takes effect; later calls are ignored.
type Prompt struct {
	gate     *Gate
	done     chan Outcome
	once     sync.Once
	failures atomic.Int32
}

// Done delivers the outcome once, then is closed.
func (p *Prompt) Done() <-chan Outcome {
	return p.done
}

func (p *Prompt) resolve(fn func() Outcome) bool {
	resolved := false
	p.once.Do(func() {
		resolved = true
		o := fn()
		o.Failures = int(p.failures.Load())
		p.gate.release(p)
		p.gate.observer.PromptResolved(string(o.Kind))
		p.done <- o
		close(p.done)
	})
	return resolved
}

// Succeed records the unlock with the lock policy and resolves the prompt.
// If the unlock cannot be persisted the prompt resolves as an error and the
// session stays locked.
func (p *Prompt) Succeed(ctx context.Context, method lock.Method) error {
	var err error
	ok := p.resolve(func() Outcome {
		if err = p.gate.recorder.RecordUnlock(ctx, method); err != nil {
			p.gate.log.Error(ctx, "unlock not recorded", "method", method, "error", err)
			return Outcome{Kind: OutcomeError, Method: method, Reason: "unlock not recorded", Err: err}
		}
		return Outcome{Kind: OutcomeSuccess, Method: method}
	})
	if !ok {
		return ErrAlreadyResolved
	}
	return err
}

// ErrAlreadyResolved is returned by Succeed on a prompt that already ended.
var ErrAlreadyResolved = errors.New("prompt already resolved")

// Failed notes a recoverable failure while the authenticator keeps showing its
// own retry UI. The prompt stays in flight.
func (p *Prompt) Failed() {
	p.failures.Add(1)
}

// Error resolves the prompt with a terminal error.
func (p *Prompt) Error(reason string) {
	p.resolve(func() Outcome { return Outcome{Kind: OutcomeError, Reason: reason} })
}

// Cancel resolves the prompt as cancelled by the user or the host.
func (p *Prompt) Cancel() {
	p.resolve(func() Outcome { return Outcome{Kind: OutcomeCancelled} })
}
