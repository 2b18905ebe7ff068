package biometric

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/lock"
	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderMock struct {
	mu      sync.Mutex
	methods []lock.Method
	err     error
}

func (r *recorderMock) RecordUnlock(_ context.Context, m lock.Method) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.methods = append(r.methods, m)
	return nil
}

func (r *recorderMock) calls() []lock.Method {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lock.Method(nil), r.methods...)
}

type observerMock struct {
	mu    sync.Mutex
	kinds []string
}

func (o *observerMock) PromptResolved(kind string) {
	o.mu.Lock()
	o.kinds = append(o.kinds, kind)
	o.mu.Unlock()
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newGate(t *testing.T, rec Recorder) (*Gate, *clock) {
	t.Helper()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	return NewGate(rec, logging.Nop(), WithClock(c.Now)), c
}

func TestGate_DebounceAndInFlight(t *testing.T) {
	rec := &recorderMock{}
	g, c := newGate(t, rec)

	assert.True(t, g.CanPromptNow())

	p, ok := g.Begin()
	require.True(t, ok)
	assert.False(t, g.CanPromptNow())
	assert.True(t, g.InFlight())

	// begin while in flight is a no-op
	p2, ok := g.Begin()
	assert.False(t, ok)
	assert.Nil(t, p2)

	c.now = c.now.Add(2 * time.Second)
	assert.False(t, g.CanPromptNow(), "still in flight")

	require.NoError(t, p.Succeed(context.Background(), lock.MethodBiometric))
	assert.False(t, g.InFlight())
	assert.True(t, g.CanPromptNow())
	assert.Equal(t, []lock.Method{lock.MethodBiometric}, rec.calls())
}

func TestGate_DebounceWindow(t *testing.T) {
	g, c := newGate(t, &recorderMock{})

	p, ok := g.Begin()
	require.True(t, ok)
	p.Cancel()

	assert.False(t, g.CanPromptNow())
	c.now = c.now.Add(799 * time.Millisecond)
	assert.False(t, g.CanPromptNow())
	c.now = c.now.Add(time.Millisecond)
	assert.True(t, g.CanPromptNow())
}

func TestPrompt_ExactlyOnce(t *testing.T) {
	rec := &recorderMock{}
	obs := &observerMock{}
	g := NewGate(rec, logging.Nop(), WithObserver(obs))

	p, ok := g.Begin()
	require.True(t, ok)

	p.Failed()
	p.Failed()
	assert.True(t, g.InFlight(), "recoverable failure keeps prompt in flight")

	p.Cancel()
	p.Error("late")
	assert.ErrorIs(t, p.Succeed(context.Background(), lock.MethodPin), ErrAlreadyResolved)

	o, open := <-p.Done()
	require.True(t, open)
	assert.Equal(t, OutcomeCancelled, o.Kind)
	assert.Equal(t, 2, o.Failures)

	_, open = <-p.Done()
	assert.False(t, open)

	assert.Empty(t, rec.calls())
	assert.Equal(t, []string{"cancelled"}, obs.kinds)
}

func TestPrompt_SucceedRecordFailure(t *testing.T) {
	rec := &recorderMock{err: common.ErrStorage}
	g := NewGate(rec, logging.Nop(), WithDebounce(0))

	p, ok := g.Begin()
	require.True(t, ok)
	err := p.Succeed(context.Background(), lock.MethodBiometric)
	require.ErrorIs(t, err, common.ErrStorage)

	o := <-p.Done()
	assert.Equal(t, OutcomeError, o.Kind)
	assert.False(t, g.InFlight())
}

func TestGate_ResetClearsStuckPrompt(t *testing.T) {
	g := NewGate(&recorderMock{}, logging.Nop(), WithDebounce(0))

	p, ok := g.Begin()
	require.True(t, ok)
	assert.False(t, g.CanPromptNow())

	g.Reset()
	assert.True(t, g.CanPromptNow())
	o := <-p.Done()
	assert.Equal(t, OutcomeCancelled, o.Kind)

	// reset with nothing in flight is harmless
	g.Reset()
}

func TestGate_TryPrompt(t *testing.T) {
	tests := []struct {
		name     string
		auth     AuthenticatorFunc
		wantKind OutcomeKind
		wantErr  bool
		recorded int
	}{
		{
			name: "success after retry",
			auth: func(ctx context.Context, p *Prompt) {
				p.Failed()
				_ = p.Succeed(ctx, lock.MethodDeviceCredential)
			},
			wantKind: OutcomeSuccess,
			recorded: 1,
		},
		{
			name:     "terminal error",
			auth:     func(_ context.Context, p *Prompt) { p.Error("lockout") },
			wantKind: OutcomeError,
		},
		{
			name:     "user cancel",
			auth:     func(_ context.Context, p *Prompt) { p.Cancel() },
			wantKind: OutcomeCancelled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorderMock{}
			g := NewGate(rec, logging.Nop(), WithDebounce(0))

			o, err := g.TryPrompt(context.Background(), tt.auth)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantKind, o.Kind)
			assert.Len(t, rec.calls(), tt.recorded)
			assert.False(t, g.InFlight())
		})
	}
}

func TestGate_TryPromptSkippedWhileInFlight(t *testing.T) {
	g := NewGate(&recorderMock{}, logging.Nop())
	_, ok := g.Begin()
	require.True(t, ok)

	o, err := g.TryPrompt(context.Background(), AuthenticatorFunc(func(context.Context, *Prompt) {
		t.Error("authenticator must not run")
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, o.Kind)
}

func TestGate_TryPromptContextCancel(t *testing.T) {
	g := NewGate(&recorderMock{}, logging.Nop(), WithDebounce(0))
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	o, err := g.TryPrompt(ctx, AuthenticatorFunc(func(context.Context, *Prompt) {
		close(started)
	}))
	require.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, OutcomeCancelled, o.Kind)
	assert.False(t, g.InFlight())
}

func TestGate_WithPolicy(t *testing.T) {
	// the gate drives a real lock policy end to end
	ctx := context.Background()
	store := newMemoryStore(t)
	policy := lock.NewPolicy(store, logging.Nop())
	require.NoError(t, policy.SetEnabled(ctx, true))
	require.NoError(t, policy.SetAutoLockDelay(ctx, 300))
	_, err := policy.Initialize(ctx)
	require.NoError(t, err)
	require.True(t, policy.IsLocked())

	g := NewGate(policy, logging.Nop())
	o, err := g.TryPrompt(ctx, AuthenticatorFunc(func(ctx context.Context, p *Prompt) {
		_ = p.Succeed(ctx, lock.MethodBiometric)
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, o.Kind)
	assert.False(t, policy.IsLocked())

	needs, err := policy.NeedsAuthentication(ctx)
	require.NoError(t, err)
	assert.False(t, needs)
}
