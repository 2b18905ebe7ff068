package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MaxHistory is the number of access events retained.
const MaxHistory = 50

// AccessEvent is one recorded unlock.
type AccessEvent struct {
	TimestampMs int64  `json:"timestamp"`
	Method      Method `json:"method"`
}

func (e AccessEvent) Time() time.Time {
	return time.UnixMilli(e.TimestampMs)
}

// appendEvent puts e first and drops the oldest entries beyond MaxHistory.
func appendEvent(history []AccessEvent, e AccessEvent) []AccessEvent {
	out := make([]AccessEvent, 0, min(len(history)+1, MaxHistory))
	out = append(out, e)
	for _, h := range history {
		if len(out) == MaxHistory {
			break
		}
		out = append(out, h)
	}
	return out
}

func encodeHistory(h []AccessEvent) (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readHistory tolerates a corrupt stored value by starting over; only storage
// failures are returned.
func (p *Policy) readHistory(ctx context.Context) ([]AccessEvent, error) {
	raw, ok, err := p.store.GetString(ctx, keyHistory)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var h []AccessEvent
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		p.log.Warn(ctx, "discarding unreadable access history", "error", err)
		return nil, nil
	}
	return h, nil
}

// AccessHistory returns recorded unlocks, newest first.
func (p *Policy) AccessHistory(ctx context.Context) ([]AccessEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readHistory(ctx)
}

func (p *Policy) ClearAccessHistory(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Delete(ctx, keyHistory); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

