package securestore

import "context"

// Backend is the raw byte-level persistence underneath Store. Values handed
// to a Backend are already sealed; backends never see plaintext.
type Backend interface {
	// Get returns (nil, nil) when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes all entries atomically.
	Put(ctx context.Context, entries map[string][]byte) error
	// Delete is idempotent.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
