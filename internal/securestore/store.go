// Package securestore provides durable, encrypted-at-rest key/value
// persistence for lock settings, backup metadata and the cached snapshot.
//
// Callers see typed values (bool, int, long, string); underneath, every value
// is sealed with AES-256-GCM under a per-device key before it reaches the
// Backend (SQLite by default, badger optionally). Reads are safe for
// concurrent use; writes are last-writer-wins.
package securestore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/cryptox"
)

// Store is the typed, encrypting facade over a Backend.
type Store struct {
	backend Backend
	key     *memguard.LockedBuffer

	closeOnce sync.Once
	closeErr  error
}

// New wraps backend with deviceKey. The key bytes are moved into a locked
// buffer and wiped from the caller's slice.
func New(backend Backend, deviceKey []byte) (*Store, error) {
	if len(deviceKey) != cryptox.KeySize {
		return nil, fmt.Errorf("%w: device key must be %d bytes", common.ErrStorage, cryptox.KeySize)
	}
	return &Store{backend: backend, key: memguard.NewBufferFromBytes(deviceKey)}, nil
}

func storageErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", common.ErrStorage, op, key, err)
}

func (s *Store) getRaw(ctx context.Context, key string) (string, bool, error) {
	sealed, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", false, storageErr("get", key, err)
	}
	if sealed == nil {
		return "", false, nil
	}
	plain, err := cryptox.OpenValue(s.key.Bytes(), sealed)
	if err != nil {
		return "", false, storageErr("decrypt", key, err)
	}
	return string(plain), true, nil
}

func (s *Store) GetString(ctx context.Context, key string) (string, bool, error) {
	return s.getRaw(ctx, key)
}

func (s *Store) GetBool(ctx context.Context, key string) (bool, bool, error) {
	raw, ok, err := s.getRaw(ctx, key)
	if err != nil || !ok {
		return false, ok, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, storageErr("parse bool", key, err)
	}
	return v, true, nil
}

func (s *Store) GetInt(ctx context.Context, key string) (int32, bool, error) {
	raw, ok, err := s.getRaw(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, false, storageErr("parse int", key, err)
	}
	return int32(v), true, nil
}

func (s *Store) GetLong(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := s.getRaw(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, storageErr("parse long", key, err)
	}
	return v, true, nil
}

func (s *Store) SetString(ctx context.Context, key, value string) error {
	return s.Batch().SetString(key, value).Commit(ctx)
}

func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	return s.Batch().SetBool(key, value).Commit(ctx)
}

func (s *Store) SetInt(ctx context.Context, key string, value int32) error {
	return s.Batch().SetInt(key, value).Commit(ctx)
}

func (s *Store) SetLong(ctx context.Context, key string, value int64) error {
	return s.Batch().SetLong(key, value).Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := s.backend.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

// Close releases the backend and destroys the device key.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.backend.Close()
		s.key.Destroy()
	})
	return s.closeErr
}

// Batch collects several writes that are committed atomically.
type Batch struct {
	store  *Store
	values map[string]string
}

func (s *Store) Batch() *Batch {
	return &Batch{store: s, values: make(map[string]string)}
}

func (b *Batch) SetString(key, value string) *Batch {
	b.values[key] = value
	return b
}

func (b *Batch) SetBool(key string, value bool) *Batch {
	b.values[key] = strconv.FormatBool(value)
	return b
}

func (b *Batch) SetInt(key string, value int32) *Batch {
	b.values[key] = strconv.FormatInt(int64(value), 10)
	return b
}

func (b *Batch) SetLong(key string, value int64) *Batch {
	b.values[key] = strconv.FormatInt(value, 10)
	return b
}

func (b *Batch) Commit(ctx context.Context) error {
	if len(b.values) == 0 {
		return nil
	}
	sealed := make(map[string][]byte, len(b.values))
	for k, v := range b.values {
		ct, err := cryptox.SealValue(b.store.key.Bytes(), []byte(v))
		if err != nil {
			return storageErr("encrypt", k, err)
		}
		sealed[k] = ct
	}
	if err := b.store.backend.Put(ctx, sealed); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}
