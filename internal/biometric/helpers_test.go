package biometric

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/psylog/internal/securestore"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) *securestore.Store {
	t.Helper()
	s, err := securestore.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
