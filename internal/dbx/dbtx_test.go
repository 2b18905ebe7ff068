package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE kv (key TEXT PRIMARY KEY, value BLOB);`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	return n
}

func insert(ctx context.Context, tx DBTX, key string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO kv(key, value) VALUES (?, x'00')`, key)
	return err
}

func TestWithTx_Commits(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, func(ctx context.Context, tx DBTX) error {
		if err := insert(ctx, tx, "a"); err != nil {
			return err
		}
		return insert(ctx, tx, "b")
	})
	require.NoError(t, err)
	require.Equal(t, 2, countRows(t, db))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := setupDB(t)
	boom := errors.New("boom")

	err := WithTx(context.Background(), db, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, insert(ctx, tx, "a"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, countRows(t, db))
}

func TestWithTx_RollsBackAndRethrowsPanic(t *testing.T) {
	db := setupDB(t)

	require.PanicsWithValue(t, "kaboom", func() {
		_ = WithTx(context.Background(), db, func(ctx context.Context, tx DBTX) error {
			require.NoError(t, insert(ctx, tx, "a"))
			panic("kaboom")
		})
	})
	require.Equal(t, 0, countRows(t, db))
}

func TestWithTx_BeginError(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, func(ctx context.Context, tx DBTX) error { return nil })
	require.Error(t, err)
}
