package securestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/psylog/internal/dbx"
	"github.com/dmitrijs2005/psylog/internal/securestore/migrations"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores sealed values in the kv table of a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// RunMigrations applies the embedded goose migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// OpenSQLite opens (creating if needed) the database at dsn and migrates it.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent sets.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewSQLiteBackend(db), nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kv[%s]: %w", key, err)
	}
	return value, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, entries map[string][]byte) error {
	now := time.Now().Unix()
	err := dbx.WithTx(ctx, b.db, func(ctx context.Context, tx dbx.DBTX) error {
		for k, v := range entries {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, k, v, now)
			if err != nil {
				return fmt.Errorf("kv[%s]: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put kv: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, keys ...string) error {
	err := dbx.WithTx(ctx, b.db, func(ctx context.Context, tx dbx.DBTX) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
				return fmt.Errorf("kv[%s]: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete kv: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
