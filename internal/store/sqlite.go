package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmerrifield20/wtomax/internal/custody"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var sqliteMigrations embed.FS

// SQLite keeps the snapshot in a single-row table of a local database file.
type SQLite struct {
	db *sql.DB

	mu      sync.Mutex
	version int64
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the embedded schema migrations.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	src, err := iofs.New(sqliteMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Load implements StateStore.
func (s *SQLite) Load(ctx context.Context) (*custody.State, error) {
	var raw []byte
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT state, version FROM vault_state WHERE id = 1`,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load vault state: %w", err)
	}

	var st custody.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode vault state: %w", err)
	}
	s.mu.Lock()
	s.version = version
	s.mu.Unlock()
	return &st, nil
}

// Save implements StateStore.
func (s *SQLite) Save(ctx context.Context, state *custody.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode vault state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		var execErr error
		if s.version == 0 {
			res, execErr = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO vault_state (id, version, state, updated_at)
				 VALUES (1, 1, ?, CURRENT_TIMESTAMP)`, string(raw))
		} else {
			res, execErr = tx.ExecContext(ctx,
				`UPDATE vault_state SET state = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
				 WHERE id = 1 AND version = ?`, string(raw), s.version)
		}
		return execErr
	})
	if err != nil {
		return fmt.Errorf("save vault state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save vault state: %w", err)
	}
	if n != 1 {
		return ErrConflict
	}
	s.version++
	return nil
}

// Close implements StateStore.
func (s *SQLite) Close() error { return s.db.Close() }

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
