package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/wtomax/internal/custody"
)

// Postgres keeps the snapshot as a JSONB row in vault_state. Each save bumps
// the row version; a save against a stale version fails with ErrConflict.
type Postgres struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	version int64
}

// NewPostgres returns a Postgres store on pool. The schema comes from
// migrations/ via cmd/migrate.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Load implements StateStore.
func (p *Postgres) Load(ctx context.Context) (*custody.State, error) {
	var raw []byte
	var version int64
	err := p.pool.QueryRow(ctx,
		`SELECT state, version FROM vault_state WHERE id = 1`,
	).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load vault state: %w", err)
	}

	var s custody.State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode vault state: %w", err)
	}
	p.mu.Lock()
	p.version = version
	p.mu.Unlock()
	return &s, nil
}

// Save implements StateStore.
func (p *Postgres) Save(ctx context.Context, state *custody.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode vault state: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var tag pgconn.CommandTag
	if p.version == 0 {
		tag, err = p.pool.Exec(ctx,
			`INSERT INTO vault_state (id, version, state, updated_at)
			 VALUES (1, 1, $1, NOW())
			 ON CONFLICT (id) DO NOTHING`, raw)
	} else {
		tag, err = p.pool.Exec(ctx,
			`UPDATE vault_state SET state = $1, version = version + 1, updated_at = NOW()
			 WHERE id = 1 AND version = $2`, raw, p.version)
	}
	if err != nil {
		return fmt.Errorf("save vault state: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	p.version++
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (p *Postgres) Close() error { return nil }
