package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// appendLockKey serialises Append across every custodyd instance sharing a
// database.
const appendLockKey = int64(0x77544f4d4158) // "wTOMAX"

const entryColumns = `idx, ts, action, subject, actor, data_hash, prev_hash, hash`

// PostgresLog stores the chain in the audit_log table.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLog returns a PostgresLog on pool. Call EnsureAnchor once at
// startup before appending.
func NewPostgresLog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

// EnsureAnchor inserts the anchor row if the table is empty.
func (l *PostgresLog) EnsureAnchor(ctx context.Context) error {
	a := anchorEntry(time.Now().UTC())
	_, err := l.pool.Exec(ctx,
		`INSERT INTO audit_log (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (idx) DO NOTHING`,
		a.Index, a.Timestamp, a.Action, a.Subject, a.Actor, a.DataHash, a.PrevHash, a.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit anchor: %w", err)
	}
	return nil
}

// Append implements Log. The tip read and insert run in one transaction
// under an advisory lock.
func (l *PostgresLog) Append(ctx context.Context, action, subject, actor string, payload any) (*Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", appendLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var tipIdx int
	var tipHash string
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM audit_log ORDER BY idx DESC LIMIT 1",
	).Scan(&tipIdx, &tipHash); err != nil {
		return nil, fmt.Errorf("read audit tip: %w", err)
	}

	e := &Entry{
		Index:     tipIdx + 1,
		Timestamp: time.Now().UTC(),
		Action:    action,
		Subject:   subject,
		Actor:     actor,
		DataHash:  digest(raw),
		PrevHash:  tipHash,
	}
	e.Hash = entryHash(e)

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_log (`+entryColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.Index, e.Timestamp, e.Action, e.Subject, e.Actor, e.DataHash, e.PrevHash, e.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit entry: %w", err)
	}

	l.logger.Debug("audit entry appended",
		zap.Int("idx", e.Index),
		zap.String("action", e.Action),
		zap.String("subject", e.Subject),
	)
	return e, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	err := row.Scan(&e.Index, &e.Timestamp, &e.Action, &e.Subject, &e.Actor, &e.DataHash, &e.PrevHash, &e.Hash)
	if err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

// Get implements Log.
func (l *PostgresLog) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := scanEntry(l.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM audit_log WHERE idx = $1`, index))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("index %d: %w", index, ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry %d: %w", index, err)
	}
	return e, nil
}

// Recent implements Log.
func (l *PostgresLog) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM audit_log ORDER BY idx DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Len implements Log.
func (l *PostgresLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Verify implements Log. It streams the whole table in index order.
func (l *PostgresLog) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx, `SELECT `+entryColumns+` FROM audit_log ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan audit row: %w", err)
		}
		if err := checkLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Log.
func (l *PostgresLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM audit_log ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("read audit root: %w", err)
	}
	return hash, nil
}
