// Package audit keeps a tamper-evident hash chain of every governance action
// the vault commits.
//
// The chain opens with an anchor entry whose Hash is AnchorHash (64 hex zeros).
// Each later entry commits to the hash of its predecessor, so rewriting any
// record breaks Verify from that point on.
//
// Implementations of Log:
//   - MemoryLog: in-process, used by tests and the in-memory deployment.
//   - PostgresLog: durable, rows in the audit_log table.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// AnchorHash is the fixed hash of the first entry in every chain.
const AnchorHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ActionAnchor is the action recorded on the anchor entry.
const ActionAnchor = "anchor"

// SystemActor is the actor of entries not caused by a caller.
const SystemActor = "custody-system"

// ErrEntryNotFound is returned by Get for an index outside the chain.
var ErrEntryNotFound = errors.New("audit entry not found")

// Entry is one committed governance action.
type Entry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`  // approve, release, pause, wrap, ...
	Subject   string    `json:"subject"` // request tag, address or asset the action targets
	Actor     string    `json:"actor"`   // caller address
	DataHash  string    `json:"data_hash"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// Log is an append-only hash-chained audit log.
type Log interface {
	// Append chains a new entry onto the tip. payload is JSON-encoded and
	// only its SHA-256 is kept.
	Append(ctx context.Context, action, subject, actor string, payload any) (*Entry, error)

	// Get returns the entry at index (0 is the anchor).
	Get(ctx context.Context, index int) (*Entry, error)

	// Recent returns up to limit entries ending at the tip, newest first.
	Recent(ctx context.Context, limit int) ([]*Entry, error)

	// Len counts entries including the anchor.
	Len(ctx context.Context) (int, error)

	// Verify recomputes every link. nil means the chain is intact.
	Verify(ctx context.Context) error

	// Root is the hash of the tip entry.
	Root(ctx context.Context) (string, error)
}

func entryHash(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.Format(time.RFC3339Nano),
		e.Action, e.Subject, e.Actor, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func anchorEntry(at time.Time) *Entry {
	return &Entry{
		Index:     0,
		Timestamp: at,
		Action:    ActionAnchor,
		Actor:     SystemActor,
		DataHash:  AnchorHash,
		PrevHash:  AnchorHash,
		Hash:      AnchorHash,
	}
}

// checkLink validates curr against its predecessor. prev is nil for the anchor.
func checkLink(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != AnchorHash {
			return fmt.Errorf("anchor entry has hash %q", curr.Hash)
		}
		return nil
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("chain broken at index %d", curr.Index)
	}
	if curr.Hash != entryHash(curr) {
		return fmt.Errorf("entry %d hash mismatch", curr.Index)
	}
	return nil
}
