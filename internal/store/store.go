// Package store persists the vault's State between process restarts.
package store

import (
	"context"
	"errors"

	"github.com/jmerrifield20/wtomax/internal/custody"
)

var (
	// ErrNoState is returned by Load when nothing has been saved yet.
	ErrNoState = errors.New("no vault state saved")
	// ErrConflict is returned by Save when another writer saved a newer
	// version since this store last loaded or saved.
	ErrConflict = errors.New("vault state was modified concurrently")
)

// StateStore loads and saves the single vault snapshot.
type StateStore interface {
	Load(ctx context.Context) (*custody.State, error)
	Save(ctx context.Context, state *custody.State) error
	Close() error
}
