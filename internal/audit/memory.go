package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryLog is a Log held in process memory. Safe for concurrent use.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []*Entry
	now     func() time.Time
}

// NewMemoryLog returns a log holding only the anchor entry.
func NewMemoryLog() *MemoryLog {
	l := &MemoryLog{now: func() time.Time { return time.Now().UTC() }}
	l.entries = []*Entry{anchorEntry(l.now())}
	return l
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, action, subject, actor string, payload any) (*Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tip := l.entries[len(l.entries)-1]
	e := &Entry{
		Index:     len(l.entries),
		Timestamp: l.now(),
		Action:    action,
		Subject:   subject,
		Actor:     actor,
		DataHash:  digest(raw),
		PrevHash:  tip.Hash,
	}
	e.Hash = entryHash(e)
	l.entries = append(l.entries, e)
	return e, nil
}

// Get implements Log.
func (l *MemoryLog) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("index %d: %w", index, ErrEntryNotFound)
	}
	e := *l.entries[index]
	return &e, nil
}

// Recent implements Log.
func (l *MemoryLog) Recent(_ context.Context, limit int) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]*Entry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := *l.entries[i]
		out = append(out, &e)
	}
	return out, nil
}

// Len implements Log.
func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Log.
func (l *MemoryLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var prev *Entry
	for _, curr := range l.entries {
		if err := checkLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Log.
func (l *MemoryLog) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}

// tamper overwrites the action of entry index. Exposed to tests only.
func (l *MemoryLog) tamper(index int, action string) {
	l.mu.Lock()
	l.entries[index].Action = action
	l.mu.Unlock()
}
