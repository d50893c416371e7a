package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmerrifield20/wtomax/internal/audit"
)

var ctx = context.Background()

const guardian = "0x1111111111111111111111111111111111111111"

func TestNewMemoryLog_anchor(t *testing.T) {
	l := audit.NewMemoryLog()

	n, err := l.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected only the anchor entry, got %d", n)
	}
	e, err := l.Get(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if e.Action != audit.ActionAnchor || e.Hash != audit.AnchorHash {
		t.Errorf("anchor: got action %q hash %q", e.Action, e.Hash)
	}
}

func TestAppend_links(t *testing.T) {
	l := audit.NewMemoryLog()

	e1, err := l.Append(ctx, "approve", "pause", guardian, map[string]int{"approvals": 1})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := l.Append(ctx, "pause", "pause", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", nil)
	if err != nil {
		t.Fatal(err)
	}
	if e2.PrevHash != e1.Hash {
		t.Errorf("e2.PrevHash = %q, want %q", e2.PrevHash, e1.Hash)
	}
	if e1.Index != 1 || e2.Index != 2 {
		t.Errorf("indexes: %d, %d", e1.Index, e2.Index)
	}

	root, err := l.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if root != e2.Hash {
		t.Errorf("Root() = %q, want %q", root, e2.Hash)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify() on intact chain: %v", err)
	}
}

func TestVerify_detectsTampering(t *testing.T) {
	l := audit.NewMemoryLog()
	_, _ = l.Append(ctx, "approve", "releaseTokens", guardian, nil)
	_, _ = l.Append(ctx, "release", "releaseTokens", guardian, nil)

	l.Tamper(1, "unpause")

	if err := l.Verify(ctx); err == nil {
		t.Error("Verify() should fail after tampering")
	}
}

func TestRecent_newestFirst(t *testing.T) {
	l := audit.NewMemoryLog()
	for _, action := range []string{"wrap", "unwrap", "wrap"} {
		if _, err := l.Append(ctx, action, guardian, guardian, nil); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Index != 3 || got[1].Index != 2 {
		t.Errorf("order: %d, %d", got[0].Index, got[1].Index)
	}

	all, _ := l.Recent(ctx, 0)
	if len(all) != 4 {
		t.Errorf("limit 0 should return every entry, got %d", len(all))
	}
}

func TestGet_outOfRange(t *testing.T) {
	l := audit.NewMemoryLog()
	if _, err := l.Get(ctx, 5); !errors.Is(err, audit.ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}
