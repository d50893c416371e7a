package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmerrifield20/wtomax/internal/custody"
)

func TestSimulate_defaultSchedule(t *testing.T) {
	rows, err := simulate("")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("expected 10 tranches, got %d", len(rows))
	}
	if rows[0].Released != "6300000" {
		t.Errorf("first tranche: %s", rows[0].Released)
	}
	last := rows[len(rows)-1]
	if last.Locked != "0" {
		t.Errorf("locked reserve after last tranche: %s", last.Locked)
	}
	if last.TotalSupply != "70000000" {
		t.Errorf("final total supply: %s", last.TotalSupply)
	}
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(10 * custody.ReleaseInterval)
	if !last.Date.Equal(want) {
		t.Errorf("last release at %s, want %s", last.Date, want)
	}
}

func TestSimulate_genesisFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	doc := `admin: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
guardians:
  - "0x1111111111111111111111111111111111111111"
  - "0x2222222222222222222222222222222222222222"
  - "0x3333333333333333333333333333333333333333"
  - "0x4444444444444444444444444444444444444444"
  - "0x5555555555555555555555555555555555555555"
initial_circulating: "0"
locked_reserve: "100"
start: 2030-06-01T00:00:00Z
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	rows, err := simulate(path)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if len(rows) != 10 || rows[0].Released != "10" || rows[9].TotalSupply != "100" {
		t.Errorf("unexpected rows: %+v", rows)
	}
	if rows[0].Date.Year() != 2031 {
		t.Errorf("first release should be one interval after start, got %s", rows[0].Date)
	}
}
