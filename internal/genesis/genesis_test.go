package genesis_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmerrifield20/wtomax/internal/custody"
	"github.com/jmerrifield20/wtomax/internal/genesis"
)

const doc = `
symbol: wTOMAX
admin: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
guardians:
  - "0x1111111111111111111111111111111111111111"
  - "0x2222222222222222222222222222222222222222"
  - "0x3333333333333333333333333333333333333333"
  - "0x4444444444444444444444444444444444444444"
  - "0x5555555555555555555555555555555555555555"
initial_circulating: "1000"
locked_reserve: "10"
start: 2026-01-01T00:00:00Z
`

func TestDecode_newVault(t *testing.T) {
	d, err := genesis.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	clk := custody.NewManualClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	v, err := d.NewVault(clk)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	admin := custody.MustParseAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if v.BalanceOf(admin).Cmp(custody.Tokens(1000)) != 0 {
		t.Errorf("admin balance: got %s", custody.FormatTokens(v.BalanceOf(admin)))
	}
	if v.LockedReserve().Cmp(custody.Tokens(10)) != 0 {
		t.Errorf("locked reserve: got %s", custody.FormatTokens(v.LockedReserve()))
	}
	want := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := v.Schedule().NextEligible; !got.Equal(want) {
		t.Errorf("next eligible: got %v, want %v", got, want)
	}
}

func TestDecode_rejectsUnknownKeys(t *testing.T) {
	_, err := genesis.Decode(strings.NewReader(doc + "guardian: \"0x66\"\n"))
	if err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestDecode_empty(t *testing.T) {
	if _, err := genesis.Decode(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestNewVault_invalidComposition(t *testing.T) {
	d := &genesis.Document{
		Admin: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Guardians: []string{
			"0x1111111111111111111111111111111111111111",
			"0x2222222222222222222222222222222222222222",
			"0x3333333333333333333333333333333333333333",
			"0x4444444444444444444444444444444444444444",
		},
	}
	if _, err := d.NewVault(nil); !errors.Is(err, custody.ErrInvalidComposition) {
		t.Errorf("expected ErrInvalidComposition, got %v", err)
	}
}

func TestEncode_roundTrips(t *testing.T) {
	d, err := genesis.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := d.Encode()
	if err != nil {
		t.Fatal(err)
	}
	again, err := genesis.Decode(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("decode encoded doc: %v", err)
	}
	if again.Admin != d.Admin || len(again.Guardians) != 5 {
		t.Errorf("round trip lost data: %+v", again)
	}
}
