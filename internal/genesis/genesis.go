// Package genesis reads the YAML document that fixes a vault's initial
// guardians, administrator and allocations.
package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jmerrifield20/wtomax/internal/custody"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk genesis description.
type Document struct {
	Symbol      string    `yaml:"symbol"`
	Admin       string    `yaml:"admin"`
	Guardians   []string  `yaml:"guardians"`
	Circulating string    `yaml:"initial_circulating"` // whole tokens, decimals allowed
	Locked      string    `yaml:"locked_reserve"`      // whole tokens, decimals allowed
	Start       time.Time `yaml:"start,omitempty"`     // vesting clock origin; zero = now
}

// Load reads and decodes the genesis file at path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a genesis document. Unknown keys are rejected so a typo in
// a guardian field cannot silently drop it.
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("genesis document is empty")
		}
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	return &doc, nil
}

// Parsed is a validated Document ready to construct a vault.
type Parsed struct {
	Admin     custody.Address
	Guardians []custody.Address
	Options   []custody.Option
}

// Parse validates the document and converts it into constructor arguments.
// clock may be nil, in which case the system clock is used.
func (d *Document) Parse(clock custody.Clock) (*Parsed, error) {
	admin, err := custody.ParseAddress(d.Admin)
	if err != nil {
		return nil, fmt.Errorf("admin: %w", err)
	}
	guardians := make([]custody.Address, 0, len(d.Guardians))
	for i, g := range d.Guardians {
		a, err := custody.ParseAddress(g)
		if err != nil {
			return nil, fmt.Errorf("guardian %d: %w", i, err)
		}
		guardians = append(guardians, a)
	}

	var opts []custody.Option
	if d.Symbol != "" {
		opts = append(opts, custody.WithSymbol(d.Symbol))
	}
	if d.Circulating != "" {
		n, err := custody.ParseTokens(d.Circulating)
		if err != nil {
			return nil, fmt.Errorf("initial_circulating: %w", err)
		}
		opts = append(opts, custody.WithInitialCirculating(n))
	}
	if d.Locked != "" {
		n, err := custody.ParseTokens(d.Locked)
		if err != nil {
			return nil, fmt.Errorf("locked_reserve: %w", err)
		}
		opts = append(opts, custody.WithLockedReserve(n))
	}
	if clock != nil {
		opts = append(opts, custody.WithClock(clock))
	}
	if !d.Start.IsZero() {
		opts = append(opts, custody.WithVestingStart(d.Start.UTC()))
	}
	return &Parsed{Admin: admin, Guardians: guardians, Options: opts}, nil
}

// NewVault validates the document and constructs the genesis vault.
func (d *Document) NewVault(clock custody.Clock) (*custody.Vault, error) {
	p, err := d.Parse(clock)
	if err != nil {
		return nil, err
	}
	return custody.New(p.Guardians, p.Admin, p.Options...)
}

// Encode renders d as YAML.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode genesis: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
