package custody

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the size of an identity in bytes.
const AddressLength = 20

// Address identifies a caller, guardian, administrator, or recipient.
// The zero value is the null address and is never a valid participant.
type Address [AddressLength]byte

// ZeroAddress is the null identity.
var ZeroAddress Address

// ParseAddress decodes a 0x-prefixed, 40 hex digit address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != AddressLength*2 {
		return a, fmt.Errorf("%w: %q: want %d hex digits", ErrInvalidAddress, s, AddressLength*2)
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error. Useful in tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is the null address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// String returns the lower-case 0x-prefixed hex form.
func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// MarshalText implements encoding.TextMarshaler so addresses can be used as
// JSON strings and map keys.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
