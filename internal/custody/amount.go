package custody

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the number of fractional digits of one whole token.
const Decimals = 18

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Tokens returns n whole tokens expressed in base units.
func Tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), unit)
}

// ParseTokens converts a decimal token string such as "10" or "0.25" into
// base units. At most Decimals fractional digits are accepted.
func ParseTokens(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > Decimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return n, nil
}

// ParseUnits parses a base-unit integer string.
func ParseUnits(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return n, nil
}

// FormatTokens renders base units as a decimal token string without
// trailing fractional zeros.
func FormatTokens(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(amount), unit, new(big.Int))
	sign := ""
	if amount.Sign() < 0 {
		sign = "-"
	}
	if r.Sign() == 0 {
		return sign + q.String()
	}
	frac := r.String()
	frac = strings.Repeat("0", Decimals-len(frac)) + frac
	return sign + q.String() + "." + strings.TrimRight(frac, "0")
}

func positive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

func clone(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n)
}
