package wad

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// One is 1.0 in WAD fixed-point units (10^18).
func One() *uint256.Int {
	return uint256.NewInt(1_000_000_000_000_000_000)
}

const decimals = 18

// Mul multiplies an amount by a WAD fraction with truncating division.
// The second return is false when the intermediate product overflows 256 bits.
func Mul(amount, frac *uint256.Int) (*uint256.Int, bool) {
	if amount == nil || frac == nil {
		return uint256.NewInt(0), true
	}
	product, overflow := new(uint256.Int).MulOverflow(amount, frac)
	if overflow {
		return nil, false
	}
	return product.Div(product, One()), true
}

// Div divides x by a WAD fraction, truncating: x * 1e18 / y.
// Returns false on overflow or when y is zero.
func Div(x, y *uint256.Int) (*uint256.Int, bool) {
	if x == nil || y == nil || y.IsZero() {
		return nil, false
	}
	scaled, overflow := new(uint256.Int).MulOverflow(x, One())
	if overflow {
		return nil, false
	}
	return scaled.Div(scaled, y), true
}

// Fits128 reports whether v is representable in 128 bits.
func Fits128(v *uint256.Int) bool {
	return v != nil && v.BitLen() <= 128
}

// IsFraction reports whether f is a valid multiplier in [0, 1.0).
func IsFraction(f *uint256.Int) bool {
	return f == nil || f.Lt(One())
}

// Parse converts a decimal string such as "3.0" or "0.005" into WAD units.
func Parse(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty decimal")
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > decimals {
		return nil, fmt.Errorf("more than %d fractional digits: %s", decimals, s)
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))

	digits := intPart + fracPart
	for _, c := range digits {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("invalid decimal: %s", s)
		}
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return uint256.NewInt(0), nil
	}

	value, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %s: %w", s, err)
	}
	return value, nil
}

// Format renders a WAD value as a decimal string with trailing zeros trimmed.
func Format(v *uint256.Int) string {
	if v == nil || v.IsZero() {
		return "0"
	}
	whole := new(uint256.Int).Div(v, One())
	rem := new(uint256.Int).Mod(v, One())
	if rem.IsZero() {
		return whole.Dec()
	}
	frac := fmt.Sprintf("%018s", rem.Dec())
	frac = strings.TrimRight(frac, "0")
	return whole.Dec() + "." + frac
}
