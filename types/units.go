package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// TokenDecimals is the number of decimals used by streamed super tokens.
// One whole token is 10^18 base units.
const TokenDecimals = 18

// ErrInvalidAmount is returned when an amount string cannot be parsed.
var ErrInvalidAmount = errors.New("types: invalid amount")

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// Units returns v whole tokens expressed in base units (v × 10^decimals).
// It panics on overflow; use ParseUnits for untrusted input.
func Units(v uint64, decimals int) *uint256.Int {
	out, err := ParseUnits(fmt.Sprintf("%d", v), decimals)
	if err != nil {
		panic(err)
	}
	return out
}

// Ether returns v whole tokens at TokenDecimals.
func Ether(v uint64) *uint256.Int { return Units(v, TokenDecimals) }

// ParseUnits parses a decimal amount in major units ("1", "0.25", "1800")
// and scales it by 10^decimals. Fractional digits beyond decimals are
// rejected rather than rounded.
func ParseUnits(s string, decimals int) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if decimals < 0 {
		return nil, fmt.Errorf("%w: negative decimals %d", ErrInvalidAmount, decimals)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}

	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", decimals-len(frac)), "0")
	if digits == "" {
		return Zero(), nil
	}
	out, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	return out, nil
}

// FormatUnits renders v in major units with trailing zeros trimmed,
// e.g. 1500000000000000000 at 18 decimals is "1.5".
func FormatUnits(v *uint256.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	s := v.Dec()
	if decimals <= 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// ParseBase parses a base-unit decimal integer such as "110000000".
func ParseBase(s string) (*uint256.Int, error) { return ParseUnits(s, 0) }

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
