package pass

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Address is a 20-byte account identity in canonical form: "0x" followed
// by 40 lower-case hex digits.
type Address string

// ZeroAddress is the all-zero identity. It never owns a pass.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ErrInvalidAddress is returned by ParseAddress for malformed input.
var ErrInvalidAddress = errors.New("pass: invalid address")

// ParseAddress normalises s into an Address. The 0x prefix is optional
// and mixed case is accepted.
func ParseAddress(s string) (Address, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(raw) != 40 {
		return "", fmt.Errorf("%w: %q: want 40 hex digits, got %d", ErrInvalidAddress, s, len(raw))
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return Address("0x" + strings.ToLower(raw)), nil
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is empty or the zero address.
func (a Address) IsZero() bool { return a == "" || a == ZeroAddress }

func (a Address) String() string { return string(a) }

// Short returns an abbreviated form for logs, e.g. "0xab12…cd34".
func (a Address) Short() string {
	if len(a) != 42 {
		return string(a)
	}
	return string(a[:6]) + "…" + string(a[38:])
}
