package types

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals int
		want     string
	}{
		{"whole ether", "1", 18, "1000000000000000000"},
		{"fractional ether", "0.25", 18, "250000000000000000"},
		{"large tier", "1800", 18, "1800000000000000000000"},
		{"zero", "0", 18, "0"},
		{"leading dot", ".5", 18, "500000000000000000"},
		{"base units", "110000000", 0, "110000000"},
		{"padded", "007", 2, "700"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			if err != nil {
				t.Fatalf("ParseUnits(%q): %v", tt.in, err)
			}
			if got.Dec() != tt.want {
				t.Errorf("got %s, want %s", got.Dec(), tt.want)
			}
		})
	}
}

func TestParseUnitsRejects(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals int
	}{
		{"empty", "", 18},
		{"negative", "-1", 18},
		{"letters", "1e18", 18},
		{"too precise", "0.001", 2},
		{"trailing dot", "1.", 18},
		{"overflow", strings.Repeat("9", 80), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUnits(tt.in, tt.decimals)
			if !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("expected ErrInvalidAmount, got %v", err)
			}
		})
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name     string
		v        *uint256.Int
		decimals int
		want     string
	}{
		{"one ether", Ether(1), 18, "1"},
		{"half ether", uint256.NewInt(500000000000000000), 18, "0.5"},
		{"sub unit", uint256.NewInt(110000000), 18, "0.00000000011"},
		{"zero", Zero(), 18, "0"},
		{"nil", nil, 18, "0"},
		{"no decimals", uint256.NewInt(42), 0, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatUnits(tt.v, tt.decimals); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnitsRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "60", "120.5", "0.000000000000000001"} {
		v, err := ParseUnits(s, TokenDecimals)
		if err != nil {
			t.Fatalf("ParseUnits(%q): %v", s, err)
		}
		if got := FormatUnits(v, TokenDecimals); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestEntityTimestamps(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEntity(start)
	if !e.CreatedAt.Equal(start) || !e.UpdatedAt.Equal(start) {
		t.Fatalf("unexpected timestamps: %+v", e)
	}

	e.Touch(start.Add(time.Hour))
	if got := e.Age(start.Add(2 * time.Hour)); got != 2*time.Hour {
		t.Errorf("Age: got %v", got)
	}
	if e.IsStale(start.Add(90*time.Minute), time.Hour) {
		t.Error("entity touched 30m ago should not be stale")
	}
	if !e.IsStale(start.Add(3*time.Hour), time.Hour) {
		t.Error("entity touched 2h ago should be stale")
	}
}
