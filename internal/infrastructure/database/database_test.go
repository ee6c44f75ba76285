package database

import (
	"math/big"
	"testing"
)

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in       string
		expected string
		wantErr  bool
	}{
		{"0", "0", false},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935", "115792089237316195423570985008687907853269984665640564039457584007913129639935", false},
		{"42.000", "42", false},
		{"abc", "", true},
	}

	for _, tt := range tests {
		v, err := parseNumeric(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseNumeric(%q): unexpected error state %v", tt.in, err)
		}
		if err == nil && v.String() != tt.expected {
			t.Errorf("parseNumeric(%q) = %s, want %s", tt.in, v, tt.expected)
		}
	}
}

func TestNumericString(t *testing.T) {
	if got := numericString(nil); got != "0" {
		t.Errorf("expected 0 for nil, got %s", got)
	}
	if got := numericString(big.NewInt(12345)); got != "12345" {
		t.Errorf("expected 12345, got %s", got)
	}
}
