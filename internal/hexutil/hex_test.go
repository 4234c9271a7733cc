package hexutil

import (
	"strings"
	"testing"
)

func TestTrimPrefix(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase 0x", "0xabcdef", "abcdef"},
		{"uppercase 0X", "0XABCDEF", "ABCDEF"},
		{"mixed case", "0xAbCdEf", "AbCdEf"},
		{"with spaces", "  0xabcdef  ", "abcdef"},
		{"no prefix", "abcdef", "abcdef"},
		{"empty string", "", ""},
		{"only prefix", "0x", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TrimPrefix(tt.input)
			if result != tt.expected {
				t.Errorf("TrimPrefix(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase 0x", "0xABCDEF", "abcdef"},
		{"uppercase 0X", "0XABCDEF", "abcdef"},
		{"mixed case", "  0xAbCdEf  ", "abcdef"},
		{"no prefix", "ABCDEF", "abcdef"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(tt.input)
			if result != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsValidDigest(t *testing.T) {
	validSHA256 := strings.Repeat("ab", 32)

	tests := []struct {
		name     string
		input    string
		n        int
		expected bool
	}{
		{"valid sha256 no prefix", validSHA256, 32, true},
		{"valid sha256 with 0x", "0x" + validSHA256, 32, true},
		{"valid sha256 mixed case", strings.ToUpper(validSHA256), 32, true},
		{"too short", "abcdef", 32, false},
		{"too long", validSHA256 + "ab", 32, false},
		{"odd length after normalize", validSHA256[:63], 32, false},
		{"non-hex characters", strings.Repeat("zz", 32), 32, false},
		{"empty string", "", 32, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidDigest(tt.input, tt.n)
			if result != tt.expected {
				t.Errorf("IsValidDigest(%q, %d) = %v, want %v", tt.input, tt.n, result, tt.expected)
			}
		})
	}
}
