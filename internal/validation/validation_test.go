package validation

import (
	"strings"
	"testing"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  int64
		valid bool
	}{
		{
			name:  "first order",
			raw:   "1000",
			want:  1000,
			valid: true,
		},
		{
			name:  "first booking",
			raw:   "1",
			want:  1,
			valid: true,
		},
		{
			name:  "leading zeros",
			raw:   "0042",
			want:  42,
			valid: true,
		},
		{
			name:  "zero",
			raw:   "0",
			valid: false,
		},
		{
			name:  "negative",
			raw:   "-5",
			valid: false,
		},
		{
			name:  "plus sign",
			raw:   "+5",
			valid: false,
		},
		{
			name:  "contains letters",
			raw:   "10a0",
			valid: false,
		},
		{
			name:  "non ascii digits",
			raw:   "١٢٣",
			valid: false,
		},
		{
			name:  "overflow",
			raw:   "99999999999999999999",
			valid: false,
		},
		{
			name:  "empty string",
			raw:   "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID(tt.raw)
			if tt.valid {
				if err != nil {
					t.Fatalf("ParseID(%q) error = %v", tt.raw, err)
				}
				if got != tt.want {
					t.Fatalf("ParseID(%q) = %d, want %d", tt.raw, got, tt.want)
				}
				return
			}
			if err == nil {
				t.Fatalf("ParseID(%q) = %d, want error", tt.raw, got)
			}
		})
	}
}

func TestIsValidUserID(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		valid  bool
	}{
		{
			name:   "plain",
			userID: "alice",
			valid:  true,
		},
		{
			name:   "uuid",
			userID: "3f1c2b8e-7a34-4f5e-9b7a-0c2d1e4f5a6b",
			valid:  true,
		},
		{
			name:   "unicode",
			userID: "пользователь",
			valid:  true,
		},
		{
			name:   "with spaces",
			userID: "table 7",
			valid:  true,
		},
		{
			name:   "max length",
			userID: strings.Repeat("a", MaxUserIDLength),
			valid:  true,
		},
		{
			name:   "too long",
			userID: strings.Repeat("a", MaxUserIDLength+1),
			valid:  false,
		},
		{
			name:   "control character",
			userID: "alice\nbob",
			valid:  false,
		},
		{
			name:   "invalid utf8",
			userID: "\xff\xfe",
			valid:  false,
		},
		{
			name:   "empty string",
			userID: "",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidUserID(tt.userID)
			if got != tt.valid {
				t.Fatalf("IsValidUserID(%q) = %v, want %v", tt.userID, got, tt.valid)
			}
		})
	}
}
