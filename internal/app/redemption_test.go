package app

import (
	"errors"
	"testing"
)

func TestNormalizeRedemptionCode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "trims and uppercases", raw: "  ab6-1061 ", want: "AB6-1061"},
		{name: "preserves hyphen separators", raw: "ab6-1061", want: "AB6-1061"},
		{name: "preserves underscores", raw: "promo_42", want: "PROMO_42"},
		{name: "already canonical is unchanged", raw: "AB6-1061", want: "AB6-1061"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeRedemptionCode(tt.raw)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
			// Normalization must be idempotent.
			if again := NormalizeRedemptionCode(got); again != got {
				t.Fatalf("normalization not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestValidateRedemptionCodeFormat(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{name: "valid short code", code: "AB6", wantErr: false},
		{name: "valid with separator", code: "AB6-1061", wantErr: false},
		{name: "valid with underscore", code: "A_1", wantErr: false},
		{name: "too short", code: "AB", wantErr: true},
		{name: "too long", code: "A123456789012345678901234567890123456789012345678901", wantErr: true},
		{name: "leading separator", code: "-AB6", wantErr: true},
		{name: "leading underscore", code: "_AB6", wantErr: true},
		{name: "illegal character", code: "AB6!1061", wantErr: true},
		{name: "embedded space", code: "AB6 1061", wantErr: true},
		{name: "empty", code: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRedemptionCodeFormat(tt.code)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got nil", tt.code)
				}
				if !errors.Is(err, ErrInvalidCodeFormat) {
					t.Fatalf("expected ErrInvalidCodeFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected %q to be valid, got %v", tt.code, err)
			}
		})
	}
}
