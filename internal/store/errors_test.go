package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestInsufficientBalanceErrorUnwraps(t *testing.T) {
	err := &InsufficientBalanceError{Available: 1000, Required: 4000}

	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatal("expected errors.Is to match ErrInsufficientBalance")
	}
	var target *InsufficientBalanceError
	if !errors.As(err, &target) {
		t.Fatal("expected errors.As to recover the typed error")
	}
	if target.Available != 1000 || target.Required != 4000 {
		t.Fatalf("unexpected amounts: %+v", target)
	}
	if !strings.Contains(err.Error(), "available 1000") || !strings.Contains(err.Error(), "required 4000") {
		t.Fatalf("message should carry both amounts: %q", err.Error())
	}
}

func TestTranslateError(t *testing.T) {
	testCases := []struct {
		name     string
		input    error
		expected error
	}{
		{name: "nil passes through", input: nil, expected: nil},
		{name: "serialization failure", input: &pgconn.PgError{Code: "40001"}, expected: ErrConcurrencyConflict},
		{name: "deadlock", input: &pgconn.PgError{Code: "40P01"}, expected: ErrConcurrencyConflict},
		{name: "unique violation", input: &pgconn.PgError{Code: "23505"}, expected: ErrDuplicateCode},
		{name: "deadline", input: context.DeadlineExceeded, expected: ErrConcurrencyConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateError("test op", tc.input)
			if tc.expected == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestTranslateErrorWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("connection reset")
	got := translateError("claim item", cause)
	if !errors.Is(got, cause) {
		t.Fatal("unknown errors must stay reachable via errors.Is")
	}
	if !strings.HasPrefix(got.Error(), "claim item: ") {
		t.Fatalf("expected the operation prefix, got %q", got.Error())
	}
}
