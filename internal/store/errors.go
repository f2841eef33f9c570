package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrAccountNotFound        = errors.New("credit account not found")
	ErrCampaignNotFound       = errors.New("campaign not found")
	ErrPoolNotFound           = errors.New("inventory pool not found")
	ErrItemNotFound           = errors.New("inventory item not found")
	ErrRedemptionCodeNotFound = errors.New("redemption code not found")
	ErrInsufficientBalance    = errors.New("insufficient credit balance")
	ErrPoolExhausted          = errors.New("no available inventory in pool")
	ErrItemAlreadyClaimed     = errors.New("inventory item already claimed")
	ErrCodeAlreadyRedeemed    = errors.New("redemption code already redeemed")
	ErrDuplicateCode          = errors.New("duplicate redemption code")
	ErrConcurrencyConflict    = errors.New("transient concurrency conflict")
)

// InsufficientBalanceError reports available vs required so callers can
// surface both without re-reading the account. It unwraps to
// ErrInsufficientBalance for errors.Is checks.
type InsufficientBalanceError struct {
	Available int64
	Required  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient credit balance: available %d, required %d", e.Available, e.Required)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// translateError maps low-level pgx failures onto the store's error taxonomy.
// Serialization failures and deadlocks are transient and safe to retry;
// everything else passes through wrapped so raw driver errors never become
// part of the store's contract.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%s: %w", op, ErrConcurrencyConflict)
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", op, ErrDuplicateCode)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrConcurrencyConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
