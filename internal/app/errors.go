/**
 * @description
 * This file defines the business-level errors returned by the credit service.
 * Handlers map these onto HTTP statuses; store errors that leak through are
 * wrapped into one of these before leaving the app package.
 */

package app

import (
	"errors"
	"fmt"
)

var (
	// ErrHierarchyViolation is returned when an allocation does not move
	// credit one level down the owner hierarchy.
	ErrHierarchyViolation = errors.New("allocation must flow one level down the account hierarchy")

	// ErrInvalidAmount is returned for zero or negative credit amounts.
	ErrInvalidAmount = errors.New("amount must be a positive number of cents")

	// ErrInvalidCodeFormat is returned when a redemption code fails format
	// validation before any store lookup happens.
	ErrInvalidCodeFormat = errors.New("redemption code format is invalid")

	// ErrNoSupply is returned when the pool is exhausted and the on-demand
	// purchase fallback is disabled or also out of stock.
	ErrNoSupply = errors.New("no card supply available for this brand and denomination")

	// ErrAlreadyRedeemed is returned when a redemption code was consumed for
	// a different item and the original result cannot be replayed.
	ErrAlreadyRedeemed = errors.New("redemption code has already been redeemed")

	// ErrAccountSuspended is returned when the funding account is suspended.
	ErrAccountSuspended = errors.New("credit account is suspended")

	// ErrCampaignInactive is returned when provisioning against a campaign
	// that is not running.
	ErrCampaignInactive = errors.New("campaign is not active")

	// ErrRateLimited is returned when a recipient exceeds the provisioning
	// rate limit.
	ErrRateLimited = errors.New("too many provisioning attempts, slow down")

	// ErrVendorUnavailable is returned when the card vendor cannot be
	// reached or its circuit breaker is open.
	ErrVendorUnavailable = errors.New("card vendor is temporarily unavailable")
)

// InsufficientCreditError carries the balance shortfall so callers can render
// an actionable payment-required response.
type InsufficientCreditError struct {
	Available int64
	Required  int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: available %d, required %d cents", e.Available, e.Required)
}

// Is lets errors.Is treat any InsufficientCreditError as equal to a bare one.
func (e *InsufficientCreditError) Is(target error) bool {
	_, ok := target.(*InsufficientCreditError)
	return ok
}
