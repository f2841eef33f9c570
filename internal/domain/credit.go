/**
 * @description
 * This file defines the core domain models for the credit-service: hierarchical
 * credit accounts, the append-only credit transaction ledger, and the DTOs used
 * by the allocation API.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents), which
 *   avoids floating-point inaccuracies with financial data.
 * - CreditTransaction rows are immutable once written; the repository exposes
 *   no update or delete path for them.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// OwnerType identifies which level of the platform hierarchy owns a credit account.
type OwnerType string

const (
	OwnerTypePlatform OwnerType = "platform"
	OwnerTypeAgency   OwnerType = "agency"
	OwnerTypeClient   OwnerType = "client"
	OwnerTypeCampaign OwnerType = "campaign"
)

// Valid reports whether the owner type is one of the four hierarchy levels.
func (o OwnerType) Valid() bool {
	switch o {
	case OwnerTypePlatform, OwnerTypeAgency, OwnerTypeClient, OwnerTypeCampaign:
		return true
	}
	return false
}

// CreditAccount represents the persisted balance row for one hierarchy entity.
// This struct maps directly to the `credit_accounts` table.
//
// Invariant: TotalRemaining >= 0 at all times, and
// TotalRemaining = TotalPurchased - TotalAllocated - TotalUsed,
// reconciled against the ledger.
type CreditAccount struct {
	ID                  uuid.UUID `json:"id"`
	OwnerType           OwnerType `json:"owner_type"`
	OwnerID             uuid.UUID `json:"owner_id"`
	TotalPurchased      int64     `json:"total_purchased"` // in cents; includes incoming allocations
	TotalAllocated      int64     `json:"total_allocated"` // in cents; outgoing allocations only
	TotalRemaining      int64     `json:"total_remaining"` // in cents
	TotalUsed           int64     `json:"total_used"`      // in cents
	LowBalanceThreshold int64     `json:"low_balance_threshold"`
	AutoReloadEnabled   bool      `json:"auto_reload_enabled"`
	AutoReloadThreshold int64     `json:"auto_reload_threshold"`
	AutoReloadAmount    int64     `json:"auto_reload_amount"`
	Status              string    `json:"status"` // 'active', 'suspended'
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionAllocationIn  TransactionType = "allocation_in"
	TransactionAllocationOut TransactionType = "allocation_out"
	TransactionPurchase      TransactionType = "purchase"
	TransactionRedemption    TransactionType = "redemption"
	TransactionRefund        TransactionType = "refund"
)

// CreditTransaction is one immutable ledger entry. Cross-account transfers
// produce exactly two rows sharing RelatedTransactionID whose amounts sum
// to zero.
type CreditTransaction struct {
	ID                   uuid.UUID       `json:"id"`
	AccountID            uuid.UUID       `json:"account_id"`
	Type                 TransactionType `json:"type"`
	Amount               int64           `json:"amount"` // signed, in cents
	BalanceBefore        int64           `json:"balance_before"`
	BalanceAfter         int64           `json:"balance_after"`
	RelatedTransactionID *uuid.UUID      `json:"related_transaction_id,omitempty"`
	Description          string          `json:"description"`
	CreatedBy            string          `json:"created_by"`
	CreatedAt            time.Time       `json:"created_at"`
}

// AllocationRequest carries one validated parent-to-child credit transfer.
// It is ephemeral and never persisted raw; only the resulting ledger rows are.
type AllocationRequest struct {
	FromAccountID uuid.UUID
	ToOwnerType   OwnerType
	ToOwnerID     uuid.UUID
	Amount        int64 // in cents
	Notes         string
	RequestedBy   string
}

// AllocationResult is returned after a successful allocation: the two linked
// ledger rows and the post-transfer balances of both accounts.
type AllocationResult struct {
	OutTransaction *CreditTransaction `json:"out_transaction"`
	InTransaction  *CreditTransaction `json:"in_transaction"`
	FromBalance    int64              `json:"from_balance"`
	ToBalance      int64              `json:"to_balance"`
}

// AllocateCreditPayload is the DTO for incoming allocation API requests.
type AllocateCreditPayload struct {
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToOwnerType   OwnerType `json:"to_owner_type"`
	ToOwnerID     uuid.UUID `json:"to_owner_id"`
	Amount        int64     `json:"amount"` // in cents
	Notes         string    `json:"notes,omitempty"`
}

// PurchaseCreditPayload is the DTO for recording a credit top-up on an account.
type PurchaseCreditPayload struct {
	Amount int64  `json:"amount"` // in cents
	Notes  string `json:"notes,omitempty"`
}

// AccountSettingsUpdate carries optional admin changes to an account's alert
// and auto-reload configuration. Nil fields are left untouched.
type AccountSettingsUpdate struct {
	LowBalanceThreshold *int64  `json:"low_balance_threshold,omitempty"`
	AutoReloadEnabled   *bool   `json:"auto_reload_enabled,omitempty"`
	AutoReloadThreshold *int64  `json:"auto_reload_threshold,omitempty"`
	AutoReloadAmount    *int64  `json:"auto_reload_amount,omitempty"`
	Status              *string `json:"status,omitempty"`
}

// TransactionListOptions controls pagination for ledger history reads.
type TransactionListOptions struct {
	Limit  int
	Offset int
}
