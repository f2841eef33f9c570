/**
 * @description
 * This file defines the domain models for reward inventory: pre-loaded gift
 * card pools, individual claimable inventory items, per-recipient redemption
 * codes, and the DTOs used by the provisioning API.
 *
 * @notes
 * - An InventoryItem transitions available -> claimed exactly once, enforced
 *   by a conditional update in the store layer; `delivered` follows hand-off
 *   confirmation.
 * - Items synthesized from an on-demand vendor purchase are created already
 *   in the claimed state with Source = ItemSourcePurchase.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus is the lifecycle state of one inventory item.
type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusClaimed   ItemStatus = "claimed"
	ItemStatusDelivered ItemStatus = "delivered"
	ItemStatusExpired   ItemStatus = "expired"
)

// ItemSource records how an item entered the system.
type ItemSource string

const (
	ItemSourceImport   ItemSource = "import"
	ItemSourcePurchase ItemSource = "purchase"
)

// InventoryPool groups inventory items by brand and denomination for one
// owning client. Maps to the `inventory_pools` table.
type InventoryPool struct {
	ID            uuid.UUID `json:"id"`
	ClientOwnerID uuid.UUID `json:"client_owner_id"`
	BrandID       uuid.UUID `json:"brand_id"`
	Denomination  int64     `json:"denomination"` // in cents
	Status        string    `json:"status"`       // 'active', 'archived'
	CreatedAt     time.Time `json:"created_at"`
}

// PoolInventoryStatus carries the pool row plus aggregate item counts, used
// for low-inventory alerting and the admin pool status endpoint.
type PoolInventoryStatus struct {
	Pool           InventoryPool `json:"pool"`
	AvailableCount int           `json:"available_count"`
	ClaimedCount   int           `json:"claimed_count"`
	DeliveredCount int           `json:"delivered_count"`
	ExpiredCount   int           `json:"expired_count"`
}

// InventoryItem is one claimable reward unit (gift card). Maps to the
// `inventory_items` table.
type InventoryItem struct {
	ID                   uuid.UUID  `json:"id"`
	PoolID               uuid.UUID  `json:"pool_id"`
	Code                 string     `json:"code"`
	SecondaryCode        *string    `json:"secondary_code,omitempty"`
	Denomination         int64      `json:"denomination"` // in cents
	Status               ItemStatus `json:"status"`
	Source               ItemSource `json:"source"`
	ClaimedByRecipientID *uuid.UUID `json:"claimed_by_recipient_id,omitempty"`
	ClaimedAt            *time.Time `json:"claimed_at,omitempty"`
	DeliveredAt          *time.Time `json:"delivered_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// RedemptionCode is a per-recipient, single-use token exchanged for a
// provisioned reward. The code is stored in its canonical (normalized) form.
type RedemptionCode struct {
	Code          string     `json:"code"`
	RecipientID   uuid.UUID  `json:"recipient_id"`
	CampaignID    uuid.UUID  `json:"campaign_id"`
	ClaimedItemID *uuid.UUID `json:"claimed_item_id,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Campaign is the slice of the campaigns table the credit core needs:
// funding resolution only. The campaign builder itself lives elsewhere.
type Campaign struct {
	ID            uuid.UUID `json:"id"`
	ClientOwnerID uuid.UUID `json:"client_owner_id"`
	SharedBudget  bool      `json:"shared_budget"` // true = fund from the parent client's account
	Status        string    `json:"status"`
}

// ProvisionSource reports which waterfall stage produced the card.
type ProvisionSource string

const (
	ProvisionSourcePool     ProvisionSource = "pool"
	ProvisionSourcePurchase ProvisionSource = "purchase"
)

// ProvisionCardPayload is the DTO for incoming provisioning API requests.
type ProvisionCardPayload struct {
	CampaignID   uuid.UUID `json:"campaign_id"`
	BrandID      uuid.UUID `json:"brand_id"`
	Denomination int64     `json:"denomination"` // in cents
	RecipientID  uuid.UUID `json:"recipient_id"`
}

// CardPayload is the card handed back to the claimant.
type CardPayload struct {
	Code          string  `json:"code"`
	SecondaryCode *string `json:"secondary_code,omitempty"`
	Denomination  int64   `json:"denomination"`
}

// ProvisionResult is the successful response of the provisioning waterfall.
// Replayed is true when an idempotent retry returned the original card
// without re-charging credit or re-claiming inventory.
type ProvisionResult struct {
	Card            CardPayload     `json:"card"`
	Source          ProvisionSource `json:"source"`
	CreditRemaining int64           `json:"credit_remaining"`
	ItemID          uuid.UUID       `json:"item_id"`
	Replayed        bool            `json:"replayed"`
}

// ImportRowFailure records one rejected row from a CSV inventory import.
type ImportRowFailure struct {
	Line   int    `json:"line"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a bulk inventory import.
type ImportResult struct {
	Imported int                `json:"imported"`
	Skipped  int                `json:"skipped"` // duplicate codes
	Failures []ImportRowFailure `json:"failures,omitempty"`
}
