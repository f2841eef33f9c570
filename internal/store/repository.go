/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the credit-service. By defining an
 * interface, we decouple the business logic from the PostgreSQL implementation,
 * making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rewardloop/credit-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
// All methods named *Atomic execute inside one database transaction; a failure
// leaves no partial effect behind.
type Repository interface {
	// Credit account methods
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.CreditAccount, error)
	FindAccountByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID uuid.UUID) (*domain.CreditAccount, error)
	ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, opts domain.TransactionListOptions) ([]domain.CreditTransaction, error)

	// Ledger write methods. AllocateCreditAtomic locks both account rows,
	// re-validates the source balance under the lock, lazily creates the
	// destination account, and writes the two linked ledger rows.
	AllocateCreditAtomic(ctx context.Context, req domain.AllocationRequest) (*domain.AllocationResult, error)
	PurchaseCreditAtomic(ctx context.Context, accountID uuid.UUID, amount int64, description, createdBy string) (*domain.CreditTransaction, int64, error)
	DebitForRedemptionAtomic(ctx context.Context, accountID uuid.UUID, amount int64, description, createdBy string) (*domain.CreditTransaction, int64, error)
	RefundRedemptionAtomic(ctx context.Context, accountID uuid.UUID, amount int64, relatedTransactionID uuid.UUID, description, createdBy string) (*domain.CreditTransaction, int64, error)

	UpdateAccountSettings(ctx context.Context, accountID uuid.UUID, update domain.AccountSettingsUpdate) (*domain.CreditAccount, error)

	// Campaign funding resolution
	FindCampaignByID(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error)

	// Inventory pool and item methods
	CreatePool(ctx context.Context, pool *domain.InventoryPool) error
	FindPoolByID(ctx context.Context, poolID uuid.UUID) (*domain.InventoryPool, error)
	FindPoolForBrand(ctx context.Context, clientOwnerID, brandID uuid.UUID, denomination int64) (*domain.InventoryPool, error)
	GetPoolInventoryStatus(ctx context.Context, poolID uuid.UUID) (*domain.PoolInventoryStatus, error)
	ClaimAvailableItemAtomic(ctx context.Context, poolID, recipientID uuid.UUID) (*domain.InventoryItem, error)
	InsertPurchasedItem(ctx context.Context, item *domain.InventoryItem) error
	ReleaseClaimedItem(ctx context.Context, itemID, recipientID uuid.UUID) error
	ExpirePurchasedItem(ctx context.Context, itemID uuid.UUID) error
	MarkItemDelivered(ctx context.Context, itemID uuid.UUID) error
	FindItemByID(ctx context.Context, itemID uuid.UUID) (*domain.InventoryItem, error)
	InsertInventoryItems(ctx context.Context, items []domain.InventoryItem) (int, error)

	// Redemption code methods
	CreateRedemptionCode(ctx context.Context, code *domain.RedemptionCode) error
	FindRedemptionCode(ctx context.Context, code string) (*domain.RedemptionCode, error)
	FindRedemptionCodeByRecipient(ctx context.Context, campaignID, recipientID uuid.UUID) (*domain.RedemptionCode, error)
	ConsumeRedemptionCodeAtomic(ctx context.Context, code string, recipientID, itemID uuid.UUID) error
}
