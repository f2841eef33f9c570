/**
 * @description
 * This file provides the PostgreSQL implementation of the inventory and
 * redemption-code portions of the `Repository` interface: gift-card pools,
 * the exactly-once item claim, purchased-item fallback records, CSV import
 * batches, and the recipient redemption-code lifecycle.
 *
 * @notes
 * - ClaimAvailableItemAtomic uses an UPDATE over a FOR UPDATE SKIP LOCKED
 *   subselect so concurrent claimers never block on, or double-claim, the
 *   same row.
 * - ConsumeRedemptionCodeAtomic is the waterfall's idempotency anchor: it is
 *   a single check-and-set UPDATE guarded by `claimed_item_id IS NULL`.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rewardloop/credit-service/internal/domain"
)

const itemColumns = `
	id, pool_id, code, secondary_code, denomination, status, source,
	claimed_by_recipient_id, claimed_at, delivered_at, created_at`

func scanItem(row rowScanner) (*domain.InventoryItem, error) {
	var it domain.InventoryItem
	err := row.Scan(
		&it.ID, &it.PoolID, &it.Code, &it.SecondaryCode, &it.Denomination,
		&it.Status, &it.Source, &it.ClaimedByRecipientID, &it.ClaimedAt,
		&it.DeliveredAt, &it.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// CreatePool registers a new inventory pool for a client, brand and
// denomination combination.
func (r *PostgresRepository) CreatePool(ctx context.Context, pool *domain.InventoryPool) error {
	query := `
		INSERT INTO inventory_pools (id, client_owner_id, brand_id, denomination, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query, pool.ID, pool.ClientOwnerID, pool.BrandID, pool.Denomination, pool.Status)
	if err != nil {
		return translateError("create pool", err)
	}
	return nil
}

// FindPoolByID retrieves one inventory pool by its primary key.
func (r *PostgresRepository) FindPoolByID(ctx context.Context, poolID uuid.UUID) (*domain.InventoryPool, error) {
	var p domain.InventoryPool
	query := `
		SELECT id, client_owner_id, brand_id, denomination, status, created_at
		FROM inventory_pools WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, poolID).Scan(
		&p.ID, &p.ClientOwnerID, &p.BrandID, &p.Denomination, &p.Status, &p.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPoolNotFound
		}
		return nil, translateError("find pool", err)
	}
	return &p, nil
}

// FindPoolForBrand resolves the active pool matching a client, brand and
// denomination. The pool row is catalog configuration: without one, the
// brand/denomination is not offered to this client at all.
func (r *PostgresRepository) FindPoolForBrand(ctx context.Context, clientOwnerID, brandID uuid.UUID, denomination int64) (*domain.InventoryPool, error) {
	var p domain.InventoryPool
	query := `
		SELECT id, client_owner_id, brand_id, denomination, status, created_at
		FROM inventory_pools
		WHERE client_owner_id = $1 AND brand_id = $2 AND denomination = $3 AND status = 'active'
		ORDER BY created_at ASC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, clientOwnerID, brandID, denomination).Scan(
		&p.ID, &p.ClientOwnerID, &p.BrandID, &p.Denomination, &p.Status, &p.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPoolNotFound
		}
		return nil, translateError("find pool for brand", err)
	}
	return &p, nil
}

// GetPoolInventoryStatus returns the pool with per-status item counts.
func (r *PostgresRepository) GetPoolInventoryStatus(ctx context.Context, poolID uuid.UUID) (*domain.PoolInventoryStatus, error) {
	pool, err := r.FindPoolByID(ctx, poolID)
	if err != nil {
		return nil, err
	}

	status := &domain.PoolInventoryStatus{Pool: *pool}
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'available'),
			COUNT(*) FILTER (WHERE status = 'claimed'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'expired')
		FROM inventory_items
		WHERE pool_id = $1
	`
	err = r.db.QueryRow(ctx, query, poolID).Scan(
		&status.AvailableCount, &status.ClaimedCount,
		&status.DeliveredCount, &status.ExpiredCount,
	)
	if err != nil {
		return nil, translateError("count pool items", err)
	}
	return status, nil
}

// ClaimAvailableItemAtomic transitions exactly one available item in the pool
// to 'claimed' for the given recipient. SKIP LOCKED makes concurrent claimers
// pick distinct rows instead of queueing on the oldest one; when the pool is
// empty (or fully locked by in-flight claims that then commit), the subselect
// yields no row and the claim fails with ErrPoolExhausted.
func (r *PostgresRepository) ClaimAvailableItemAtomic(ctx context.Context, poolID, recipientID uuid.UUID) (*domain.InventoryItem, error) {
	query := `
		UPDATE inventory_items
		SET status = 'claimed', claimed_by_recipient_id = $2, claimed_at = NOW()
		WHERE id = (
			SELECT id FROM inventory_items
			WHERE pool_id = $1 AND status = 'available'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING` + itemColumns

	item, err := scanItem(r.db.QueryRow(ctx, query, poolID, recipientID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPoolExhausted
		}
		return nil, translateError("claim item", err)
	}
	return item, nil
}

// InsertPurchasedItem records a card bought on demand from the vendor. The
// item is born 'claimed' by its recipient; it never passes through the
// available state, so it can never be handed to anyone else.
func (r *PostgresRepository) InsertPurchasedItem(ctx context.Context, item *domain.InventoryItem) error {
	query := `
		INSERT INTO inventory_items (
			id, pool_id, code, secondary_code, denomination, status, source,
			claimed_by_recipient_id, claimed_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, 'claimed', 'purchase', $6, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		item.ID, item.PoolID, item.Code, item.SecondaryCode,
		item.Denomination, item.ClaimedByRecipientID,
	)
	if err != nil {
		return translateError("insert purchased item", err)
	}
	return nil
}

// ReleaseClaimedItem returns a pool-sourced claimed item to the available
// state. Used by compensation when a step after the claim fails. The
// recipient guard ensures a release can only undo this recipient's claim.
func (r *PostgresRepository) ReleaseClaimedItem(ctx context.Context, itemID, recipientID uuid.UUID) error {
	query := `
		UPDATE inventory_items
		SET status = 'available', claimed_by_recipient_id = NULL, claimed_at = NULL
		WHERE id = $1 AND claimed_by_recipient_id = $2 AND status = 'claimed'
	`
	tag, err := r.db.Exec(ctx, query, itemID, recipientID)
	if err != nil {
		return translateError("release item", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ExpirePurchasedItem marks a vendor-purchased item as expired. A purchased
// card is recipient-specific and must not re-enter the pool, so compensation
// expires it rather than releasing it.
func (r *PostgresRepository) ExpirePurchasedItem(ctx context.Context, itemID uuid.UUID) error {
	query := `
		UPDATE inventory_items
		SET status = 'expired'
		WHERE id = $1 AND source = 'purchase' AND status = 'claimed'
	`
	tag, err := r.db.Exec(ctx, query, itemID)
	if err != nil {
		return translateError("expire item", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// MarkItemDelivered finalizes an item after a successful provision.
func (r *PostgresRepository) MarkItemDelivered(ctx context.Context, itemID uuid.UUID) error {
	query := `
		UPDATE inventory_items
		SET status = 'delivered', delivered_at = NOW()
		WHERE id = $1 AND status = 'claimed'
	`
	tag, err := r.db.Exec(ctx, query, itemID)
	if err != nil {
		return translateError("deliver item", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// FindItemByID retrieves one inventory item by its primary key.
func (r *PostgresRepository) FindItemByID(ctx context.Context, itemID uuid.UUID) (*domain.InventoryItem, error) {
	query := `SELECT` + itemColumns + ` FROM inventory_items WHERE id = $1`
	item, err := scanItem(r.db.QueryRow(ctx, query, itemID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrItemNotFound
		}
		return nil, translateError("find item", err)
	}
	return item, nil
}

// InsertInventoryItems loads a batch of imported cards into a pool and returns
// the number actually inserted. Duplicate codes within the pool are skipped
// via ON CONFLICT DO NOTHING so re-running an import file is harmless.
func (r *PostgresRepository) InsertInventoryItems(ctx context.Context, items []domain.InventoryItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, translateError("begin import batch", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO inventory_items (
			id, pool_id, code, secondary_code, denomination, status, source, created_at
		)
		VALUES ($1, $2, $3, $4, $5, 'available', 'import', NOW())
		ON CONFLICT (pool_id, code) DO NOTHING
	`
	inserted := 0
	for i := range items {
		it := &items[i]
		tag, err := tx.Exec(ctx, query, it.ID, it.PoolID, it.Code, it.SecondaryCode, it.Denomination)
		if err != nil {
			return 0, translateError("insert import row", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, translateError("commit import batch", err)
	}
	return inserted, nil
}

// CreateRedemptionCode registers a recipient-scoped redemption code for a
// campaign. The code is globally unique; a collision surfaces as
// ErrDuplicateCode via the translate layer.
func (r *PostgresRepository) CreateRedemptionCode(ctx context.Context, code *domain.RedemptionCode) error {
	query := `
		INSERT INTO redemption_codes (code, recipient_id, campaign_id, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err := r.db.Exec(ctx, query, code.Code, code.RecipientID, code.CampaignID)
	if err != nil {
		return translateError("create redemption code", err)
	}
	return nil
}

func scanRedemptionCode(row rowScanner) (*domain.RedemptionCode, error) {
	var rc domain.RedemptionCode
	err := row.Scan(
		&rc.Code, &rc.RecipientID, &rc.CampaignID,
		&rc.ClaimedItemID, &rc.ClaimedAt, &rc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

// FindRedemptionCode retrieves one redemption code by its normalized value.
func (r *PostgresRepository) FindRedemptionCode(ctx context.Context, code string) (*domain.RedemptionCode, error) {
	query := `
		SELECT code, recipient_id, campaign_id, claimed_item_id, claimed_at, created_at
		FROM redemption_codes WHERE code = $1
	`
	rc, err := scanRedemptionCode(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRedemptionCodeNotFound
		}
		return nil, translateError("find redemption code", err)
	}
	return rc, nil
}

// FindRedemptionCodeByRecipient retrieves the code issued to one recipient in
// one campaign. Each recipient holds at most one code per campaign.
func (r *PostgresRepository) FindRedemptionCodeByRecipient(ctx context.Context, campaignID, recipientID uuid.UUID) (*domain.RedemptionCode, error) {
	query := `
		SELECT code, recipient_id, campaign_id, claimed_item_id, claimed_at, created_at
		FROM redemption_codes WHERE campaign_id = $1 AND recipient_id = $2
	`
	rc, err := scanRedemptionCode(r.db.QueryRow(ctx, query, campaignID, recipientID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRedemptionCodeNotFound
		}
		return nil, translateError("find redemption code by recipient", err)
	}
	return rc, nil
}

// ConsumeRedemptionCodeAtomic marks a redemption code as used by binding it to
// the item it paid out. The guard on `claimed_item_id IS NULL` makes this a
// single atomic check-and-set: the first caller wins, every later caller gets
// ErrCodeAlreadyRedeemed, and a code that never existed gets
// ErrRedemptionCodeNotFound.
func (r *PostgresRepository) ConsumeRedemptionCodeAtomic(ctx context.Context, code string, recipientID, itemID uuid.UUID) error {
	query := `
		UPDATE redemption_codes
		SET claimed_item_id = $3, claimed_at = NOW()
		WHERE code = $1 AND recipient_id = $2 AND claimed_item_id IS NULL
	`
	tag, err := r.db.Exec(ctx, query, code, recipientID, itemID)
	if err != nil {
		return translateError("consume redemption code", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: either the code is unknown for this recipient or it has
	// already been consumed. Distinguish so the waterfall can decide between
	// rejection and idempotent replay.
	_, err = r.FindRedemptionCodeByCodeAndRecipient(ctx, code, recipientID)
	if err != nil {
		if errors.Is(err, ErrRedemptionCodeNotFound) {
			return ErrRedemptionCodeNotFound
		}
		return err
	}
	return ErrCodeAlreadyRedeemed
}

// FindRedemptionCodeByCodeAndRecipient checks that a code belongs to a
// recipient regardless of its consumed state.
func (r *PostgresRepository) FindRedemptionCodeByCodeAndRecipient(ctx context.Context, code string, recipientID uuid.UUID) (*domain.RedemptionCode, error) {
	query := `
		SELECT code, recipient_id, campaign_id, claimed_item_id, claimed_at, created_at
		FROM redemption_codes WHERE code = $1 AND recipient_id = $2
	`
	rc, err := scanRedemptionCode(r.db.QueryRow(ctx, query, code, recipientID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRedemptionCodeNotFound
		}
		return nil, translateError("find redemption code for recipient", err)
	}
	return rc, nil
}
