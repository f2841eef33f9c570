/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * for credit accounts and the credit transaction ledger. It contains all the
 * SQL needed for balance reads, the two-sided allocation transfer, purchases,
 * redemption debits, and refunds.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rewardloop/credit-service/internal/domain"
)

const accountColumns = `
	id, owner_type, owner_id, total_purchased, total_allocated, total_remaining,
	total_used, low_balance_threshold, auto_reload_enabled, auto_reload_threshold,
	auto_reload_amount, status, created_at, updated_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.CreditAccount, error) {
	var a domain.CreditAccount
	err := row.Scan(
		&a.ID, &a.OwnerType, &a.OwnerID, &a.TotalPurchased, &a.TotalAllocated,
		&a.TotalRemaining, &a.TotalUsed, &a.LowBalanceThreshold, &a.AutoReloadEnabled,
		&a.AutoReloadThreshold, &a.AutoReloadAmount, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAccountByID retrieves one credit account by its primary key.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.CreditAccount, error) {
	query := `SELECT` + accountColumns + ` FROM credit_accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, translateError("find account", err)
	}
	return account, nil
}

// FindAccountByOwner retrieves the credit account for one hierarchy entity.
// Accounts are created lazily, so a missing row is a normal condition for
// entities that have never been funded.
func (r *PostgresRepository) FindAccountByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID uuid.UUID) (*domain.CreditAccount, error) {
	query := `SELECT` + accountColumns + ` FROM credit_accounts WHERE owner_type = $1 AND owner_id = $2`
	account, err := scanAccount(r.db.QueryRow(ctx, query, ownerType, ownerID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, translateError("find account by owner", err)
	}
	return account, nil
}

// ListTransactionsByAccount retrieves ledger history for an account, newest first.
func (r *PostgresRepository) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, opts domain.TransactionListOptions) ([]domain.CreditTransaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, account_id, type, amount, balance_before, balance_after,
		       related_transaction_id, COALESCE(description, '') AS description,
		       created_by, created_at
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, translateError("list transactions", err)
	}
	defer rows.Close()

	var transactions []domain.CreditTransaction
	for rows.Next() {
		var tx domain.CreditTransaction
		if err := rows.Scan(
			&tx.ID, &tx.AccountID, &tx.Type, &tx.Amount, &tx.BalanceBefore,
			&tx.BalanceAfter, &tx.RelatedTransactionID, &tx.Description,
			&tx.CreatedBy, &tx.CreatedAt,
		); err != nil {
			return nil, translateError("scan transaction", err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// lockAccountForUpdate reads an account row under FOR UPDATE inside tx.
func lockAccountForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.CreditAccount, error) {
	query := `SELECT` + accountColumns + ` FROM credit_accounts WHERE id = $1 FOR UPDATE`
	account, err := scanAccount(tx.QueryRow(ctx, query, accountID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// lockOrCreateAccountByOwner returns the destination account row locked for
// update, creating it first if the entity has never held credit. The insert
// uses ON CONFLICT DO NOTHING so two concurrent first allocations to the same
// entity converge on one row.
func lockOrCreateAccountByOwner(ctx context.Context, tx pgx.Tx, ownerType domain.OwnerType, ownerID uuid.UUID) (*domain.CreditAccount, error) {
	insert := `
		INSERT INTO credit_accounts (id, owner_type, owner_id, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (owner_type, owner_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insert, uuid.New(), ownerType, ownerID); err != nil {
		return nil, err
	}

	query := `SELECT` + accountColumns + ` FROM credit_accounts WHERE owner_type = $1 AND owner_id = $2 FOR UPDATE`
	return scanAccount(tx.QueryRow(ctx, query, ownerType, ownerID))
}

func insertLedgerRow(ctx context.Context, tx pgx.Tx, entry *domain.CreditTransaction) error {
	query := `
		INSERT INTO credit_transactions (
			id, account_id, type, amount, balance_before, balance_after,
			related_transaction_id, description, created_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.Exec(ctx, query,
		entry.ID, entry.AccountID, entry.Type, entry.Amount, entry.BalanceBefore,
		entry.BalanceAfter, entry.RelatedTransactionID, entry.Description,
		entry.CreatedBy, entry.CreatedAt,
	)
	return err
}

// AllocateCreditAtomic executes one parent-to-child credit transfer inside a
// single database transaction:
//
//  1. Lock the source row and re-check the balance under the lock. This guards
//     against lost updates when two allocations race on the same source.
//  2. Lock the destination row, creating it lazily if absent.
//  3. Write the two linked ledger rows (negative on the source, positive on
//     the destination) sharing one related_transaction_id.
//  4. Update both account aggregates.
//
// Any failure aborts the whole transaction; no partial ledger writes persist.
func (r *PostgresRepository) AllocateCreditAtomic(ctx context.Context, req domain.AllocationRequest) (*domain.AllocationResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, translateError("begin allocation", err)
	}
	defer tx.Rollback(ctx)

	source, err := lockAccountForUpdate(ctx, tx, req.FromAccountID)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil, ErrAccountNotFound
		}
		return nil, translateError("lock source account", err)
	}

	if source.TotalRemaining < req.Amount {
		return nil, &InsufficientBalanceError{Available: source.TotalRemaining, Required: req.Amount}
	}

	dest, err := lockOrCreateAccountByOwner(ctx, tx, req.ToOwnerType, req.ToOwnerID)
	if err != nil {
		return nil, translateError("lock destination account", err)
	}

	now := time.Now().UTC()
	transferID := uuid.New()
	outTx := &domain.CreditTransaction{
		ID:                   uuid.New(),
		AccountID:            source.ID,
		Type:                 domain.TransactionAllocationOut,
		Amount:               -req.Amount,
		BalanceBefore:        source.TotalRemaining,
		BalanceAfter:         source.TotalRemaining - req.Amount,
		RelatedTransactionID: &transferID,
		Description:          req.Notes,
		CreatedBy:            req.RequestedBy,
		CreatedAt:            now,
	}
	inTx := &domain.CreditTransaction{
		ID:                   uuid.New(),
		AccountID:            dest.ID,
		Type:                 domain.TransactionAllocationIn,
		Amount:               req.Amount,
		BalanceBefore:        dest.TotalRemaining,
		BalanceAfter:         dest.TotalRemaining + req.Amount,
		RelatedTransactionID: &transferID,
		Description:          req.Notes,
		CreatedBy:            req.RequestedBy,
		CreatedAt:            now,
	}

	if err := insertLedgerRow(ctx, tx, outTx); err != nil {
		return nil, translateError("write allocation_out", err)
	}
	if err := insertLedgerRow(ctx, tx, inTx); err != nil {
		return nil, translateError("write allocation_in", err)
	}

	sourceUpdate := `
		UPDATE credit_accounts
		SET total_allocated = total_allocated + $1,
		    total_remaining = total_remaining - $1,
		    updated_at = NOW()
		WHERE id = $2 AND total_remaining >= $1
	`
	tag, err := tx.Exec(ctx, sourceUpdate, req.Amount, source.ID)
	if err != nil {
		return nil, translateError("debit source aggregates", err)
	}
	if tag.RowsAffected() == 0 {
		// The row lock makes this unreachable in practice; the balance guard
		// in the WHERE clause is the store-level backstop for the invariant.
		return nil, &InsufficientBalanceError{Available: source.TotalRemaining, Required: req.Amount}
	}

	destUpdate := `
		UPDATE credit_accounts
		SET total_purchased = total_purchased + $1,
		    total_remaining = total_remaining + $1,
		    status = 'active',
		    updated_at = NOW()
		WHERE id = $2
	`
	if _, err := tx.Exec(ctx, destUpdate, req.Amount, dest.ID); err != nil {
		return nil, translateError("credit destination aggregates", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translateError("commit allocation", err)
	}

	return &domain.AllocationResult{
		OutTransaction: outTx,
		InTransaction:  inTx,
		FromBalance:    outTx.BalanceAfter,
		ToBalance:      inTx.BalanceAfter,
	}, nil
}

// PurchaseCreditAtomic records a credit top-up (purchase-typed ledger entry)
// on an account and returns the entry plus the new remaining balance.
func (r *PostgresRepository) PurchaseCreditAtomic(ctx context.Context, accountID uuid.UUID, amount int64, description, createdBy string) (*domain.CreditTransaction, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, 0, translateError("begin purchase", err)
	}
	defer tx.Rollback(ctx)

	account, err := lockAccountForUpdate(ctx, tx, accountID)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil, 0, ErrAccountNotFound
		}
		return nil, 0, translateError("lock account", err)
	}

	entry := &domain.CreditTransaction{
		ID:            uuid.New(),
		AccountID:     account.ID,
		Type:          domain.TransactionPurchase,
		Amount:        amount,
		BalanceBefore: account.TotalRemaining,
		BalanceAfter:  account.TotalRemaining + amount,
		Description:   description,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now().UTC(),
	}
	if err := insertLedgerRow(ctx, tx, entry); err != nil {
		return nil, 0, translateError("write purchase", err)
	}

	update := `
		UPDATE credit_accounts
		SET total_purchased = total_purchased + $1,
		    total_remaining = total_remaining + $1,
		    updated_at = NOW()
		WHERE id = $2
	`
	if _, err := tx.Exec(ctx, update, amount, account.ID); err != nil {
		return nil, 0, translateError("credit aggregates", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, translateError("commit purchase", err)
	}
	return entry, entry.BalanceAfter, nil
}

// DebitForRedemptionAtomic debits an account for a fulfilled reward. This is a
// single-entry redemption transaction: value leaves the system to the
// recipient, so there is no paired destination row.
func (r *PostgresRepository) DebitForRedemptionAtomic(ctx context.Context, accountID uuid.UUID, amount int64, description, createdBy string) (*domain.CreditTransaction, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, 0, translateError("begin redemption debit", err)
	}
	defer tx.Rollback(ctx)

	account, err := lockAccountForUpdate(ctx, tx, accountID)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil, 0, ErrAccountNotFound
		}
		return nil, 0, translateError("lock account", err)
	}

	if account.TotalRemaining < amount {
		return nil, 0, &InsufficientBalanceError{Available: account.TotalRemaining, Required: amount}
	}

	entry := &domain.CreditTransaction{
		ID:            uuid.New(),
		AccountID:     account.ID,
		Type:          domain.TransactionRedemption,
		Amount:        -amount,
		BalanceBefore: account.TotalRemaining,
		BalanceAfter:  account.TotalRemaining - amount,
		Description:   description,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now().UTC(),
	}
	if err := insertLedgerRow(ctx, tx, entry); err != nil {
		return nil, 0, translateError("write redemption", err)
	}

	update := `
		UPDATE credit_accounts
		SET total_used = total_used + $1,
		    total_remaining = total_remaining - $1,
		    updated_at = NOW()
		WHERE id = $2 AND total_remaining >= $1
	`
	tag, err := tx.Exec(ctx, update, amount, account.ID)
	if err != nil {
		return nil, 0, translateError("debit aggregates", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, 0, &InsufficientBalanceError{Available: account.TotalRemaining, Required: amount}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, translateError("commit redemption debit", err)
	}
	return entry, entry.BalanceAfter, nil
}

// RefundRedemptionAtomic reverses a redemption debit with a refund-typed
// entry linked to the original transaction. Used to compensate when a later
// provisioning step fails after credit was already deducted.
func (r *PostgresRepository) RefundRedemptionAtomic(ctx context.Context, accountID uuid.UUID, amount int64, relatedTransactionID uuid.UUID, description, createdBy string) (*domain.CreditTransaction, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, 0, translateError("begin refund", err)
	}
	defer tx.Rollback(ctx)

	account, err := lockAccountForUpdate(ctx, tx, accountID)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil, 0, ErrAccountNotFound
		}
		return nil, 0, translateError("lock account", err)
	}

	entry := &domain.CreditTransaction{
		ID:                   uuid.New(),
		AccountID:            account.ID,
		Type:                 domain.TransactionRefund,
		Amount:               amount,
		BalanceBefore:        account.TotalRemaining,
		BalanceAfter:         account.TotalRemaining + amount,
		RelatedTransactionID: &relatedTransactionID,
		Description:          description,
		CreatedBy:            createdBy,
		CreatedAt:            time.Now().UTC(),
	}
	if err := insertLedgerRow(ctx, tx, entry); err != nil {
		return nil, 0, translateError("write refund", err)
	}

	update := `
		UPDATE credit_accounts
		SET total_used = total_used - $1,
		    total_remaining = total_remaining + $1,
		    updated_at = NOW()
		WHERE id = $2
	`
	if _, err := tx.Exec(ctx, update, amount, account.ID); err != nil {
		return nil, 0, translateError("refund aggregates", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, translateError("commit refund", err)
	}
	return entry, entry.BalanceAfter, nil
}

// UpdateAccountSettings applies optional admin changes to an account's alert
// thresholds, auto-reload configuration, and status.
func (r *PostgresRepository) UpdateAccountSettings(ctx context.Context, accountID uuid.UUID, update domain.AccountSettingsUpdate) (*domain.CreditAccount, error) {
	query := `
		UPDATE credit_accounts
		SET low_balance_threshold = COALESCE($2, low_balance_threshold),
		    auto_reload_enabled   = COALESCE($3, auto_reload_enabled),
		    auto_reload_threshold = COALESCE($4, auto_reload_threshold),
		    auto_reload_amount    = COALESCE($5, auto_reload_amount),
		    status                = COALESCE($6, status),
		    updated_at            = NOW()
		WHERE id = $1
		RETURNING` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, accountID,
		update.LowBalanceThreshold, update.AutoReloadEnabled,
		update.AutoReloadThreshold, update.AutoReloadAmount, update.Status,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, translateError("update account settings", err)
	}
	return account, nil
}

// FindCampaignByID retrieves the funding-resolution slice of a campaign.
func (r *PostgresRepository) FindCampaignByID(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error) {
	var c domain.Campaign
	query := `SELECT id, client_owner_id, shared_budget, status FROM campaigns WHERE id = $1`
	err := r.db.QueryRow(ctx, query, campaignID).Scan(&c.ID, &c.ClientOwnerID, &c.SharedBudget, &c.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCampaignNotFound
		}
		return nil, translateError("find campaign", err)
	}
	return &c, nil
}
