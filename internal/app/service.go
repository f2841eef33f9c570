/**
 * @description
 * This file contains the core business logic for the credit service. The
 * `Service` struct orchestrates all credit movement operations, coordinating
 * between the database repository, the card vendor API client, and the
 * message broker.
 *
 * Key features:
 * - Implements hierarchical credit allocation with strict one-level-down
 *   routing (platform -> agency -> client -> campaign).
 * - Records every balance change as immutable ledger transactions.
 * - Publishes alert events to RabbitMQ for asynchronous processing.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/cardvendor, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rewardloop/credit-service/internal/domain"
	"github.com/rewardloop/credit-service/internal/observability"
	"github.com/rewardloop/credit-service/internal/store"
	"github.com/rewardloop/credit-service/pkg/rabbitmq"
)

// DefaultAlertExchange is the RabbitMQ exchange carrying credit alert events
// unless configuration overrides it.
const DefaultAlertExchange = "credit_events"

// allocationChild maps each owner type to the only type it may allocate to.
var allocationChild = map[domain.OwnerType]domain.OwnerType{
	domain.OwnerTypePlatform: domain.OwnerTypeAgency,
	domain.OwnerTypeAgency:   domain.OwnerTypeClient,
	domain.OwnerTypeClient:   domain.OwnerTypeCampaign,
}

// VendorCard is the result of an on-demand card purchase.
type VendorCard struct {
	Code          string
	SecondaryCode *string
	Cost          int64
}

// CardVendor is the slice of the vendor client the service needs. Tests
// substitute a stub; production wires pkg/cardvendor.Client through
// NewVendorAdapter.
type CardVendor interface {
	PurchaseCard(ctx context.Context, brandID uuid.UUID, denomination int64, reference string) (*VendorCard, error)
}

// RateLimiter bounds per-recipient provisioning attempts.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Config carries the tunables the service needs from the environment.
type Config struct {
	FulfillmentFeeCents     int64
	FallbackEnabled         bool
	ProvisionLimitPerMinute int
	LowInventoryThreshold   int
	AlertExchange           string
}

// Service provides the core business logic for credit and provisioning.
type Service struct {
	repo          store.Repository
	vendor        CardVendor
	eventProducer rabbitmq.Publisher
	metrics       *observability.Metrics
	rateLimiter   RateLimiter
	cfg           Config
}

// NewService creates a new credit service instance.
func NewService(repo store.Repository, vendor CardVendor, producer rabbitmq.Publisher, metrics *observability.Metrics, limiter RateLimiter, cfg Config) *Service {
	if cfg.AlertExchange == "" {
		cfg.AlertExchange = DefaultAlertExchange
	}
	return &Service{
		repo:          repo,
		vendor:        vendor,
		eventProducer: producer,
		metrics:       metrics,
		rateLimiter:   limiter,
		cfg:           cfg,
	}
}

// GetAccount returns one credit account by id.
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.CreditAccount, error) {
	return s.repo.FindAccountByID(ctx, accountID)
}

// GetAccountByOwner returns the credit account of a hierarchy entity.
func (s *Service) GetAccountByOwner(ctx context.Context, ownerType domain.OwnerType, ownerID uuid.UUID) (*domain.CreditAccount, error) {
	if !ownerType.Valid() {
		return nil, fmt.Errorf("unknown owner type %q", ownerType)
	}
	return s.repo.FindAccountByOwner(ctx, ownerType, ownerID)
}

// ListTransactions returns ledger history for an account, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, opts domain.TransactionListOptions) ([]domain.CreditTransaction, error) {
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactionsByAccount(ctx, accountID, opts)
}

// Allocate moves credit from a source account one level down the hierarchy.
// Validation happens before any store write: the amount must be positive, the
// source account active, and the destination exactly one level below the
// source (an agency cannot fund another agency, nor reach a campaign
// directly). On success it returns the paired ledger entries, which share a
// related transaction id and whose amounts sum to zero.
func (s *Service) Allocate(ctx context.Context, fromAccountID uuid.UUID, payload domain.AllocateCreditPayload, requestedBy string) (*domain.AllocationResult, error) {
	if payload.Amount <= 0 {
		s.metrics.RecordAllocation("invalid_amount")
		return nil, ErrInvalidAmount
	}
	if !payload.ToOwnerType.Valid() {
		s.metrics.RecordAllocation("hierarchy_violation")
		return nil, fmt.Errorf("%w: unknown destination owner type %q", ErrHierarchyViolation, payload.ToOwnerType)
	}

	source, err := s.repo.FindAccountByID(ctx, fromAccountID)
	if err != nil {
		s.metrics.RecordAllocation("error")
		return nil, err
	}
	if source.Status != "active" {
		s.metrics.RecordAllocation("account_suspended")
		return nil, ErrAccountSuspended
	}

	if allocationChild[source.OwnerType] != payload.ToOwnerType {
		log.Printf("level=warn component=credit_service msg=\"allocation rejected\" reason=hierarchy from_owner_type=%s to_owner_type=%s", source.OwnerType, payload.ToOwnerType)
		s.metrics.RecordAllocation("hierarchy_violation")
		return nil, fmt.Errorf("%w: %s cannot allocate to %s", ErrHierarchyViolation, source.OwnerType, payload.ToOwnerType)
	}

	result, err := s.repo.AllocateCreditAtomic(ctx, domain.AllocationRequest{
		FromAccountID: fromAccountID,
		ToOwnerType:   payload.ToOwnerType,
		ToOwnerID:     payload.ToOwnerID,
		Amount:        payload.Amount,
		Notes:         payload.Notes,
		RequestedBy:   requestedBy,
	})
	if err != nil {
		var ib *store.InsufficientBalanceError
		if errors.As(err, &ib) {
			s.metrics.RecordAllocation("insufficient_balance")
			return nil, &InsufficientCreditError{Available: ib.Available, Required: ib.Required}
		}
		s.metrics.RecordAllocation("error")
		return nil, fmt.Errorf("failed to allocate credit: %w", err)
	}

	log.Printf("level=info component=credit_service msg=\"credit allocated\" from_account=%s to_owner=%s amount=%d transfer_id=%s",
		fromAccountID, payload.ToOwnerID, payload.Amount, result.OutTransaction.RelatedTransactionID)
	s.metrics.RecordAllocation("success")
	s.checkBalanceAlerts(ctx, source.ID, result.FromBalance)
	return result, nil
}

// PurchaseCredit records a credit top-up on an account. Payment capture is
// owned by the billing service; this endpoint is called after the charge
// settles.
func (s *Service) PurchaseCredit(ctx context.Context, accountID uuid.UUID, payload domain.PurchaseCreditPayload, createdBy string) (*domain.CreditTransaction, int64, error) {
	if payload.Amount <= 0 {
		return nil, 0, ErrInvalidAmount
	}
	entry, balance, err := s.repo.PurchaseCreditAtomic(ctx, accountID, payload.Amount, payload.Notes, createdBy)
	if err != nil {
		return nil, 0, err
	}
	log.Printf("level=info component=credit_service msg=\"credit purchased\" account=%s amount=%d balance=%d", accountID, payload.Amount, balance)
	return entry, balance, nil
}

// checkBalanceAlerts publishes low-balance and auto-reload events after a
// balance decrease. Publish failures are logged, never surfaced: alerting is
// advisory and must not fail the money movement that triggered it.
func (s *Service) checkBalanceAlerts(ctx context.Context, accountID uuid.UUID, remaining int64) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		log.Printf("level=warn component=credit_service msg=\"balance alert check skipped\" account=%s err=%v", accountID, err)
		return
	}

	if account.LowBalanceThreshold > 0 && remaining < account.LowBalanceThreshold {
		event := rabbitmq.LowBalanceAlert{
			AccountID: account.ID,
			OwnerType: string(account.OwnerType),
			OwnerID:   account.OwnerID,
			Remaining: remaining,
			Threshold: account.LowBalanceThreshold,
			Timestamp: time.Now().UTC(),
		}
		if err := s.eventProducer.Publish(ctx, s.cfg.AlertExchange, "credit.balance.low", event); err != nil {
			log.Printf("level=warn component=credit_service msg=\"low balance alert publish failed\" account=%s err=%v", account.ID, err)
		}
	}

	if account.AutoReloadEnabled && remaining < account.AutoReloadThreshold && account.AutoReloadAmount > 0 {
		event := rabbitmq.AutoReloadRequested{
			AccountID: account.ID,
			Remaining: remaining,
			Amount:    account.AutoReloadAmount,
			Timestamp: time.Now().UTC(),
		}
		if err := s.eventProducer.Publish(ctx, s.cfg.AlertExchange, "credit.reload.requested", event); err != nil {
			log.Printf("level=warn component=credit_service msg=\"auto reload event publish failed\" account=%s err=%v", account.ID, err)
		}
	}
}

// UpdateAccountSettings applies admin changes to alert thresholds, the
// auto-reload configuration, or the account status.
func (s *Service) UpdateAccountSettings(ctx context.Context, accountID uuid.UUID, update domain.AccountSettingsUpdate) (*domain.CreditAccount, error) {
	if update.Status != nil && *update.Status != "active" && *update.Status != "suspended" {
		return nil, fmt.Errorf("unknown account status %q", *update.Status)
	}
	return s.repo.UpdateAccountSettings(ctx, accountID, update)
}

// CreatePool registers a new inventory pool for a client, brand and
// denomination combination.
func (s *Service) CreatePool(ctx context.Context, clientOwnerID, brandID uuid.UUID, denomination int64) (*domain.InventoryPool, error) {
	if denomination <= 0 {
		return nil, ErrInvalidAmount
	}
	pool := &domain.InventoryPool{
		ID:            uuid.New(),
		ClientOwnerID: clientOwnerID,
		BrandID:       brandID,
		Denomination:  denomination,
		Status:        "active",
	}
	if err := s.repo.CreatePool(ctx, pool); err != nil {
		return nil, err
	}
	log.Printf("level=info component=credit_service msg=\"pool created\" pool=%s client=%s brand=%s denomination=%d",
		pool.ID, clientOwnerID, brandID, denomination)
	return pool, nil
}

// GetPoolStatus returns a pool with live per-status inventory counts.
func (s *Service) GetPoolStatus(ctx context.Context, poolID uuid.UUID) (*domain.PoolInventoryStatus, error) {
	return s.repo.GetPoolInventoryStatus(ctx, poolID)
}
