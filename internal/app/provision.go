/**
 * @description
 * This file implements the card provisioning waterfall: credit check, atomic
 * pool claim, on-demand purchase fallback, redemption-typed ledger deduction,
 * and redemption code consumption. Each step is a hard gate; failures after
 * a claim or a debit trigger compensation so no card stays claimed without
 * being paid for and no credit stays deducted without a card going out.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rewardloop/credit-service/internal/domain"
	"github.com/rewardloop/credit-service/internal/store"
	"github.com/rewardloop/credit-service/pkg/rabbitmq"
)

const provisionRateLimitScope = "provision"

// ProvisionCard runs the full provisioning waterfall for one recipient:
//
//  1. Resolve the campaign's effective funding account (its own isolated
//     account, or the parent client's shared one) and gate on balance.
//  2. Claim one available item from the matching pool with an atomic
//     conditional update; exactly one concurrent caller wins each item.
//  3. On pool exhaustion, fall back to an on-demand vendor purchase when the
//     fallback is enabled.
//  4. Debit the funding account with a redemption-typed ledger entry.
//  5. Consume the recipient's redemption code, binding it to the item.
//
// Replays are detected through the redemption code: a recipient whose code is
// already bound to an item gets the original card back without any new debit
// or claim.
func (s *Service) ProvisionCard(ctx context.Context, payload domain.ProvisionCardPayload) (*domain.ProvisionResult, error) {
	started := time.Now()
	if payload.Denomination <= 0 {
		s.metrics.RecordProvision("invalid_amount", "none", time.Since(started))
		return nil, ErrInvalidAmount
	}

	if err := s.consumeProvisionRateLimit(ctx, payload.RecipientID); err != nil {
		s.metrics.RecordProvision("rate_limited", "none", time.Since(started))
		return nil, err
	}

	campaign, err := s.repo.FindCampaignByID(ctx, payload.CampaignID)
	if err != nil {
		s.metrics.RecordProvision("error", "none", time.Since(started))
		return nil, err
	}
	if campaign.Status != "active" {
		s.metrics.RecordProvision("campaign_inactive", "none", time.Since(started))
		return nil, ErrCampaignInactive
	}

	account, err := s.resolveFundingAccount(ctx, campaign)
	if err != nil {
		s.metrics.RecordProvision("error", "none", time.Since(started))
		return nil, err
	}
	if account.Status != "active" {
		s.metrics.RecordProvision("account_suspended", "none", time.Since(started))
		return nil, ErrAccountSuspended
	}

	code, err := s.resolveRedemptionCode(ctx, campaign.ID, payload.RecipientID)
	if err != nil {
		s.metrics.RecordProvision("error", "none", time.Since(started))
		return nil, err
	}
	if code.ClaimedItemID != nil {
		result, err := s.replayProvision(ctx, account.ID, *code.ClaimedItemID)
		if err != nil {
			s.metrics.RecordProvision("error", "none", time.Since(started))
			return nil, err
		}
		log.Printf("level=info component=provisioning msg=\"replayed prior provision\" campaign=%s recipient=%s item=%s",
			campaign.ID, payload.RecipientID, *code.ClaimedItemID)
		s.metrics.RecordProvision("replayed", string(result.Source), time.Since(started))
		return result, nil
	}

	// Gate before any inventory is touched. The debit later re-checks under
	// a row lock; this check keeps exhausted accounts from burning claims.
	required := payload.Denomination + s.cfg.FulfillmentFeeCents
	if account.TotalRemaining < required {
		s.metrics.RecordProvision("insufficient_credit", "none", time.Since(started))
		return nil, &InsufficientCreditError{Available: account.TotalRemaining, Required: required}
	}

	pool, err := s.repo.FindPoolForBrand(ctx, campaign.ClientOwnerID, payload.BrandID, payload.Denomination)
	if err != nil {
		if errors.Is(err, store.ErrPoolNotFound) {
			s.metrics.RecordProvision("no_supply", "none", time.Since(started))
			return nil, fmt.Errorf("%w: no pool configured for brand", ErrNoSupply)
		}
		s.metrics.RecordProvision("error", "none", time.Since(started))
		return nil, err
	}

	item, source, err := s.acquireItem(ctx, pool, payload)
	if err != nil {
		s.metrics.RecordProvision(provisionOutcome(err), "none", time.Since(started))
		return nil, err
	}

	debitAmount := payload.Denomination
	if source == domain.ProvisionSourcePurchase {
		debitAmount += s.cfg.FulfillmentFeeCents
	}
	description := fmt.Sprintf("card provision campaign=%s brand=%s", campaign.ID, payload.BrandID)
	debit, remaining, err := s.repo.DebitForRedemptionAtomic(ctx, account.ID, debitAmount, description, payload.RecipientID.String())
	if err != nil {
		s.compensateClaim(ctx, item, source, payload.RecipientID)
		var ib *store.InsufficientBalanceError
		if errors.As(err, &ib) {
			s.metrics.RecordProvision("insufficient_credit", string(source), time.Since(started))
			return nil, &InsufficientCreditError{Available: ib.Available, Required: ib.Required}
		}
		s.metrics.RecordProvision("error", string(source), time.Since(started))
		return nil, fmt.Errorf("failed to debit funding account: %w", err)
	}

	err = s.repo.ConsumeRedemptionCodeAtomic(ctx, code.Code, payload.RecipientID, item.ID)
	if err != nil {
		// Undo the debit first: an unpaid claimed card is recoverable, a
		// silently kept debit is not.
		if _, _, refundErr := s.repo.RefundRedemptionAtomic(ctx, account.ID, debitAmount, debit.ID, "provision reversal", payload.RecipientID.String()); refundErr != nil {
			log.Printf("level=error component=provisioning msg=\"refund failed after consume failure\" account=%s transaction=%s err=%v", account.ID, debit.ID, refundErr)
		}
		s.compensateClaim(ctx, item, source, payload.RecipientID)

		if errors.Is(err, store.ErrCodeAlreadyRedeemed) {
			// A concurrent call won the code. Hand back the winner's card.
			winner, findErr := s.repo.FindRedemptionCodeByRecipient(ctx, campaign.ID, payload.RecipientID)
			if findErr == nil && winner.ClaimedItemID != nil {
				result, replayErr := s.replayProvision(ctx, account.ID, *winner.ClaimedItemID)
				if replayErr == nil {
					s.metrics.RecordProvision("replayed", string(result.Source), time.Since(started))
					return result, nil
				}
			}
			s.metrics.RecordProvision("already_redeemed", string(source), time.Since(started))
			return nil, ErrAlreadyRedeemed
		}
		s.metrics.RecordProvision("error", string(source), time.Since(started))
		return nil, fmt.Errorf("failed to consume redemption code: %w", err)
	}

	if err := s.repo.MarkItemDelivered(ctx, item.ID); err != nil {
		// The card is paid for and bound to the code; a stuck 'claimed'
		// status is an operational cleanup, not a caller-visible failure.
		log.Printf("level=warn component=provisioning msg=\"deliver mark failed\" item=%s err=%v", item.ID, err)
	}

	s.publishProvisioned(ctx, campaign, payload, item, source)
	s.checkBalanceAlerts(ctx, account.ID, remaining)
	s.checkPoolInventory(ctx, pool)

	log.Printf("level=info component=provisioning msg=\"card provisioned\" campaign=%s recipient=%s item=%s source=%s remaining=%d",
		campaign.ID, payload.RecipientID, item.ID, source, remaining)
	s.metrics.RecordProvision("success", string(source), time.Since(started))

	return &domain.ProvisionResult{
		Card: domain.CardPayload{
			Code:          item.Code,
			SecondaryCode: item.SecondaryCode,
			Denomination:  item.Denomination,
		},
		Source:          source,
		CreditRemaining: remaining,
		ItemID:          item.ID,
	}, nil
}

// resolveFundingAccount picks the account that pays for a campaign's rewards:
// the campaign's own isolated account, or the parent client's shared one.
func (s *Service) resolveFundingAccount(ctx context.Context, campaign *domain.Campaign) (*domain.CreditAccount, error) {
	if campaign.SharedBudget {
		return s.repo.FindAccountByOwner(ctx, domain.OwnerTypeClient, campaign.ClientOwnerID)
	}
	return s.repo.FindAccountByOwner(ctx, domain.OwnerTypeCampaign, campaign.ID)
}

// resolveRedemptionCode loads the recipient's code for the campaign, creating
// a generated one on first contact. Form-driven flows register explicit codes
// up front through RedeemCode/ImportInventory paths; call-center and
// scheduled-job flows land here without one.
func (s *Service) resolveRedemptionCode(ctx context.Context, campaignID, recipientID uuid.UUID) (*domain.RedemptionCode, error) {
	code, err := s.repo.FindRedemptionCodeByRecipient(ctx, campaignID, recipientID)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, store.ErrRedemptionCodeNotFound) {
		return nil, err
	}

	generated := &domain.RedemptionCode{
		Code:        strings.ToUpper(uuid.NewString()),
		RecipientID: recipientID,
		CampaignID:  campaignID,
	}
	if err := s.repo.CreateRedemptionCode(ctx, generated); err != nil {
		if errors.Is(err, store.ErrDuplicateCode) {
			// A concurrent first contact created it; re-read.
			return s.repo.FindRedemptionCodeByRecipient(ctx, campaignID, recipientID)
		}
		return nil, err
	}
	return generated, nil
}

// acquireItem runs steps 2 and 3 of the waterfall: pool claim, then the
// vendor purchase fallback on exhaustion.
func (s *Service) acquireItem(ctx context.Context, pool *domain.InventoryPool, payload domain.ProvisionCardPayload) (*domain.InventoryItem, domain.ProvisionSource, error) {
	item, err := s.repo.ClaimAvailableItemAtomic(ctx, pool.ID, payload.RecipientID)
	if err == nil {
		return item, domain.ProvisionSourcePool, nil
	}
	if !errors.Is(err, store.ErrPoolExhausted) {
		return nil, "", err
	}

	if !s.cfg.FallbackEnabled || s.vendor == nil {
		s.publishPoolExhausted(ctx, pool, 0)
		return nil, "", ErrNoSupply
	}

	// The reference doubles as the vendor-side idempotency key.
	reference := fmt.Sprintf("%s:%s", payload.CampaignID, payload.RecipientID)
	card, err := s.vendor.PurchaseCard(ctx, payload.BrandID, payload.Denomination, reference)
	if err != nil {
		s.metrics.RecordVendorError()
		switch {
		case errors.Is(err, ErrNoSupply):
			s.publishPoolExhausted(ctx, pool, 0)
			return nil, "", ErrNoSupply
		case errors.Is(err, ErrVendorUnavailable):
			return nil, "", ErrVendorUnavailable
		default:
			return nil, "", fmt.Errorf("vendor purchase failed: %w", err)
		}
	}

	purchased := &domain.InventoryItem{
		ID:                   uuid.New(),
		PoolID:               pool.ID,
		Code:                 card.Code,
		SecondaryCode:        card.SecondaryCode,
		Denomination:         payload.Denomination,
		Status:               domain.ItemStatusClaimed,
		Source:               domain.ItemSourcePurchase,
		ClaimedByRecipientID: &payload.RecipientID,
	}
	if err := s.repo.InsertPurchasedItem(ctx, purchased); err != nil {
		return nil, "", fmt.Errorf("failed to record purchased card: %w", err)
	}
	return purchased, domain.ProvisionSourcePurchase, nil
}

// compensateClaim undoes an item acquisition after a later step failed. Pool
// items go back to available; purchased cards are recipient-specific and are
// expired instead.
func (s *Service) compensateClaim(ctx context.Context, item *domain.InventoryItem, source domain.ProvisionSource, recipientID uuid.UUID) {
	var err error
	if source == domain.ProvisionSourcePurchase {
		err = s.repo.ExpirePurchasedItem(ctx, item.ID)
	} else {
		err = s.repo.ReleaseClaimedItem(ctx, item.ID, recipientID)
	}
	if err != nil {
		log.Printf("level=error component=provisioning msg=\"claim compensation failed\" item=%s source=%s err=%v", item.ID, source, err)
	}
}

// replayProvision rebuilds the result of an earlier successful provision from
// the item the recipient's code is bound to.
func (s *Service) replayProvision(ctx context.Context, accountID, itemID uuid.UUID) (*domain.ProvisionResult, error) {
	item, err := s.repo.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	source := domain.ProvisionSourcePool
	if item.Source == domain.ItemSourcePurchase {
		source = domain.ProvisionSourcePurchase
	}
	return &domain.ProvisionResult{
		Card: domain.CardPayload{
			Code:          item.Code,
			SecondaryCode: item.SecondaryCode,
			Denomination:  item.Denomination,
		},
		Source:          source,
		CreditRemaining: account.TotalRemaining,
		ItemID:          item.ID,
		Replayed:        true,
	}, nil
}

// RedeemCode is the public validator entry point: it normalizes and
// format-checks a raw code, then provisions against the campaign the code
// belongs to. Malformed input never reaches the store.
func (s *Service) RedeemCode(ctx context.Context, rawCode string, recipientID uuid.UUID, brandID uuid.UUID, denomination int64) (*domain.ProvisionResult, error) {
	code := NormalizeRedemptionCode(rawCode)
	if err := ValidateRedemptionCodeFormat(code); err != nil {
		return nil, err
	}

	rc, err := s.repo.FindRedemptionCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if rc.RecipientID != recipientID {
		// Another recipient's code is indistinguishable from an unknown one.
		return nil, fmt.Errorf("%w: code belongs to a different recipient", store.ErrRedemptionCodeNotFound)
	}

	return s.ProvisionCard(ctx, domain.ProvisionCardPayload{
		CampaignID:   rc.CampaignID,
		BrandID:      brandID,
		Denomination: denomination,
		RecipientID:  recipientID,
	})
}

func (s *Service) consumeProvisionRateLimit(ctx context.Context, recipientID uuid.UUID) error {
	if s.rateLimiter == nil || s.cfg.ProvisionLimitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, provisionRateLimitScope, recipientID.String(), s.cfg.ProvisionLimitPerMinute, time.Minute)
	if err != nil {
		// Rate limiting degrades open: a broken limiter must not block
		// legitimate redemptions.
		log.Printf("level=warn component=provisioning msg=\"rate limiter unavailable\" recipient=%s err=%v", recipientID, err)
		return nil
	}
	if count > s.cfg.ProvisionLimitPerMinute {
		log.Printf("level=warn component=provisioning msg=\"rate limited\" recipient=%s count=%d retry_after=%d", recipientID, count, retryAfter)
		return ErrRateLimited
	}
	return nil
}

func (s *Service) publishProvisioned(ctx context.Context, campaign *domain.Campaign, payload domain.ProvisionCardPayload, item *domain.InventoryItem, source domain.ProvisionSource) {
	event := rabbitmq.CardProvisionedEvent{
		CampaignID:   campaign.ID,
		RecipientID:  payload.RecipientID,
		ItemID:       item.ID,
		BrandID:      payload.BrandID,
		Denomination: item.Denomination,
		Source:       string(source),
		Timestamp:    time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, s.cfg.AlertExchange, "credit.card.provisioned", event); err != nil {
		log.Printf("level=warn component=provisioning msg=\"provisioned event publish failed\" item=%s err=%v", item.ID, err)
	}
}

func (s *Service) publishPoolExhausted(ctx context.Context, pool *domain.InventoryPool, available int) {
	event := rabbitmq.PoolExhaustedAlert{
		PoolID:         pool.ID,
		BrandID:        pool.BrandID,
		Denomination:   pool.Denomination,
		AvailableCount: available,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, s.cfg.AlertExchange, "credit.pool.exhausted", event); err != nil {
		log.Printf("level=warn component=provisioning msg=\"pool exhausted alert publish failed\" pool=%s err=%v", pool.ID, err)
	}
}

// checkPoolInventory emits a low-inventory alert after a successful pool
// claim when remaining availability crosses the configured threshold.
func (s *Service) checkPoolInventory(ctx context.Context, pool *domain.InventoryPool) {
	if s.cfg.LowInventoryThreshold <= 0 {
		return
	}
	status, err := s.repo.GetPoolInventoryStatus(ctx, pool.ID)
	if err != nil {
		log.Printf("level=warn component=provisioning msg=\"inventory check skipped\" pool=%s err=%v", pool.ID, err)
		return
	}
	if status.AvailableCount <= s.cfg.LowInventoryThreshold {
		s.publishPoolExhausted(ctx, pool, status.AvailableCount)
	}
}

func provisionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNoSupply):
		return "no_supply"
	case errors.Is(err, ErrVendorUnavailable):
		return "vendor_unavailable"
	default:
		return "error"
	}
}
