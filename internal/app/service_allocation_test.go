package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rewardloop/credit-service/internal/domain"
	"github.com/rewardloop/credit-service/internal/observability"
	"github.com/rewardloop/credit-service/internal/store"
	"github.com/rewardloop/credit-service/pkg/rabbitmq"
)

// allocationRepoStub models the ledger transfer semantics in memory so the
// service's validation and result plumbing can be exercised without Postgres.
type allocationRepoStub struct {
	store.Repository

	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.CreditAccount
	byOwner  map[string]*domain.CreditAccount
	ledger   []*domain.CreditTransaction

	allocateCalled bool
}

func newAllocationRepoStub() *allocationRepoStub {
	return &allocationRepoStub{
		accounts: make(map[uuid.UUID]*domain.CreditAccount),
		byOwner:  make(map[string]*domain.CreditAccount),
	}
}

func ownerKey(ownerType domain.OwnerType, ownerID uuid.UUID) string {
	return string(ownerType) + "/" + ownerID.String()
}

func (s *allocationRepoStub) addAccount(ownerType domain.OwnerType, remaining int64) *domain.CreditAccount {
	account := &domain.CreditAccount{
		ID:             uuid.New(),
		OwnerType:      ownerType,
		OwnerID:        uuid.New(),
		TotalPurchased: remaining,
		TotalRemaining: remaining,
		Status:         "active",
	}
	s.accounts[account.ID] = account
	s.byOwner[ownerKey(ownerType, account.OwnerID)] = account
	return account
}

func (s *allocationRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *allocationRepoStub) AllocateCreditAtomic(ctx context.Context, req domain.AllocationRequest) (*domain.AllocationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocateCalled = true

	source, ok := s.accounts[req.FromAccountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if source.TotalRemaining < req.Amount {
		return nil, &store.InsufficientBalanceError{Available: source.TotalRemaining, Required: req.Amount}
	}

	dest, ok := s.byOwner[ownerKey(req.ToOwnerType, req.ToOwnerID)]
	if !ok {
		dest = &domain.CreditAccount{
			ID:        uuid.New(),
			OwnerType: req.ToOwnerType,
			OwnerID:   req.ToOwnerID,
			Status:    "active",
		}
		s.accounts[dest.ID] = dest
		s.byOwner[ownerKey(req.ToOwnerType, req.ToOwnerID)] = dest
	}

	transferID := uuid.New()
	now := time.Now().UTC()
	outTx := &domain.CreditTransaction{
		ID:                   uuid.New(),
		AccountID:            source.ID,
		Type:                 domain.TransactionAllocationOut,
		Amount:               -req.Amount,
		BalanceBefore:        source.TotalRemaining,
		BalanceAfter:         source.TotalRemaining - req.Amount,
		RelatedTransactionID: &transferID,
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
		CreatedBy:            req.RequestedBy,
		CreatedAt:            now,
	}

	source.TotalAllocated += req.Amount
	source.TotalRemaining -= req.Amount
	dest.TotalPurchased += req.Amount
	dest.TotalRemaining += req.Amount
	s.ledger = append(s.ledger, outTx, inTx)

	return &domain.AllocationResult{
		OutTransaction: outTx,
		InTransaction:  inTx,
		FromBalance:    outTx.BalanceAfter,
		ToBalance:      inTx.BalanceAfter,
	}, nil
}

func newTestService(repo store.Repository) *Service {
	return NewService(repo, nil, &rabbitmq.EventProducerFallback{}, observability.NewMetrics(), nil, Config{})
}

func TestAllocateHierarchyValidation(t *testing.T) {
	tests := []struct {
		name      string
		fromType  domain.OwnerType
		toType    domain.OwnerType
		wantError bool
	}{
		{name: "platform to agency", fromType: domain.OwnerTypePlatform, toType: domain.OwnerTypeAgency},
		{name: "agency to client", fromType: domain.OwnerTypeAgency, toType: domain.OwnerTypeClient},
		{name: "client to campaign", fromType: domain.OwnerTypeClient, toType: domain.OwnerTypeCampaign},
		{name: "agency to agency", fromType: domain.OwnerTypeAgency, toType: domain.OwnerTypeAgency, wantError: true},
		{name: "platform to client skips a level", fromType: domain.OwnerTypePlatform, toType: domain.OwnerTypeClient, wantError: true},
		{name: "agency to campaign skips a level", fromType: domain.OwnerTypeAgency, toType: domain.OwnerTypeCampaign, wantError: true},
		{name: "client to agency reverses direction", fromType: domain.OwnerTypeClient, toType: domain.OwnerTypeAgency, wantError: true},
		{name: "campaign cannot allocate", fromType: domain.OwnerTypeCampaign, toType: domain.OwnerTypeCampaign, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newAllocationRepoStub()
			source := repo.addAccount(tt.fromType, 10000)
			svc := newTestService(repo)

			_, err := svc.Allocate(context.Background(), source.ID, domain.AllocateCreditPayload{
				ToOwnerType: tt.toType,
				ToOwnerID:   uuid.New(),
				Amount:      100,
			}, "admin")

			if tt.wantError {
				if !errors.Is(err, ErrHierarchyViolation) {
					t.Fatalf("expected ErrHierarchyViolation, got %v", err)
				}
				if repo.allocateCalled {
					t.Fatal("hierarchy violation must be rejected before any store write")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected allocation to succeed, got %v", err)
			}
		})
	}
}

func TestAllocateRejectsNonPositiveAmounts(t *testing.T) {
	repo := newAllocationRepoStub()
	source := repo.addAccount(domain.OwnerTypeAgency, 10000)
	svc := newTestService(repo)

	for _, amount := range []int64{0, -500} {
		_, err := svc.Allocate(context.Background(), source.ID, domain.AllocateCreditPayload{
			ToOwnerType: domain.OwnerTypeClient,
			ToOwnerID:   uuid.New(),
			Amount:      amount,
		}, "admin")
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if repo.allocateCalled {
		t.Fatal("invalid amounts must be rejected before any store write")
	}
}

func TestAllocateInsufficientBalanceLeavesAccountUntouched(t *testing.T) {
	repo := newAllocationRepoStub()
	source := repo.addAccount(domain.OwnerTypeAgency, 1000)
	svc := newTestService(repo)

	_, err := svc.Allocate(context.Background(), source.ID, domain.AllocateCreditPayload{
		ToOwnerType: domain.OwnerTypeClient,
		ToOwnerID:   uuid.New(),
		Amount:      4000,
	}, "admin")

	var ic *InsufficientCreditError
	if !errors.As(err, &ic) {
		t.Fatalf("expected InsufficientCreditError, got %v", err)
	}
	if ic.Available != 1000 || ic.Required != 4000 {
		t.Fatalf("expected available=1000 required=4000, got available=%d required=%d", ic.Available, ic.Required)
	}

	account, err := repo.FindAccountByID(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("FindAccountByID returned error: %v", err)
	}
	if account.TotalRemaining != 1000 {
		t.Fatalf("expected balance unchanged at 1000, got %d", account.TotalRemaining)
	}
	if len(repo.ledger) != 0 {
		t.Fatalf("expected no ledger writes, got %d", len(repo.ledger))
	}
}

func TestAllocateWritesLinkedZeroSumTransactions(t *testing.T) {
	repo := newAllocationRepoStub()
	agency := repo.addAccount(domain.OwnerTypeAgency, 2000)
	svc := newTestService(repo)

	clientOwnerID := uuid.New()
	result, err := svc.Allocate(context.Background(), agency.ID, domain.AllocateCreditPayload{
		ToOwnerType: domain.OwnerTypeClient,
		ToOwnerID:   clientOwnerID,
		Amount:      500,
	}, "admin")
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	if result.FromBalance != 1500 {
		t.Fatalf("expected agency balance 1500, got %d", result.FromBalance)
	}
	if result.ToBalance != 500 {
		t.Fatalf("expected client balance 500, got %d", result.ToBalance)
	}

	out, in := result.OutTransaction, result.InTransaction
	if out.RelatedTransactionID == nil || in.RelatedTransactionID == nil {
		t.Fatal("both transactions must carry a related transaction id")
	}
	if *out.RelatedTransactionID != *in.RelatedTransactionID {
		t.Fatalf("expected matching related transaction ids, got %s and %s", out.RelatedTransactionID, in.RelatedTransactionID)
	}
	if out.Amount+in.Amount != 0 {
		t.Fatalf("expected amounts to sum to zero, got %d and %d", out.Amount, in.Amount)
	}
	if out.Amount >= 0 || in.Amount <= 0 {
		t.Fatalf("expected opposite signs, got out=%d in=%d", out.Amount, in.Amount)
	}
}
