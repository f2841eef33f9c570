package app

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rewardloop/credit-service/internal/domain"
	"github.com/rewardloop/credit-service/internal/store"
)

type importRepoStub struct {
	store.Repository

	mu       sync.Mutex
	pool     domain.InventoryPool
	inserted map[string]domain.InventoryItem
	existing map[string]bool
}

func newImportRepoStub(existingCodes ...string) *importRepoStub {
	s := &importRepoStub{
		pool: domain.InventoryPool{
			ID:            uuid.New(),
			ClientOwnerID: uuid.New(),
			BrandID:       uuid.New(),
			Denomination:  25,
			Status:        "active",
		},
		inserted: make(map[string]domain.InventoryItem),
		existing: make(map[string]bool),
	}
	for _, code := range existingCodes {
		s.existing[code] = true
	}
	return s
}

func (s *importRepoStub) FindPoolByID(ctx context.Context, poolID uuid.UUID) (*domain.InventoryPool, error) {
	if poolID != s.pool.ID {
		return nil, store.ErrPoolNotFound
	}
	copied := s.pool
	return &copied, nil
}

// InsertInventoryItems mirrors the ON CONFLICT DO NOTHING behavior of the
// real store: rows whose code already exists in the pool are silently dropped
// and only the count of new rows is reported.
func (s *importRepoStub) InsertInventoryItems(ctx context.Context, items []domain.InventoryItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, item := range items {
		if s.existing[item.Code] {
			continue
		}
		if _, ok := s.inserted[item.Code]; ok {
			continue
		}
		s.inserted[item.Code] = item
		inserted++
	}
	return inserted, nil
}

func TestImportInventory(t *testing.T) {
	repo := newImportRepoStub("DUPED-IN-STORE")
	svc := newTestService(repo)

	csvBody := strings.Join([]string{
		"code,secondary_code",
		"abc-123,pin9",
		"  def-456  ",
		"GHI-789,",
		"ab",            // too short
		"-LEADING-DASH", // bad first character
		"abc-123",       // duplicate within file
		"duped-in-store",
		"",
	}, "\n")

	result, err := svc.ImportInventory(context.Background(), repo.pool.ID, strings.NewReader(csvBody))
	if err != nil {
		t.Fatalf("ImportInventory returned error: %v", err)
	}

	if result.Imported != 3 {
		t.Fatalf("expected 3 imported, got %d", result.Imported)
	}
	// One in-file duplicate plus one already present in the pool.
	if result.Skipped != 2 {
		t.Fatalf("expected 2 skipped, got %d", result.Skipped)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d: %+v", len(result.Failures), result.Failures)
	}
	// Lines are physical file positions, header included.
	if result.Failures[0].Line != 5 || result.Failures[1].Line != 6 {
		t.Fatalf("failures must carry physical file line numbers: %+v", result.Failures)
	}

	item, ok := repo.inserted["ABC-123"]
	if !ok {
		t.Fatal("expected ABC-123 to be inserted with normalized code")
	}
	if item.SecondaryCode == nil || *item.SecondaryCode != "PIN9" {
		t.Fatalf("expected normalized secondary code PIN9, got %v", item.SecondaryCode)
	}
	if item.Denomination != 25 {
		t.Fatalf("items must inherit the pool denomination, got %d", item.Denomination)
	}
	if item.Status != domain.ItemStatusAvailable || item.Source != domain.ItemSourceImport {
		t.Fatalf("imported items must be available/import, got %s/%s", item.Status, item.Source)
	}

	if _, ok := repo.inserted["DEF-456"]; !ok {
		t.Fatal("expected whitespace-trimmed DEF-456 to be inserted")
	}
}

func TestImportInventoryUnknownPool(t *testing.T) {
	repo := newImportRepoStub()
	svc := newTestService(repo)

	if _, err := svc.ImportInventory(context.Background(), uuid.New(), strings.NewReader("abc-123\n")); err != store.ErrPoolNotFound {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}
}

func TestImportInventoryLargeFileBatches(t *testing.T) {
	repo := newImportRepoStub()
	svc := newTestService(repo)

	var sb strings.Builder
	const rows = 1203
	for i := 0; i < rows; i++ {
		sb.WriteString(NormalizeRedemptionCode(uuid.NewString()))
		sb.WriteByte('\n')
	}

	result, err := svc.ImportInventory(context.Background(), repo.pool.ID, strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("ImportInventory returned error: %v", err)
	}
	if result.Imported != rows {
		t.Fatalf("expected %d imported, got %d", rows, result.Imported)
	}
	if result.Skipped != 0 || len(result.Failures) != 0 {
		t.Fatalf("expected clean import, got skipped=%d failures=%d", result.Skipped, len(result.Failures))
	}
}
