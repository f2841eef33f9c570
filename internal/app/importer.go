/**
 * @description
 * This file implements CSV ingestion of pre-purchased gift-card inventory
 * into a pool. Rows are parsed and validated sequentially, then inserted in
 * concurrent batches. Card codes get the same normalization and format rules
 * as redemption codes; bad rows are reported per line, never aborting the
 * whole file.
 */

package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rewardloop/credit-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	importBatchSize   = 500
	importConcurrency = 4
	maxImportRows     = 100000
)

// ImportInventory reads a CSV of `code[,secondary_code]` rows into the given
// pool. All items take the pool's denomination. Duplicate codes already in
// the pool count as skipped; malformed rows are collected in the result.
func (s *Service) ImportInventory(ctx context.Context, poolID uuid.UUID, reader io.Reader) (*domain.ImportResult, error) {
	pool, err := s.repo.FindPoolByID(ctx, poolID)
	if err != nil {
		return nil, err
	}

	result := &domain.ImportResult{}
	var items []domain.InventoryItem

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Failures = append(result.Failures, domain.ImportRowFailure{Line: line, Reason: fmt.Sprintf("unparseable row: %v", err)})
			continue
		}
		if line > maxImportRows {
			return nil, fmt.Errorf("import exceeds maximum of %d rows", maxImportRows)
		}
		if len(record) == 0 {
			continue
		}

		code := NormalizeRedemptionCode(record[0])
		if line == 1 && strings.EqualFold(code, "CODE") {
			// Header row stays counted so failures carry physical
			// file line numbers.
			continue
		}
		if code == "" {
			continue
		}
		if err := ValidateRedemptionCodeFormat(code); err != nil {
			result.Failures = append(result.Failures, domain.ImportRowFailure{Line: line, Code: code, Reason: err.Error()})
			continue
		}

		var secondary *string
		if len(record) > 1 {
			if v := NormalizeRedemptionCode(record[1]); v != "" {
				secondary = &v
			}
		}

		items = append(items, domain.InventoryItem{
			ID:            uuid.New(),
			PoolID:        pool.ID,
			Code:          code,
			SecondaryCode: secondary,
			Denomination:  pool.Denomination,
			Status:        domain.ItemStatusAvailable,
			Source:        domain.ItemSourceImport,
		})
	}

	// Duplicates within the file are skips, not failures; keep the first.
	seen := make(map[string]bool, len(items))
	deduped := items[:0]
	for _, it := range items {
		if seen[it.Code] {
			result.Skipped++
			continue
		}
		seen[it.Code] = true
		deduped = append(deduped, it)
	}
	items = deduped

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(importConcurrency)
	var mu sync.Mutex

	for start := 0; start < len(items); start += importBatchSize {
		end := start + importBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		group.Go(func() error {
			inserted, err := s.repo.InsertInventoryItems(groupCtx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			result.Imported += inserted
			result.Skipped += len(batch) - inserted
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("inventory import failed: %w", err)
	}

	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].Line < result.Failures[j].Line })
	s.metrics.RecordImportedItems(result.Imported)
	log.Printf("level=info component=inventory_import msg=\"import finished\" pool=%s imported=%d skipped=%d failed=%d",
		pool.ID, result.Imported, result.Skipped, len(result.Failures))
	return result, nil
}
