package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Allocation is one batch portion consumed by a FIFO deduction. It carries
// the source batch's cost and provenance so they survive transfers.
type Allocation struct {
	BatchID      int64
	BatchNumber  string
	UnitCost     decimal.Decimal
	SupplierID   int64
	ReceivedDate time.Time
	Qty          int64
}

// allocateFIFO drains batches oldest-first until qty is covered, decrementing
// each batch inside the caller's transaction. Candidate batches are locked
// and ordered by received date, then insertion order. On shortfall the whole
// transaction must be rolled back by the caller.
func allocateFIFO(ctx context.Context, tx TxRepository, orgID, productID, warehouseID, qty int64) ([]Allocation, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: allocation quantity must be positive", ErrValidation)
	}
	batches, err := tx.ListAvailableBatches(ctx, orgID, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	remaining := qty
	allocations := make([]Allocation, 0, len(batches))
	for _, batch := range batches {
		if remaining == 0 {
			break
		}
		take := batch.AvailableQty
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}
		if err := tx.DecrementBatch(ctx, batch.ID, take); err != nil {
			return nil, err
		}
		allocations = append(allocations, Allocation{
			BatchID:      batch.ID,
			BatchNumber:  batch.BatchNumber,
			UnitCost:     batch.UnitCost,
			SupplierID:   batch.SupplierID,
			ReceivedDate: batch.ReceivedDate,
			Qty:          take,
		})
		remaining -= take
	}
	if remaining > 0 {
		return nil, &InsufficientStockError{
			ProductID:   productID,
			WarehouseID: warehouseID,
			Requested:   qty,
			Shortfall:   remaining,
		}
	}
	return allocations, nil
}
