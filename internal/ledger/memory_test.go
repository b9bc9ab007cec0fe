package ledger

import (
	"context"
	"fmt"
	"strings"
)

// memoryRepo implements RepositoryPort with copy-on-error rollback so tests
// can observe the all-or-nothing contract without a database.
type memoryRepo struct {
	orgID      int64
	products   map[int64]ProductInfo
	warehouses map[int64]bool

	batches     []Batch
	movements   []Movement
	adjustments []Adjustment
	transfers   []Transfer
	opnames     []Opname
	outbox      []OutboxEvent
	counters    map[string]int64
	nextID      int64

	lastMovementLimit int
}

func newMemoryRepo(orgID int64) *memoryRepo {
	return &memoryRepo{
		orgID:      orgID,
		products:   make(map[int64]ProductInfo),
		warehouses: make(map[int64]bool),
		counters:   make(map[string]int64),
	}
}

func (r *memoryRepo) addProduct(p ProductInfo) {
	r.products[p.ID] = p
}

func (r *memoryRepo) addWarehouse(id int64) {
	r.warehouses[id] = true
}

func (r *memoryRepo) addBatch(b Batch) int64 {
	r.nextID++
	b.ID = r.nextID
	b.OrganizationID = r.orgID
	r.batches = append(r.batches, b)
	return b.ID
}

func (r *memoryRepo) batchByID(id int64) *Batch {
	for i := range r.batches {
		if r.batches[i].ID == id {
			return &r.batches[i]
		}
	}
	return nil
}

type memorySnapshot struct {
	batches     []Batch
	movements   []Movement
	adjustments []Adjustment
	transfers   []Transfer
	opnames     []Opname
	outbox      []OutboxEvent
	counters    map[string]int64
	nextID      int64
}

func (r *memoryRepo) snapshot() memorySnapshot {
	snap := memorySnapshot{
		batches:     append([]Batch(nil), r.batches...),
		movements:   append([]Movement(nil), r.movements...),
		adjustments: append([]Adjustment(nil), r.adjustments...),
		transfers:   append([]Transfer(nil), r.transfers...),
		opnames:     append([]Opname(nil), r.opnames...),
		outbox:      append([]OutboxEvent(nil), r.outbox...),
		counters:    make(map[string]int64, len(r.counters)),
		nextID:      r.nextID,
	}
	for k, v := range r.counters {
		snap.counters[k] = v
	}
	return snap
}

func (r *memoryRepo) restore(snap memorySnapshot) {
	r.batches = snap.batches
	r.movements = snap.movements
	r.adjustments = snap.adjustments
	r.transfers = snap.transfers
	r.opnames = snap.opnames
	r.outbox = snap.outbox
	r.counters = snap.counters
	r.nextID = snap.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) StockLevels(ctx context.Context, orgID, warehouseID int64) ([]StockLevel, error) {
	byProduct := map[int64]*StockLevel{}
	order := []int64{}
	for _, b := range r.batches {
		if b.OrganizationID != orgID || b.WarehouseID != warehouseID {
			continue
		}
		lvl, ok := byProduct[b.ProductID]
		if !ok {
			lvl = &StockLevel{ProductID: b.ProductID, WarehouseID: warehouseID, SKU: r.products[b.ProductID].SKU}
			byProduct[b.ProductID] = lvl
			order = append(order, b.ProductID)
		}
		lvl.OnHand += b.QuantityOnHand
		lvl.Available += b.AvailableQty
		lvl.BatchCount++
	}
	levels := make([]StockLevel, 0, len(order))
	for _, pid := range order {
		lvl := *byProduct[pid]
		lvl.LowStock = lvl.OnHand < r.products[pid].LowStockThreshold
		levels = append(levels, lvl)
	}
	return levels, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxMovementPageSize {
		limit = defaultMovementPageSize
	}
	r.lastMovementLimit = limit
	out := []Movement{}
	for _, m := range r.movements {
		if m.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && m.WarehouseID != filter.WarehouseID {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetProduct(ctx context.Context, orgID, productID int64) (ProductInfo, error) {
	if orgID != tx.repo.orgID {
		return ProductInfo{}, ErrNotFound
	}
	p, ok := tx.repo.products[productID]
	if !ok {
		return ProductInfo{}, ErrNotFound
	}
	return p, nil
}

func (tx *memoryTx) CheckWarehouse(ctx context.Context, orgID, warehouseID int64) error {
	if orgID != tx.repo.orgID || !tx.repo.warehouses[warehouseID] {
		return ErrNotFound
	}
	return nil
}

func (tx *memoryTx) ListAvailableBatches(ctx context.Context, orgID, productID, warehouseID int64) ([]Batch, error) {
	out := []Batch{}
	for _, b := range tx.repo.batches {
		if b.OrganizationID == orgID && b.ProductID == productID && b.WarehouseID == warehouseID && b.AvailableQty > 0 {
			out = append(out, b)
		}
	}
	// received date ascending, insertion order as tie-break
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ReceivedDate.Before(out[j-1].ReceivedDate); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (tx *memoryTx) DecrementBatch(ctx context.Context, batchID, qty int64) error {
	b := tx.repo.batchByID(batchID)
	if b == nil || b.AvailableQty < qty {
		return ErrStockConflict
	}
	b.QuantityOnHand -= qty
	b.AvailableQty -= qty
	return nil
}

func (tx *memoryTx) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	tx.repo.nextID++
	batch.ID = tx.repo.nextID
	tx.repo.batches = append(tx.repo.batches, batch)
	return batch.ID, nil
}

func (tx *memoryTx) SumOnHand(ctx context.Context, orgID, productID, warehouseID int64) (int64, error) {
	var total int64
	for _, b := range tx.repo.batches {
		if b.OrganizationID == orgID && b.ProductID == productID && b.WarehouseID == warehouseID {
			total += b.QuantityOnHand
		}
	}
	return total, nil
}

func (tx *memoryTx) NextDocumentNumber(ctx context.Context, orgID int64, kind string) (int64, error) {
	key := fmt.Sprintf("%d:%s", orgID, kind)
	tx.repo.counters[key]++
	return tx.repo.counters[key], nil
}

func (tx *memoryTx) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	tx.repo.nextID++
	adj.ID = tx.repo.nextID
	tx.repo.adjustments = append(tx.repo.adjustments, adj)
	return adj.ID, nil
}

func (tx *memoryTx) InsertTransfer(ctx context.Context, transfer Transfer) (Transfer, error) {
	tx.repo.nextID++
	transfer.ID = tx.repo.nextID
	for i := range transfer.Items {
		tx.repo.nextID++
		transfer.Items[i].ID = tx.repo.nextID
		transfer.Items[i].TransferID = transfer.ID
	}
	tx.repo.transfers = append(tx.repo.transfers, transfer)
	return transfer, nil
}

func (tx *memoryTx) InsertOpname(ctx context.Context, opname Opname) (Opname, error) {
	tx.repo.nextID++
	opname.ID = tx.repo.nextID
	for i := range opname.Items {
		tx.repo.nextID++
		opname.Items[i].ID = tx.repo.nextID
		opname.Items[i].OpnameID = opname.ID
	}
	tx.repo.opnames = append(tx.repo.opnames, opname)
	return opname, nil
}

func (tx *memoryTx) UpdateOpnameItem(ctx context.Context, itemID, systemQty, difference int64) error {
	for i := range tx.repo.opnames {
		for j := range tx.repo.opnames[i].Items {
			item := &tx.repo.opnames[i].Items[j]
			if item.ID == itemID {
				item.SystemQty = systemQty
				item.Difference = difference
				return nil
			}
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) error {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return nil
}

func (tx *memoryTx) InsertOutboxEvent(ctx context.Context, evt OutboxEvent) error {
	tx.repo.outbox = append(tx.repo.outbox, evt)
	return nil
}

// fakeInvalidator records invalidation calls and can be forced to fail.
type fakeInvalidator struct {
	keys     []string
	patterns []string
	fail     bool
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, key string) error {
	if f.fail {
		return fmt.Errorf("cache down")
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeInvalidator) InvalidatePattern(ctx context.Context, pattern string) error {
	if f.fail {
		return fmt.Errorf("cache down")
	}
	f.patterns = append(f.patterns, pattern)
	return nil
}

func (f *fakeInvalidator) sawKeyPrefix(prefix string) bool {
	for _, k := range f.keys {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}
