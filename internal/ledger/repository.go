package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	StockLevels(ctx context.Context, orgID, warehouseID int64) ([]StockLevel, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// TxRepository exposes the transactional operations used by the service and
// the allocator. Mutations must only happen through it; the transaction is
// committed or rolled back by WithTx.
type TxRepository interface {
	GetProduct(ctx context.Context, orgID, productID int64) (ProductInfo, error)
	CheckWarehouse(ctx context.Context, orgID, warehouseID int64) error
	ListAvailableBatches(ctx context.Context, orgID, productID, warehouseID int64) ([]Batch, error)
	DecrementBatch(ctx context.Context, batchID, qty int64) error
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	SumOnHand(ctx context.Context, orgID, productID, warehouseID int64) (int64, error)
	NextDocumentNumber(ctx context.Context, orgID int64, kind string) (int64, error)
	InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error)
	InsertTransfer(ctx context.Context, transfer Transfer) (Transfer, error)
	InsertOpname(ctx context.Context, opname Opname) (Opname, error)
	UpdateOpnameItem(ctx context.Context, itemID, systemQty, difference int64) error
	InsertMovement(ctx context.Context, m Movement) error
	InsertOutboxEvent(ctx context.Context, evt OutboxEvent) error
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	OrganizationID int64
	ProductID      int64
	WarehouseID    int64
	Limit          int
}

const (
	defaultMovementPageSize = 200
	maxMovementPageSize     = 500
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// StockLevels aggregates batch quantities per product for a warehouse.
func (r *Repository) StockLevels(ctx context.Context, orgID, warehouseID int64) ([]StockLevel, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT b.product_id, p.sku, b.warehouse_id,
COALESCE(SUM(b.quantity_on_hand),0), COALESCE(SUM(b.available_qty),0), COUNT(*),
COALESCE(SUM(b.quantity_on_hand),0) < p.low_stock_threshold
FROM inventory_batches b
JOIN products p ON p.id = b.product_id AND p.organization_id = b.organization_id
WHERE b.organization_id=$1 AND b.warehouse_id=$2 AND p.deleted_at IS NULL
GROUP BY b.product_id, p.sku, b.warehouse_id, p.low_stock_threshold
ORDER BY p.sku ASC`, orgID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		var lvl StockLevel
		if err := rows.Scan(&lvl.ProductID, &lvl.SKU, &lvl.WarehouseID, &lvl.OnHand, &lvl.Available, &lvl.BatchCount, &lvl.LowStock); err != nil {
			return nil, err
		}
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}

// ListMovements returns movement history, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 || limit > maxMovementPageSize {
		limit = defaultMovementPageSize
	}
	rows, err := r.pool.Query(ctx, `SELECT id, organization_id, product_id, warehouse_id, batch_id, movement_type, quantity, reference_type, reference_id, notes, COALESCE(created_by, 0), created_at
FROM inventory_movements
WHERE organization_id=$1
  AND ($2::bigint = 0 OR product_id=$2)
  AND ($3::bigint = 0 OR warehouse_id=$3)
ORDER BY created_at DESC, id DESC
LIMIT $4`, filter.OrganizationID, filter.ProductID, filter.WarehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.ProductID, &m.WarehouseID, &m.BatchID, &m.Type, &m.Quantity, &m.ReferenceType, &m.ReferenceID, &m.Notes, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetProduct(ctx context.Context, orgID, productID int64) (ProductInfo, error) {
	var p ProductInfo
	err := r.tx.QueryRow(ctx, `SELECT id, sku, unit_cost, low_stock_threshold FROM products
WHERE id=$1 AND organization_id=$2 AND deleted_at IS NULL`, productID, orgID).
		Scan(&p.ID, &p.SKU, &p.UnitCost, &p.LowStockThreshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductInfo{}, ErrNotFound
		}
		return ProductInfo{}, err
	}
	return p, nil
}

func (r *txRepository) CheckWarehouse(ctx context.Context, orgID, warehouseID int64) error {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM warehouses WHERE id=$1 AND organization_id=$2`, warehouseID, orgID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ListAvailableBatches locks candidate batches in FIFO order for the current
// transaction so concurrent deductions serialize.
func (r *txRepository) ListAvailableBatches(ctx context.Context, orgID, productID, warehouseID int64) ([]Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, organization_id, product_id, warehouse_id, unit_cost, quantity_on_hand, available_qty, batch_number, received_date, COALESCE(supplier_id,0), created_at
FROM inventory_batches
WHERE organization_id=$1 AND product_id=$2 AND warehouse_id=$3 AND available_qty > 0
ORDER BY received_date ASC, id ASC
FOR UPDATE`, orgID, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batches := []Batch{}
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.OrganizationID, &b.ProductID, &b.WarehouseID, &b.UnitCost, &b.QuantityOnHand, &b.AvailableQty, &b.BatchNumber, &b.ReceivedDate, &b.SupplierID, &b.CreatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// DecrementBatch performs a single conditional UPDATE so a batch can never be
// drawn below zero, even if a competing transaction slipped past the row lock.
func (r *txRepository) DecrementBatch(ctx context.Context, batchID, qty int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_batches
SET quantity_on_hand = quantity_on_hand - $2, available_qty = available_qty - $2
WHERE id=$1 AND available_qty >= $2`, batchID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockConflict
	}
	return nil
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_batches (organization_id, product_id, warehouse_id, unit_cost, quantity_on_hand, available_qty, batch_number, received_date, supplier_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		batch.OrganizationID, batch.ProductID, batch.WarehouseID, batch.UnitCost, batch.QuantityOnHand, batch.AvailableQty, batch.BatchNumber, batch.ReceivedDate, nullInt(batch.SupplierID)).Scan(&id)
	return id, err
}

func (r *txRepository) SumOnHand(ctx context.Context, orgID, productID, warehouseID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_on_hand),0) FROM inventory_batches
WHERE organization_id=$1 AND product_id=$2 AND warehouse_id=$3`, orgID, productID, warehouseID).Scan(&total)
	return total, err
}

// NextDocumentNumber increments a per-organization counter. The row lock on
// the counter serializes concurrent document creation, so numbers are unique
// without depending on wall-clock resolution.
func (r *txRepository) NextDocumentNumber(ctx context.Context, orgID int64, kind string) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO document_counters (organization_id, kind, value)
VALUES ($1,$2,1)
ON CONFLICT (organization_id, kind) DO UPDATE SET value = document_counters.value + 1
RETURNING value`, orgID, kind).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_adjustments (organization_id, number, product_id, warehouse_id, adjustment_type, quantity, reason, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		adj.OrganizationID, adj.Number, adj.ProductID, adj.WarehouseID, string(adj.Type), adj.Quantity, string(adj.Reason), adj.Notes, nullInt(adj.CreatedBy), adj.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertTransfer(ctx context.Context, transfer Transfer) (Transfer, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transfers (organization_id, number, from_warehouse_id, to_warehouse_id, status, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		transfer.OrganizationID, transfer.Number, transfer.FromWarehouseID, transfer.ToWarehouseID, transfer.Status, transfer.Notes, nullInt(transfer.CreatedBy), transfer.CreatedAt).Scan(&transfer.ID)
	if err != nil {
		return Transfer{}, err
	}
	for i := range transfer.Items {
		item := &transfer.Items[i]
		item.TransferID = transfer.ID
		err := r.tx.QueryRow(ctx, `INSERT INTO stock_transfer_items (transfer_id, product_id, quantity)
VALUES ($1,$2,$3) RETURNING id`, item.TransferID, item.ProductID, item.Quantity).Scan(&item.ID)
		if err != nil {
			return Transfer{}, err
		}
	}
	return transfer, nil
}

func (r *txRepository) InsertOpname(ctx context.Context, opname Opname) (Opname, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_opnames (organization_id, number, warehouse_id, status, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		opname.OrganizationID, opname.Number, opname.WarehouseID, opname.Status, opname.Notes, nullInt(opname.CreatedBy), opname.CreatedAt).Scan(&opname.ID)
	if err != nil {
		return Opname{}, err
	}
	for i := range opname.Items {
		item := &opname.Items[i]
		item.OpnameID = opname.ID
		err := r.tx.QueryRow(ctx, `INSERT INTO stock_opname_items (opname_id, product_id, actual_qty, system_qty, difference)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, item.OpnameID, item.ProductID, item.ActualQty, item.SystemQty, item.Difference).Scan(&item.ID)
		if err != nil {
			return Opname{}, err
		}
	}
	return opname, nil
}

func (r *txRepository) UpdateOpnameItem(ctx context.Context, itemID, systemQty, difference int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_opname_items SET system_qty=$2, difference=$3 WHERE id=$1`, itemID, systemQty, difference)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_movements (organization_id, product_id, warehouse_id, batch_id, movement_type, quantity, reference_type, reference_id, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		m.OrganizationID, m.ProductID, m.WarehouseID, m.BatchID, string(m.Type), m.Quantity, m.ReferenceType, m.ReferenceID, m.Notes, nullInt(m.CreatedBy), m.CreatedAt)
	return err
}

func (r *txRepository) InsertOutboxEvent(ctx context.Context, evt OutboxEvent) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO outbox_events (id, organization_id, topic, payload, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		evt.ID, evt.OrganizationID, evt.Topic, evt.Payload, evt.Status, evt.CreatedAt)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
