package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stocklane/stocklane/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates adjustment, transfer and opname operations. Every
// operation either fully commits or fully rolls back; cache invalidation and
// audit logging happen after commit and never affect the caller's result.
type Service struct {
	repo   RepositoryPort
	cache  Invalidator
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache Invalidator, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// CreateStockAdjustment records a manual correction. Increases create a new
// batch at the product's current cost; decreases consume batches FIFO.
func (s *Service) CreateStockAdjustment(ctx context.Context, input AdjustmentInput) (Adjustment, error) {
	if input.OrganizationID == 0 || input.ProductID == 0 || input.WarehouseID == 0 {
		return Adjustment{}, fmt.Errorf("%w: organization, product and warehouse required", ErrValidation)
	}
	if input.Quantity <= 0 {
		return Adjustment{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if input.Type != AdjustmentIncrease && input.Type != AdjustmentDecrease {
		return Adjustment{}, fmt.Errorf("%w: unknown adjustment type %q", ErrValidation, input.Type)
	}
	if !ValidReason(input.Reason) {
		return Adjustment{}, fmt.Errorf("%w: unknown adjustment reason %q", ErrValidation, input.Reason)
	}

	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, input.OrganizationID, input.ProductID)
		if err != nil {
			return err
		}
		if err := tx.CheckWarehouse(ctx, input.OrganizationID, input.WarehouseID); err != nil {
			return err
		}
		now := time.Now().UTC()
		seq, err := tx.NextDocumentNumber(ctx, input.OrganizationID, "ADJ")
		if err != nil {
			return err
		}
		adj = Adjustment{
			OrganizationID: input.OrganizationID,
			Number:         fmt.Sprintf("ADJ-%06d", seq),
			ProductID:      input.ProductID,
			WarehouseID:    input.WarehouseID,
			Type:           input.Type,
			Quantity:       input.Quantity,
			Reason:         input.Reason,
			Notes:          input.Notes,
			CreatedBy:      input.ActorID,
			CreatedAt:      now,
		}
		adj.ID, err = tx.InsertAdjustment(ctx, adj)
		if err != nil {
			return err
		}

		if input.Type == AdjustmentIncrease {
			if err := s.increaseStock(ctx, tx, increaseParams{
				OrgID:       input.OrganizationID,
				Product:     product,
				WarehouseID: input.WarehouseID,
				Qty:         input.Quantity,
				BatchNumber: adj.Number,
				ReceivedAt:  now,
				RefType:     RefAdjustment,
				RefID:       adj.ID,
				Notes:       input.Notes,
				ActorID:     input.ActorID,
			}); err != nil {
				return err
			}
		} else {
			if err := s.decreaseStock(ctx, tx, decreaseParams{
				OrgID:       input.OrganizationID,
				ProductID:   input.ProductID,
				WarehouseID: input.WarehouseID,
				Qty:         input.Quantity,
				RefType:     RefAdjustment,
				RefID:       adj.ID,
				Notes:       input.Notes,
				ActorID:     input.ActorID,
			}); err != nil {
				return err
			}
		}

		return writeOutbox(ctx, tx, MovementCreatedPayload{
			OrganizationID: input.OrganizationID,
			ProductID:      input.ProductID,
			WarehouseID:    input.WarehouseID,
			MovementType:   MovementAdjust,
			ReferenceType:  RefAdjustment,
			ReferenceID:    adj.ID,
		})
	})
	if err != nil {
		return Adjustment{}, err
	}

	s.invalidateCaches(ctx, input.OrganizationID, input.ProductID)
	s.recordAudit(ctx, input.OrganizationID, input.ActorID, "ledger:adjustment", adj.Number, map[string]any{
		"product_id":   input.ProductID,
		"warehouse_id": input.WarehouseID,
		"type":         string(input.Type),
		"quantity":     input.Quantity,
		"reason":       string(input.Reason),
	})
	return adj, nil
}

// CreateTransfer moves quantities between warehouses. Each consumed batch
// portion becomes a new batch at the destination carrying the source batch's
// unit cost, supplier and received date, so valuation and FIFO order survive
// the hop.
func (s *Service) CreateTransfer(ctx context.Context, input TransferInput) (Transfer, error) {
	if input.OrganizationID == 0 || input.FromWarehouseID == 0 || input.ToWarehouseID == 0 {
		return Transfer{}, fmt.Errorf("%w: organization and both warehouses required", ErrValidation)
	}
	if input.FromWarehouseID == input.ToWarehouseID {
		return Transfer{}, fmt.Errorf("%w: source and destination warehouse must differ", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Transfer{}, fmt.Errorf("%w: transfer requires at least one item", ErrValidation)
	}
	for _, item := range input.Items {
		if item.ProductID == 0 || item.Quantity <= 0 {
			return Transfer{}, fmt.Errorf("%w: transfer item requires product and positive quantity", ErrValidation)
		}
	}

	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.CheckWarehouse(ctx, input.OrganizationID, input.FromWarehouseID); err != nil {
			return err
		}
		if err := tx.CheckWarehouse(ctx, input.OrganizationID, input.ToWarehouseID); err != nil {
			return err
		}
		now := time.Now().UTC()
		seq, err := tx.NextDocumentNumber(ctx, input.OrganizationID, "TRF")
		if err != nil {
			return err
		}
		transfer = Transfer{
			OrganizationID:  input.OrganizationID,
			Number:          fmt.Sprintf("TRF-%06d", seq),
			FromWarehouseID: input.FromWarehouseID,
			ToWarehouseID:   input.ToWarehouseID,
			Status:          StatusCompleted,
			Notes:           input.Notes,
			CreatedBy:       input.ActorID,
			CreatedAt:       now,
		}
		for _, item := range input.Items {
			transfer.Items = append(transfer.Items, TransferItem{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		transfer, err = tx.InsertTransfer(ctx, transfer)
		if err != nil {
			return err
		}

		for _, item := range transfer.Items {
			if _, err := tx.GetProduct(ctx, input.OrganizationID, item.ProductID); err != nil {
				return err
			}
			allocations, err := allocateFIFO(ctx, tx, input.OrganizationID, item.ProductID, input.FromWarehouseID, item.Quantity)
			if err != nil {
				return err
			}
			for _, alloc := range allocations {
				destID, err := tx.InsertBatch(ctx, Batch{
					OrganizationID: input.OrganizationID,
					ProductID:      item.ProductID,
					WarehouseID:    input.ToWarehouseID,
					UnitCost:       alloc.UnitCost,
					QuantityOnHand: alloc.Qty,
					AvailableQty:   alloc.Qty,
					BatchNumber:    alloc.BatchNumber,
					ReceivedDate:   alloc.ReceivedDate,
					SupplierID:     alloc.SupplierID,
				})
				if err != nil {
					return err
				}
				srcBatchID := alloc.BatchID
				if err := recordMovement(ctx, tx, Movement{
					OrganizationID: input.OrganizationID,
					ProductID:      item.ProductID,
					WarehouseID:    input.FromWarehouseID,
					BatchID:        &srcBatchID,
					Type:           MovementTransferOut,
					Quantity:       -alloc.Qty,
					ReferenceType:  RefTransfer,
					ReferenceID:    transfer.ID,
					Notes:          input.Notes,
					CreatedBy:      input.ActorID,
					CreatedAt:      now,
				}); err != nil {
					return err
				}
				dstBatchID := destID
				if err := recordMovement(ctx, tx, Movement{
					OrganizationID: input.OrganizationID,
					ProductID:      item.ProductID,
					WarehouseID:    input.ToWarehouseID,
					BatchID:        &dstBatchID,
					Type:           MovementTransferIn,
					Quantity:       alloc.Qty,
					ReferenceType:  RefTransfer,
					ReferenceID:    transfer.ID,
					Notes:          input.Notes,
					CreatedBy:      input.ActorID,
					CreatedAt:      now,
				}); err != nil {
					return err
				}
			}
			// One event per warehouse side per item.
			if err := writeOutbox(ctx, tx, MovementCreatedPayload{
				OrganizationID: input.OrganizationID,
				ProductID:      item.ProductID,
				WarehouseID:    input.FromWarehouseID,
				MovementType:   MovementTransferOut,
				ReferenceType:  RefTransfer,
				ReferenceID:    transfer.ID,
			}); err != nil {
				return err
			}
			if err := writeOutbox(ctx, tx, MovementCreatedPayload{
				OrganizationID: input.OrganizationID,
				ProductID:      item.ProductID,
				WarehouseID:    input.ToWarehouseID,
				MovementType:   MovementTransferIn,
				ReferenceType:  RefTransfer,
				ReferenceID:    transfer.ID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}

	productIDs := make([]int64, 0, len(transfer.Items))
	for _, item := range transfer.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	s.invalidateCaches(ctx, input.OrganizationID, productIDs...)
	s.recordAudit(ctx, input.OrganizationID, input.ActorID, "ledger:transfer", transfer.Number, map[string]any{
		"from_warehouse_id": input.FromWarehouseID,
		"to_warehouse_id":   input.ToWarehouseID,
		"items":             len(transfer.Items),
	})
	return transfer, nil
}

// CreateStockOpname reconciles counted quantities against system quantities.
// Differences reuse the adjustment paths: positive counts create a batch
// tagged with the opname number, negative counts consume batches FIFO. Batch
// quantities therefore never go negative.
func (s *Service) CreateStockOpname(ctx context.Context, input OpnameInput) (Opname, error) {
	if input.OrganizationID == 0 || input.WarehouseID == 0 {
		return Opname{}, fmt.Errorf("%w: organization and warehouse required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Opname{}, fmt.Errorf("%w: opname requires at least one item", ErrValidation)
	}
	for _, item := range input.Items {
		if item.ProductID == 0 || item.ActualQty < 0 {
			return Opname{}, fmt.Errorf("%w: opname item requires product and non-negative count", ErrValidation)
		}
	}

	var opname Opname
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.CheckWarehouse(ctx, input.OrganizationID, input.WarehouseID); err != nil {
			return err
		}
		now := time.Now().UTC()
		seq, err := tx.NextDocumentNumber(ctx, input.OrganizationID, "OPN")
		if err != nil {
			return err
		}
		opname = Opname{
			OrganizationID: input.OrganizationID,
			Number:         fmt.Sprintf("OPN-%06d", seq),
			WarehouseID:    input.WarehouseID,
			Status:         StatusCompleted,
			Notes:          input.Notes,
			CreatedBy:      input.ActorID,
			CreatedAt:      now,
		}
		for _, item := range input.Items {
			opname.Items = append(opname.Items, OpnameItem{ProductID: item.ProductID, ActualQty: item.ActualQty})
		}
		opname, err = tx.InsertOpname(ctx, opname)
		if err != nil {
			return err
		}

		for i := range opname.Items {
			item := &opname.Items[i]
			product, err := tx.GetProduct(ctx, input.OrganizationID, item.ProductID)
			if err != nil {
				return err
			}
			systemQty, err := tx.SumOnHand(ctx, input.OrganizationID, item.ProductID, input.WarehouseID)
			if err != nil {
				return err
			}
			item.SystemQty = systemQty
			item.Difference = item.ActualQty - systemQty
			if err := tx.UpdateOpnameItem(ctx, item.ID, item.SystemQty, item.Difference); err != nil {
				return err
			}
			if item.Difference == 0 {
				continue
			}
			if item.Difference > 0 {
				if err := s.increaseStock(ctx, tx, increaseParams{
					OrgID:       input.OrganizationID,
					Product:     product,
					WarehouseID: input.WarehouseID,
					Qty:         item.Difference,
					BatchNumber: opname.Number,
					ReceivedAt:  now,
					RefType:     RefOpname,
					RefID:       opname.ID,
					Notes:       input.Notes,
					ActorID:     input.ActorID,
				}); err != nil {
					return err
				}
			} else {
				if err := s.decreaseStock(ctx, tx, decreaseParams{
					OrgID:       input.OrganizationID,
					ProductID:   item.ProductID,
					WarehouseID: input.WarehouseID,
					Qty:         -item.Difference,
					RefType:     RefOpname,
					RefID:       opname.ID,
					Notes:       input.Notes,
					ActorID:     input.ActorID,
				}); err != nil {
					return err
				}
			}
			if err := writeOutbox(ctx, tx, MovementCreatedPayload{
				OrganizationID: input.OrganizationID,
				ProductID:      item.ProductID,
				WarehouseID:    input.WarehouseID,
				MovementType:   MovementAdjust,
				ReferenceType:  RefOpname,
				ReferenceID:    opname.ID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Opname{}, err
	}

	productIDs := make([]int64, 0, len(opname.Items))
	for _, item := range opname.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	s.invalidateCaches(ctx, input.OrganizationID, productIDs...)
	s.recordAudit(ctx, input.OrganizationID, input.ActorID, "ledger:opname", opname.Number, map[string]any{
		"warehouse_id": input.WarehouseID,
		"items":        len(opname.Items),
	})
	return opname, nil
}

// StockLevels lists aggregated on-hand quantities for a warehouse.
func (s *Service) StockLevels(ctx context.Context, orgID, warehouseID int64) ([]StockLevel, error) {
	if orgID == 0 || warehouseID == 0 {
		return nil, fmt.Errorf("%w: organization and warehouse required", ErrValidation)
	}
	return s.repo.StockLevels(ctx, orgID, warehouseID)
}

// Movements lists movement history for a product or warehouse.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.OrganizationID == 0 {
		return nil, fmt.Errorf("%w: organization required", ErrValidation)
	}
	return s.repo.ListMovements(ctx, filter)
}

type increaseParams struct {
	OrgID       int64
	Product     ProductInfo
	WarehouseID int64
	Qty         int64
	BatchNumber string
	ReceivedAt  time.Time
	RefType     string
	RefID       int64
	Notes       string
	ActorID     int64
}

func (s *Service) increaseStock(ctx context.Context, tx TxRepository, p increaseParams) error {
	batchID, err := tx.InsertBatch(ctx, Batch{
		OrganizationID: p.OrgID,
		ProductID:      p.Product.ID,
		WarehouseID:    p.WarehouseID,
		UnitCost:       p.Product.UnitCost,
		QuantityOnHand: p.Qty,
		AvailableQty:   p.Qty,
		BatchNumber:    p.BatchNumber,
		ReceivedDate:   p.ReceivedAt,
	})
	if err != nil {
		return err
	}
	return recordMovement(ctx, tx, Movement{
		OrganizationID: p.OrgID,
		ProductID:      p.Product.ID,
		WarehouseID:    p.WarehouseID,
		BatchID:        &batchID,
		Type:           MovementAdjust,
		Quantity:       p.Qty,
		ReferenceType:  p.RefType,
		ReferenceID:    p.RefID,
		Notes:          p.Notes,
		CreatedBy:      p.ActorID,
		CreatedAt:      p.ReceivedAt,
	})
}

type decreaseParams struct {
	OrgID       int64
	ProductID   int64
	WarehouseID int64
	Qty         int64
	RefType     string
	RefID       int64
	Notes       string
	ActorID     int64
}

func (s *Service) decreaseStock(ctx context.Context, tx TxRepository, p decreaseParams) error {
	allocations, err := allocateFIFO(ctx, tx, p.OrgID, p.ProductID, p.WarehouseID, p.Qty)
	if err != nil {
		return err
	}
	for _, alloc := range allocations {
		batchID := alloc.BatchID
		if err := recordMovement(ctx, tx, Movement{
			OrganizationID: p.OrgID,
			ProductID:      p.ProductID,
			WarehouseID:    p.WarehouseID,
			BatchID:        &batchID,
			Type:           MovementAdjust,
			Quantity:       -alloc.Qty,
			ReferenceType:  p.RefType,
			ReferenceID:    p.RefID,
			Notes:          p.Notes,
			CreatedBy:      p.ActorID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeOutbox(ctx context.Context, tx TxRepository, payload MovementCreatedPayload) error {
	payload.EventID = uuid.New()
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.InsertOutboxEvent(ctx, OutboxEvent{
		ID:             payload.EventID,
		OrganizationID: payload.OrganizationID,
		Topic:          TopicMovementCreated,
		Payload:        body,
		Status:         OutboxPending,
		CreatedAt:      time.Now().UTC(),
	})
}

// invalidateCaches drops per-product entries plus the tenant's list and stats
// entries. Failures are logged and swallowed; the transaction has already
// committed.
func (s *Service) invalidateCaches(ctx context.Context, orgID int64, productIDs ...int64) {
	if s.cache == nil {
		return
	}
	for _, productID := range productIDs {
		if err := s.cache.Invalidate(ctx, ProductCacheKey(orgID, productID)); err != nil {
			s.logWarn("invalidate product cache", err, slog.Int64("product_id", productID))
		}
	}
	if err := s.cache.InvalidatePattern(ctx, ProductListPattern(orgID)); err != nil {
		s.logWarn("invalidate product list cache", err, slog.Int64("org_id", orgID))
	}
	if err := s.cache.Invalidate(ctx, StatsCacheKey(orgID)); err != nil {
		s.logWarn("invalidate stats cache", err, slog.Int64("org_id", orgID))
	}
}

func (s *Service) recordAudit(ctx context.Context, orgID, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrganizationID: orgID,
		ActorID:        actorID,
		Action:         action,
		Entity:         "ledger_document",
		EntityID:       entityID,
		Meta:           meta,
	})
}

func (s *Service) logWarn(msg string, err error, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.Any("error", err))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	s.logger.Warn(msg, args...)
}
