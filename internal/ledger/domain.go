package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementAdjust indicates a manual correction (adjustment or opname).
	MovementAdjust MovementType = "ADJUST"
	// MovementTransferIn represents the destination side of a transfer.
	MovementTransferIn MovementType = "TRANSFER_IN"
	// MovementTransferOut represents the source side of a transfer.
	MovementTransferOut MovementType = "TRANSFER_OUT"
)

// AdjustmentType distinguishes stock corrections by direction.
type AdjustmentType string

const (
	// AdjustmentIncrease adds stock via a new batch.
	AdjustmentIncrease AdjustmentType = "INCREASE"
	// AdjustmentDecrease removes stock by FIFO consumption.
	AdjustmentDecrease AdjustmentType = "DECREASE"
)

// AdjustmentReason enumerates why a correction was made.
type AdjustmentReason string

const (
	ReasonDamage     AdjustmentReason = "DAMAGE"
	ReasonLost       AdjustmentReason = "LOST"
	ReasonFound      AdjustmentReason = "FOUND"
	ReasonAudit      AdjustmentReason = "AUDIT"
	ReasonCorrection AdjustmentReason = "CORRECTION"
	ReasonExpired    AdjustmentReason = "EXPIRED"
	ReasonOther      AdjustmentReason = "OTHER"
)

// ValidReason reports whether the reason is one of the known values.
func ValidReason(r AdjustmentReason) bool {
	switch r {
	case ReasonDamage, ReasonLost, ReasonFound, ReasonAudit, ReasonCorrection, ReasonExpired, ReasonOther:
		return true
	}
	return false
}

// Reference types recorded on movements and outbox payloads.
const (
	RefAdjustment = "ADJUSTMENT"
	RefTransfer   = "TRANSFER"
	RefOpname     = "OPNAME"
)

// StatusCompleted is the only document status; transfers and opnames are
// finalized at creation, there is no in-transit state machine.
const StatusCompleted = "COMPLETED"

// TopicMovementCreated is the outbox topic for every ledger mutation.
const TopicMovementCreated = "inventory.movement.created"

// ProductInfo is the slice of the product catalog the ledger needs.
type ProductInfo struct {
	ID                int64
	SKU               string
	UnitCost          decimal.Decimal
	LowStockThreshold int64
}

// Batch is a distinct received lot of a product at a warehouse. The unit cost
// is fixed at receipt and never recalculated. A fully drained batch stays on
// record with zero quantity.
type Batch struct {
	ID             int64
	OrganizationID int64
	ProductID      int64
	WarehouseID    int64
	UnitCost       decimal.Decimal
	QuantityOnHand int64
	AvailableQty   int64
	BatchNumber    string
	ReceivedDate   time.Time
	SupplierID     int64
	CreatedAt      time.Time
}

// Movement is an immutable audit entry for one quantity change on one batch.
// Increases carry positive quantities, decreases negative ones.
type Movement struct {
	ID             int64
	OrganizationID int64
	ProductID      int64
	WarehouseID    int64
	BatchID        *int64
	Type           MovementType
	Quantity       int64
	ReferenceType  string
	ReferenceID    int64
	Notes          string
	CreatedBy      int64
	CreatedAt      time.Time
}

// Adjustment is the business document for a manual stock correction.
type Adjustment struct {
	ID             int64
	OrganizationID int64
	Number         string
	ProductID      int64
	WarehouseID    int64
	Type           AdjustmentType
	Quantity       int64
	Reason         AdjustmentReason
	Notes          string
	CreatedBy      int64
	CreatedAt      time.Time
}

// Transfer moves quantities of one or more products between warehouses.
type Transfer struct {
	ID              int64
	OrganizationID  int64
	Number          string
	FromWarehouseID int64
	ToWarehouseID   int64
	Status          string
	Notes           string
	CreatedBy       int64
	CreatedAt       time.Time
	Items           []TransferItem
}

// TransferItem is one product line of a transfer.
type TransferItem struct {
	ID         int64
	TransferID int64
	ProductID  int64
	Quantity   int64
}

// Opname reconciles counted quantities against system quantities.
type Opname struct {
	ID             int64
	OrganizationID int64
	Number         string
	WarehouseID    int64
	Status         string
	Notes          string
	CreatedBy      int64
	CreatedAt      time.Time
	Items          []OpnameItem
}

// OpnameItem records the counted versus system quantity for one product.
type OpnameItem struct {
	ID         int64
	OpnameID   int64
	ProductID  int64
	ActualQty  int64
	SystemQty  int64
	Difference int64
}

// OutboxEvent is the durable hand-off row for asynchronous consumers,
// written in the same transaction as the domain change.
type OutboxEvent struct {
	ID             uuid.UUID
	OrganizationID int64
	Topic          string
	Payload        []byte
	Status         string
	CreatedAt      time.Time
	DispatchedAt   *time.Time
}

// Outbox row statuses.
const (
	OutboxPending    = "PENDING"
	OutboxDispatched = "DISPATCHED"
)

// StockLevel summarises on-hand stock for a product in a warehouse.
type StockLevel struct {
	ProductID    int64
	SKU          string
	WarehouseID  int64
	OnHand       int64
	Available    int64
	BatchCount   int64
	LowStock     bool
}

// AdjustmentInput describes a stock correction request.
type AdjustmentInput struct {
	OrganizationID int64
	ProductID      int64
	WarehouseID    int64
	Type           AdjustmentType
	Quantity       int64
	Reason         AdjustmentReason
	Notes          string
	ActorID        int64
}

// TransferLine is one requested product/quantity pair of a transfer.
type TransferLine struct {
	ProductID int64
	Quantity  int64
}

// TransferInput describes a transfer request between two warehouses.
type TransferInput struct {
	OrganizationID  int64
	FromWarehouseID int64
	ToWarehouseID   int64
	Items           []TransferLine
	Notes           string
	ActorID         int64
}

// OpnameLine is one counted product of a stock opname.
type OpnameLine struct {
	ProductID int64
	ActualQty int64
}

// OpnameInput describes a physical count reconciliation request.
type OpnameInput struct {
	OrganizationID int64
	WarehouseID    int64
	Items          []OpnameLine
	Notes          string
	ActorID        int64
}

// ErrValidation indicates malformed input, rejected before any transaction.
var ErrValidation = errors.New("ledger: validation failed")

// ErrNotFound indicates a referenced entity is missing or belongs to
// another organization.
var ErrNotFound = errors.New("ledger: not found")

// ErrStockConflict indicates a batch changed concurrently while being
// decremented. The enclosing transaction is rolled back.
var ErrStockConflict = errors.New("ledger: stock changed concurrently")

// InsufficientStockError is returned when available batches cannot cover a
// requested deduction. Nothing is persisted.
type InsufficientStockError struct {
	ProductID   int64
	WarehouseID int64
	Requested   int64
	Shortfall   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for product %d in warehouse %d: requested %d, short %d",
		e.ProductID, e.WarehouseID, e.Requested, e.Shortfall)
}
