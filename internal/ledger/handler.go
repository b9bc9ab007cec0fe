package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler wires HTTP endpoints for the inventory ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.handleCreateAdjustment)
	r.Post("/transfers", h.handleCreateTransfer)
	r.Post("/opnames", h.handleCreateOpname)
	r.Get("/stock-levels", h.handleStockLevels)
	r.Get("/movements", h.handleMovements)
}

type adjustmentRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	Type        string `json:"type" validate:"required,oneof=INCREASE DECREASE"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,oneof=DAMAGE LOST FOUND AUDIT CORRECTION EXPIRED OTHER"`
	Notes       string `json:"notes"`
}

type transferItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type transferRequest struct {
	FromWarehouseID int64                 `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64                 `json:"to_warehouse_id" validate:"required,gt=0,nefield=FromWarehouseID"`
	Items           []transferItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes           string                `json:"notes"`
}

type opnameItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	ActualQty int64 `json:"actual_qty" validate:"gte=0"`
}

type opnameRequest struct {
	WarehouseID int64               `json:"warehouse_id" validate:"required,gt=0"`
	Items       []opnameItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes       string              `json:"notes"`
}

type adjustmentResponse struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	ProductID   int64     `json:"product_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Type        string    `json:"type"`
	Quantity    int64     `json:"quantity"`
	Reason      string    `json:"reason"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type transferItemResponse struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type transferResponse struct {
	ID              int64                  `json:"id"`
	Number          string                 `json:"number"`
	FromWarehouseID int64                  `json:"from_warehouse_id"`
	ToWarehouseID   int64                  `json:"to_warehouse_id"`
	Status          string                 `json:"status"`
	Notes           string                 `json:"notes,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	Items           []transferItemResponse `json:"items"`
}

type opnameItemResponse struct {
	ID         int64 `json:"id"`
	ProductID  int64 `json:"product_id"`
	ActualQty  int64 `json:"actual_qty"`
	SystemQty  int64 `json:"system_qty"`
	Difference int64 `json:"difference"`
}

type opnameResponse struct {
	ID          int64                `json:"id"`
	Number      string               `json:"number"`
	WarehouseID int64                `json:"warehouse_id"`
	Status      string               `json:"status"`
	Notes       string               `json:"notes,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Items       []opnameItemResponse `json:"items"`
}

type stockLevelResponse struct {
	ProductID   int64  `json:"product_id"`
	SKU         string `json:"sku"`
	WarehouseID int64  `json:"warehouse_id"`
	OnHand      int64  `json:"on_hand"`
	Available   int64  `json:"available"`
	BatchCount  int64  `json:"batch_count"`
	LowStock    bool   `json:"low_stock"`
}

type movementResponse struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"product_id"`
	WarehouseID   int64     `json:"warehouse_id"`
	BatchID       *int64    `json:"batch_id,omitempty"`
	Type          string    `json:"movement_type"`
	Quantity      int64     `json:"quantity"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   int64     `json:"reference_id"`
	Notes         string    `json:"notes,omitempty"`
	CreatedBy     int64     `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *Handler) handleCreateAdjustment(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	adj, err := h.service.CreateStockAdjustment(r.Context(), AdjustmentInput{
		OrganizationID: tenant.OrganizationID,
		ProductID:      req.ProductID,
		WarehouseID:    req.WarehouseID,
		Type:           AdjustmentType(req.Type),
		Quantity:       req.Quantity,
		Reason:         AdjustmentReason(req.Reason),
		Notes:          req.Notes,
		ActorID:        tenant.ActorID,
	})
	if err != nil {
		h.respondError(w, r, "create adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adjustmentResponse{
		ID:          adj.ID,
		Number:      adj.Number,
		ProductID:   adj.ProductID,
		WarehouseID: adj.WarehouseID,
		Type:        string(adj.Type),
		Quantity:    adj.Quantity,
		Reason:      string(adj.Reason),
		Notes:       adj.Notes,
		CreatedAt:   adj.CreatedAt,
	})
}

func (h *Handler) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := TransferInput{
		OrganizationID:  tenant.OrganizationID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Notes:           req.Notes,
		ActorID:         tenant.ActorID,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, TransferLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	transfer, err := h.service.CreateTransfer(r.Context(), input)
	if err != nil {
		h.respondError(w, r, "create transfer", err)
		return
	}
	resp := transferResponse{
		ID:              transfer.ID,
		Number:          transfer.Number,
		FromWarehouseID: transfer.FromWarehouseID,
		ToWarehouseID:   transfer.ToWarehouseID,
		Status:          transfer.Status,
		Notes:           transfer.Notes,
		CreatedAt:       transfer.CreatedAt,
	}
	for _, item := range transfer.Items {
		resp.Items = append(resp.Items, transferItemResponse{ID: item.ID, ProductID: item.ProductID, Quantity: item.Quantity})
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleCreateOpname(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req opnameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := OpnameInput{
		OrganizationID: tenant.OrganizationID,
		WarehouseID:    req.WarehouseID,
		Notes:          req.Notes,
		ActorID:        tenant.ActorID,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, OpnameLine{ProductID: item.ProductID, ActualQty: item.ActualQty})
	}
	opname, err := h.service.CreateStockOpname(r.Context(), input)
	if err != nil {
		h.respondError(w, r, "create opname", err)
		return
	}
	resp := opnameResponse{
		ID:          opname.ID,
		Number:      opname.Number,
		WarehouseID: opname.WarehouseID,
		Status:      opname.Status,
		Notes:       opname.Notes,
		CreatedAt:   opname.CreatedAt,
	}
	for _, item := range opname.Items {
		resp.Items = append(resp.Items, opnameItemResponse{
			ID:         item.ID,
			ProductID:  item.ProductID,
			ActualQty:  item.ActualQty,
			SystemQty:  item.SystemQty,
			Difference: item.Difference,
		})
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleStockLevels(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	warehouseID, err := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	if err != nil || warehouseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "warehouse_id is required")
		return
	}
	levels, err := h.service.StockLevels(r.Context(), tenant.OrganizationID, warehouseID)
	if err != nil {
		h.respondError(w, r, "stock levels", err)
		return
	}
	resp := make([]stockLevelResponse, 0, len(levels))
	for _, lvl := range levels {
		resp = append(resp, stockLevelResponse{
			ProductID:   lvl.ProductID,
			SKU:         lvl.SKU,
			WarehouseID: lvl.WarehouseID,
			OnHand:      lvl.OnHand,
			Available:   lvl.Available,
			BatchCount:  lvl.BatchCount,
			LowStock:    lvl.LowStock,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	filter := MovementFilter{OrganizationID: tenant.OrganizationID}
	q := r.URL.Query()
	if v := q.Get("product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id must be numeric")
			return
		}
		filter.ProductID = id
	}
	if v := q.Get("warehouse_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "warehouse_id must be numeric")
			return
		}
		filter.WarehouseID = id
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be numeric")
			return
		}
		filter.Limit = limit
	}
	movements, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list movements", err)
		return
	}
	resp := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		resp = append(resp, movementResponse{
			ID:            m.ID,
			ProductID:     m.ProductID,
			WarehouseID:   m.WarehouseID,
			BatchID:       m.BatchID,
			Type:          string(m.Type),
			Quantity:      m.Quantity,
			ReferenceType: m.ReferenceType,
			ReferenceID:   m.ReferenceID,
			Notes:         m.Notes,
			CreatedBy:     m.CreatedBy,
			CreatedAt:     m.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (shared.Tenant, bool) {
	tenant := shared.TenantFromContext(r.Context())
	if tenant.OrganizationID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "organization context required")
		return shared.Tenant{}, false
	}
	return tenant, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrStockConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
