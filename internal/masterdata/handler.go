package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler wires HTTP endpoints for products and warehouses.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the masterdata handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers masterdata routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.handleListProducts)
		r.Post("/", h.handleCreateProduct)
		r.Get("/{id}", h.handleGetProduct)
		r.Put("/{id}", h.handleUpdateProduct)
		r.Delete("/{id}", h.handleDeleteProduct)
	})
	r.Route("/warehouses", func(r chi.Router) {
		r.Get("/", h.handleListWarehouses)
		r.Post("/", h.handleCreateWarehouse)
		r.Get("/{id}", h.handleGetWarehouse)
		r.Put("/{id}", h.handleUpdateWarehouse)
	})
}

type productRequest struct {
	SKU               string          `json:"sku" validate:"required,max=64"`
	Name              string          `json:"name" validate:"required,max=255"`
	Description       string          `json:"description"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	LowStockThreshold int64           `json:"low_stock_threshold" validate:"gte=0"`
	IsActive          *bool           `json:"is_active"`
}

type warehouseRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=255"`
	Address  string `json:"address"`
	IsActive *bool  `json:"is_active"`
}

type productListResponse struct {
	Items []Product `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filters := ListFilters{Search: q.Get("search")}
	if v := q.Get("is_active"); v != "" {
		active := v == "true"
		filters.IsActive = &active
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.Limit <= 0 {
		filters.Limit = 50
	}

	products, total, err := h.service.ListProducts(r.Context(), tenant.OrganizationID, filters)
	if err != nil {
		h.respondError(w, "list products", err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, productListResponse{
		Items: products,
		Total: total,
		Page:  filters.Page,
		Limit: filters.Limit,
	})
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), productFromRequest(tenant.OrganizationID, req))
	if err != nil {
		h.respondError(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), tenant.OrganizationID, id)
	if err != nil {
		h.respondError(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateProduct(r.Context(), tenant.OrganizationID, id, productFromRequest(tenant.OrganizationID, req)); err != nil {
		h.respondError(w, "update product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(r.Context(), tenant.OrganizationID, id); err != nil {
		h.respondError(w, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListWarehouses(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	warehouses, err := h.service.ListWarehouses(r.Context(), tenant.OrganizationID)
	if err != nil {
		h.respondError(w, "list warehouses", err)
		return
	}
	if warehouses == nil {
		warehouses = []Warehouse{}
	}
	httpx.JSON(w, http.StatusOK, warehouses)
}

func (h *Handler) handleCreateWarehouse(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeWarehouse(w, r)
	if !ok {
		return
	}
	warehouse, err := h.service.CreateWarehouse(r.Context(), warehouseFromRequest(tenant.OrganizationID, req))
	if err != nil {
		h.respondError(w, "create warehouse", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) handleGetWarehouse(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	warehouse, err := h.service.GetWarehouse(r.Context(), tenant.OrganizationID, id)
	if err != nil {
		h.respondError(w, "get warehouse", err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) handleUpdateWarehouse(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeWarehouse(w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateWarehouse(r.Context(), tenant.OrganizationID, id, warehouseFromRequest(tenant.OrganizationID, req)); err != nil {
		h.respondError(w, "update warehouse", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeProduct(w http.ResponseWriter, r *http.Request) (productRequest, bool) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return productRequest{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return productRequest{}, false
	}
	return req, true
}

func (h *Handler) decodeWarehouse(w http.ResponseWriter, r *http.Request) (warehouseRequest, bool) {
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return warehouseRequest{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return warehouseRequest{}, false
	}
	return req, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (shared.Tenant, bool) {
	tenant := shared.TenantFromContext(r.Context())
	if tenant.OrganizationID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "organization context required")
		return shared.Tenant{}, false
	}
	return tenant, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateSKU), errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func productFromRequest(orgID int64, req productRequest) Product {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Product{
		OrganizationID:    orgID,
		SKU:               req.SKU,
		Name:              req.Name,
		Description:       req.Description,
		UnitCost:          req.UnitCost,
		SellingPrice:      req.SellingPrice,
		LowStockThreshold: req.LowStockThreshold,
		IsActive:          active,
	}
}

func warehouseFromRequest(orgID int64, req warehouseRequest) Warehouse {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Warehouse{
		OrganizationID: orgID,
		Code:           req.Code,
		Name:           req.Name,
		Address:        req.Address,
		IsActive:       active,
	}
}
