package ledger

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/shared"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo(1)
	repo.addWarehouse(1)
	repo.addWarehouse(2)
	repo.addProduct(ProductInfo{ID: 10, SKU: "SKU-10", UnitCost: decimal.NewFromInt(10), LowStockThreshold: 5})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(repo, &fakeInvalidator{}, nil, logger)
	handler := NewHandler(logger, service)

	r := chi.NewRouter()
	r.Route("/inventory", handler.MountRoutes)
	return r, repo
}

func doJSON(t *testing.T, router http.Handler, method, path, body string, withTenant bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if withTenant {
		req = req.WithContext(shared.ContextWithTenant(req.Context(), shared.Tenant{OrganizationID: 1, ActorID: 7}))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAdjustmentEndpointCreates(t *testing.T) {
	router, repo := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/inventory/adjustments",
		`{"product_id":10,"warehouse_id":1,"type":"INCREASE","quantity":5,"reason":"FOUND"}`, true)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"number":"ADJ-000001"`)
	require.Len(t, repo.batches, 1)
}

func TestAdjustmentEndpointRequiresTenant(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/inventory/adjustments",
		`{"product_id":10,"warehouse_id":1,"type":"INCREASE","quantity":5,"reason":"FOUND"}`, false)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAdjustmentEndpointRejectsUnknownType(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/inventory/adjustments",
		`{"product_id":10,"warehouse_id":1,"type":"RESET","quantity":5,"reason":"FOUND"}`, true)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTransferEndpointConflictOnShortage(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.addBatch(Batch{ProductID: 10, WarehouseID: 1, QuantityOnHand: 3, AvailableQty: 3, ReceivedDate: day(1)})

	rr := doJSON(t, router, http.MethodPost, "/inventory/transfers",
		`{"from_warehouse_id":1,"to_warehouse_id":2,"items":[{"product_id":10,"quantity":5}]}`, true)

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "Insufficient Stock")
}

func TestTransferEndpointRejectsSameWarehouse(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/inventory/transfers",
		`{"from_warehouse_id":1,"to_warehouse_id":1,"items":[{"product_id":10,"quantity":5}]}`, true)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOpnameEndpointReportsDifferences(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.addBatch(Batch{ProductID: 10, WarehouseID: 1, QuantityOnHand: 60, AvailableQty: 60, ReceivedDate: day(1)})

	rr := doJSON(t, router, http.MethodPost, "/inventory/opnames",
		`{"warehouse_id":1,"items":[{"product_id":10,"actual_qty":55}]}`, true)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"system_qty":60`)
	require.Contains(t, rr.Body.String(), `"difference":-5`)
}

func TestStockLevelsEndpoint(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.addBatch(Batch{ProductID: 10, WarehouseID: 1, QuantityOnHand: 8, AvailableQty: 8, ReceivedDate: day(1)})

	rr := doJSON(t, router, http.MethodGet, "/inventory/stock-levels?warehouse_id=1", "", true)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"on_hand":8`)
	require.Contains(t, rr.Body.String(), `"sku":"SKU-10"`)
}

func TestMovementsEndpointFiltersByProduct(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/inventory/adjustments",
		`{"product_id":10,"warehouse_id":1,"type":"INCREASE","quantity":5,"reason":"FOUND"}`, true)
	require.Equal(t, http.StatusCreated, created.Code)

	rr := doJSON(t, router, http.MethodGet, "/inventory/movements?product_id=10", "", true)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"movement_type":"ADJUST"`)

	empty := doJSON(t, router, http.MethodGet, "/inventory/movements?product_id=999", "", true)
	require.Equal(t, http.StatusOK, empty.Code)
	require.Equal(t, "[]\n", empty.Body.String())
}

func TestMovementsEndpointHandlesActorlessWrites(t *testing.T) {
	router, repo := newTestRouter(t)

	// org header without an actor header still resolves a tenant
	req := httptest.NewRequest(http.MethodPost, "/inventory/adjustments",
		strings.NewReader(`{"product_id":10,"warehouse_id":1,"type":"INCREASE","quantity":5,"reason":"FOUND"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(shared.ContextWithTenant(req.Context(), shared.Tenant{OrganizationID: 1}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, int64(0), repo.movements[0].CreatedBy)

	list := doJSON(t, router, http.MethodGet, "/inventory/movements", "", true)
	require.Equal(t, http.StatusOK, list.Code)
	require.Contains(t, list.Body.String(), `"movement_type":"ADJUST"`)
}
