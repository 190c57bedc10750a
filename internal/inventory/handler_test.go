package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestHandlerListsBatchesWithStatus(t *testing.T) {
	repo := newMemoryRepo()
	p, _ := seedTracked(repo, Product{SKU: "H-1", ReorderLevel: 1}, 4, 6)
	svc := newTestService(repo, ServiceConfig{})
	_, err := svc.ApplyMovements(context.Background(), sale(p.ID, 4))
	require.NoError(t, err)
	router := newTestRouter(svc)

	rr := get(t, router, "/products/1/batches")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Batches []batchView `json:"batches"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Batches, 1)
	require.Equal(t, int64(6), body.Batches[0].QuantityRemaining)
	require.Equal(t, BatchStatusActive, body.Batches[0].Status)

	rr = get(t, router, "/products/1/batches?include_inactive=true")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Batches, 2)
	require.Equal(t, BatchStatusDepleted, body.Batches[0].Status)
}

func TestHandlerVerifyReportsReplay(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.addProduct(Product{SKU: "H-2", Active: true, OnHand: 10})
	svc := newTestService(repo, ServiceConfig{})
	_, err := svc.ApplyMovements(context.Background(), sale(p.ID, 3))
	require.NoError(t, err)

	rr := get(t, newTestRouter(svc), "/products/1/verify")
	require.Equal(t, http.StatusOK, rr.Code)
	var report reportView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.True(t, report.OK)
	require.Equal(t, int64(7), report.Replayed)
	require.Equal(t, 1, report.Movements)
	require.NotNil(t, report.Violations)
}

func TestHandlerMapsErrors(t *testing.T) {
	router := newTestRouter(newTestService(newMemoryRepo(), ServiceConfig{}))

	require.Equal(t, http.StatusBadRequest, get(t, router, "/products/abc/verify").Code)
	require.Equal(t, http.StatusNotFound, get(t, router, "/products/42/batches").Code)
	require.Equal(t, http.StatusBadRequest, get(t, router, "/movements?type=gift").Code)
	require.Equal(t, http.StatusBadRequest, get(t, router, "/movements?from=yesterday").Code)
	require.Equal(t, http.StatusBadRequest, get(t, router, "/movements?product_id=x").Code)
}

func TestHandlerFiltersMovements(t *testing.T) {
	repo := newMemoryRepo()
	p := repo.addProduct(Product{SKU: "H-3", Active: true, OnHand: 10})
	other := repo.addProduct(Product{SKU: "H-4", Active: true, OnHand: 10})
	svc := newTestService(repo, ServiceConfig{HistoryPageSize: 50})
	ctx := context.Background()
	_, err := svc.ApplyMovements(ctx, sale(p.ID, 1))
	require.NoError(t, err)
	_, err = svc.ApplyMovements(ctx, sale(other.ID, 2))
	require.NoError(t, err)

	rr := get(t, newTestRouter(svc), "/movements?product_id=2&limit=5")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Movements []movementView `json:"movements"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Movements, 1)
	require.Equal(t, other.ID, body.Movements[0].ProductID)
	require.Equal(t, int64(-2), body.Movements[0].Quantity)
	require.Equal(t, TransactionTypeOTCSale, body.Movements[0].TransactionType)
}
