package alerts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newAlertsRouter(repo *memoryRepo) http.Handler {
	r := chi.NewRouter()
	r.Route("/alerts", NewHandler(nil, NewService(repo, nil, nil)).MountRoutes)
	return r
}

func TestHandlerListsOpenAlerts(t *testing.T) {
	day := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	acked := day.Add(time.Hour)
	repo := newMemoryRepo(
		Alert{ID: 1, ProductID: 3, Severity: SeverityWarning, AlertDay: day},
		Alert{ID: 2, ProductID: 3, Severity: SeverityCritical, AlertDay: day, AcknowledgedBy: 9, AcknowledgedAt: &acked},
		Alert{ID: 3, ProductID: 4, Severity: SeverityCritical, AlertDay: day},
	)
	router := newAlertsRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/alerts/?product_id=3", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Alerts []alertView `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Alerts, 1)
	require.Equal(t, int64(1), body.Alerts[0].ID)
	require.Equal(t, "2026-05-20", body.Alerts[0].AlertDay)
}

func TestHandlerAcknowledge(t *testing.T) {
	repo := newMemoryRepo(Alert{ID: 5, ProductID: 3, Severity: SeverityWarning})
	router := newAlertsRouter(repo)

	ack := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/alerts/5/ack", strings.NewReader(body)))
		return rr
	}

	require.Equal(t, http.StatusBadRequest, ack(`{"actor_id":0}`).Code)
	require.Equal(t, http.StatusBadRequest, ack(`{"actor":1}`).Code)

	rr := ack(`{"actor_id":12}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var view alertView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Equal(t, int64(12), view.AcknowledgedBy)
	require.NotNil(t, view.AcknowledgedAt)

	require.Equal(t, http.StatusConflict, ack(`{"actor_id":13}`).Code)
}

func TestHandlerGetUnknownAlert(t *testing.T) {
	router := newAlertsRouter(newMemoryRepo())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/alerts/77", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/alerts/x", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
