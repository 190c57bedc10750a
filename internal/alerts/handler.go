package alerts

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler exposes alert administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the alerts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/ack", h.handleAcknowledge)
}

type alertView struct {
	ID               int64      `json:"id"`
	ProductID        int64      `json:"product_id"`
	StockQuantity    int64      `json:"stock_quantity"`
	ReorderLevel     int64      `json:"reorder_level"`
	MinimumLevel     int64      `json:"minimum_level"`
	Severity         Severity   `json:"severity"`
	AlertDay         string     `json:"alert_day"`
	AcknowledgedBy   int64      `json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	NotificationSent bool       `json:"notification_sent"`
	CreatedAt        time.Time  `json:"created_at"`
}

func viewOf(a Alert) alertView {
	return alertView{
		ID:               a.ID,
		ProductID:        a.ProductID,
		StockQuantity:    a.StockQuantity,
		ReorderLevel:     a.ReorderLevel,
		MinimumLevel:     a.MinimumLevel,
		Severity:         a.Severity,
		AlertDay:         a.AlertDay.Format(time.DateOnly),
		AcknowledgedBy:   a.AcknowledgedBy,
		AcknowledgedAt:   a.AcknowledgedAt,
		NotificationSent: a.NotificationSent,
		CreatedAt:        a.CreatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter
	q := r.URL.Query()
	if raw := q.Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("alerts: product_id=%q: %w", raw, shared.ErrValidation))
			return
		}
		filter.ProductID = id
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("alerts: limit=%q: %w", raw, shared.ErrValidation))
			return
		}
		filter.Limit = limit
	}
	list, err := h.service.ListOpen(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]alertView, 0, len(list))
	for _, a := range list {
		out = append(out, viewOf(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := alertID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	alert, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOf(alert))
}

type acknowledgeRequest struct {
	ActorID int64 `json:"actor_id"`
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := alertID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req acknowledgeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	alert, err := h.service.Acknowledge(r.Context(), id, req.ActorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOf(alert))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) && !errors.Is(err, shared.ErrValidation) {
		h.logger.Error("alerts request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func alertID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("alerts: invalid alert id %q: %w", raw, shared.ErrValidation)
	}
	return id, nil
}
