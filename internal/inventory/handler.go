package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler exposes read-only ledger endpoints for operators.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}/batches", h.handleBatches)
	r.Get("/products/{id}/verify", h.handleVerify)
	r.Get("/movements", h.handleMovements)
}

type batchView struct {
	ID                int64           `json:"id"`
	BatchNumber       string          `json:"batch_number"`
	ProductID         int64           `json:"product_id"`
	SupplierID        int64           `json:"supplier_id,omitempty"`
	PurchaseOrderID   int64           `json:"purchase_order_id,omitempty"`
	QuantityReceived  int64           `json:"quantity_received"`
	QuantityRemaining int64           `json:"quantity_remaining"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	ReceivedAt        time.Time       `json:"received_at"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	Active            bool            `json:"active"`
	Status            BatchStatus     `json:"status"`
}

type movementView struct {
	ID              int64               `json:"id"`
	GroupID         string              `json:"group_id"`
	ProductID       int64               `json:"product_id"`
	BatchID         int64               `json:"batch_id,omitempty"`
	MovementType    MovementType        `json:"movement_type"`
	TransactionType TransactionType     `json:"transaction_type"`
	Quantity        int64               `json:"quantity"`
	QuantityBefore  int64               `json:"quantity_before"`
	QuantityAfter   int64               `json:"quantity_after"`
	UnitCost        decimal.NullDecimal `json:"unit_cost"`
	SupplierID      int64               `json:"supplier_id,omitempty"`
	ReferenceID     string              `json:"reference_id,omitempty"`
	ActorID         int64               `json:"actor_id,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

type reportView struct {
	ProductID  int64             `json:"product_id"`
	Movements  int               `json:"movements"`
	Aggregate  int64             `json:"aggregate"`
	Replayed   int64             `json:"replayed"`
	OK         bool              `json:"ok"`
	Violations []LedgerViolation `json:"violations"`
}

func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	batches, err := h.service.GetBatchesForProduct(r.Context(), productID, includeInactive)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]batchView, 0, len(batches))
	for _, b := range batches {
		out = append(out, batchView{
			ID:                b.ID,
			BatchNumber:       b.BatchNumber,
			ProductID:         b.ProductID,
			SupplierID:        b.SupplierID,
			PurchaseOrderID:   b.PurchaseOrderID,
			QuantityReceived:  b.QuantityReceived,
			QuantityRemaining: b.QuantityRemaining,
			UnitCost:          b.UnitCost,
			ReceivedAt:        b.ReceivedAt,
			ExpiresAt:         b.ExpiresAt,
			Active:            b.Active,
			Status:            b.Status,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": out})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.VerifyLedger(r.Context(), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	violations := report.Violations
	if violations == nil {
		violations = []LedgerViolation{}
	}
	httpx.JSON(w, http.StatusOK, reportView{
		ProductID:  report.ProductID,
		Movements:  report.Movements,
		Aggregate:  report.Aggregate,
		Replayed:   report.Replayed,
		OK:         report.OK(),
		Violations: violations,
	})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMovementFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.GetMovementHistory(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]movementView, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementView{
			ID:              m.ID,
			GroupID:         m.GroupID.String(),
			ProductID:       m.ProductID,
			BatchID:         m.BatchID,
			MovementType:    m.MovementType,
			TransactionType: m.TransactionType,
			Quantity:        m.Quantity,
			QuantityBefore:  m.QuantityBefore,
			QuantityAfter:   m.QuantityAfter,
			UnitCost:        m.UnitCost,
			SupplierID:      m.SupplierID,
			ReferenceID:     m.ReferenceID,
			ActorID:         m.ActorID,
			Notes:           m.Notes,
			CreatedAt:       m.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !isClientError(err) {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func isClientError(err error) bool {
	switch outcomeFor(err) {
	case "not_found", "invalid", "conflict":
		return true
	}
	return false
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("inventory: invalid product id %q: %w", chi.URLParam(r, "id"), shared.ErrValidation)
	}
	return id, nil
}

func parseMovementFilter(r *http.Request) (MovementFilter, error) {
	q := r.URL.Query()
	var filter MovementFilter
	ints := map[string]*int64{"product_id": &filter.ProductID, "batch_id": &filter.BatchID}
	for key, dst := range ints {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return MovementFilter{}, fmt.Errorf("%w: %s=%q", ErrInvalidFilter, key, raw)
		}
		*dst = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return MovementFilter{}, fmt.Errorf("%w: limit=%q", ErrInvalidFilter, raw)
		}
		filter.Limit = v
	}
	times := map[string]*time.Time{"from": &filter.From, "to": &filter.To}
	for key, dst := range times {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return MovementFilter{}, fmt.Errorf("%w: %s must be RFC3339", ErrInvalidFilter, key)
		}
		*dst = v
	}
	filter.Type = TransactionType(q.Get("type"))
	return filter, nil
}
