package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/alerts"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// TransactionType is the caller-facing reason for a quantity change.
type TransactionType string

const (
	// TransactionTypePurchase receives goods from a purchase order.
	TransactionTypePurchase TransactionType = "purchase"
	// TransactionTypeOnlineSale consumes stock for an online order.
	TransactionTypeOnlineSale TransactionType = "online_sale"
	// TransactionTypeOTCSale consumes stock for an over-the-counter sale.
	TransactionTypeOTCSale TransactionType = "otc_sale"
	// TransactionTypeAdjustment corrects stock manually in either direction.
	TransactionTypeAdjustment TransactionType = "adjustment"
	// TransactionTypeReturn brings goods back into stock.
	TransactionTypeReturn TransactionType = "return"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypePurchase, TransactionTypeOnlineSale, TransactionTypeOTCSale, TransactionTypeAdjustment, TransactionTypeReturn:
		return true
	}
	return false
}

// MovementType maps the transaction type onto the ledger's movement classification.
func (t TransactionType) MovementType() MovementType {
	switch t {
	case TransactionTypePurchase:
		return MovementTypePurchase
	case TransactionTypeOnlineSale, TransactionTypeOTCSale:
		return MovementTypeSale
	case TransactionTypeReturn:
		return MovementTypeReturn
	default:
		return MovementTypeAdjustment
	}
}

// CheckDelta enforces the sign each transaction type allows.
func (t TransactionType) CheckDelta(delta int64) error {
	if delta == 0 {
		return ErrInvalidQuantity
	}
	switch t {
	case TransactionTypePurchase, TransactionTypeReturn:
		if delta < 0 {
			return fmt.Errorf("%w: %s requires a positive quantity", ErrInvalidQuantity, t)
		}
	case TransactionTypeOnlineSale, TransactionTypeOTCSale:
		if delta > 0 {
			return fmt.Errorf("%w: %s requires a negative quantity", ErrInvalidQuantity, t)
		}
	}
	return nil
}

// MovementType classifies a ledger row.
type MovementType string

const (
	MovementTypePurchase   MovementType = "purchase"
	MovementTypeSale       MovementType = "sale"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeReturn     MovementType = "return"
)

// Product holds the aggregate stock position and alert thresholds of one product.
type Product struct {
	ID           int64
	SKU          string
	Name         string
	OnHand       int64
	ReorderLevel int64
	MinimumLevel int64
	UnitCost     decimal.Decimal
	BatchTracked bool
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Threshold returns the alert levels of the product.
func (p Product) Threshold() alerts.Threshold {
	return alerts.Threshold{ProductID: p.ID, ReorderLevel: p.ReorderLevel, MinimumLevel: p.MinimumLevel}
}

// BatchStatus is derived from a batch's remaining quantity and expiry.
type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "active"
	BatchStatusDepleted BatchStatus = "depleted"
	BatchStatusExpired  BatchStatus = "expired"
)

// Batch is a received lot of a product.
type Batch struct {
	ID                int64
	BatchNumber       string
	ProductID         int64
	Sequence          int
	SupplierID        int64
	PurchaseOrderID   int64
	QuantityReceived  int64
	QuantityRemaining int64
	UnitCost          decimal.Decimal
	ReceivedAt        time.Time
	ExpiresAt         *time.Time
	Active            bool
	Status            BatchStatus
	CreatedAt         time.Time
}

// Expired reports whether the batch expiry lies at or before now.
func (b Batch) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// DeriveStatus classifies the batch at time now.
func (b Batch) DeriveStatus(now time.Time) BatchStatus {
	switch {
	case b.Expired(now):
		return BatchStatusExpired
	case b.QuantityRemaining == 0:
		return BatchStatusDepleted
	default:
		return BatchStatusActive
	}
}

// Movement is one immutable ledger row.
type Movement struct {
	ID              int64
	GroupID         uuid.UUID
	ProductID       int64
	BatchID         int64
	MovementType    MovementType
	TransactionType TransactionType
	Quantity        int64
	QuantityBefore  int64
	QuantityAfter   int64
	UnitCost        decimal.NullDecimal
	SupplierID      int64
	ReferenceID     string
	ActorID         int64
	Notes           string
	CreatedAt       time.Time
}

// StockUpdate is one signed quantity change requested for a product.
type StockUpdate struct {
	ProductID int64 `validate:"required,gt=0"`
	Delta     int64 `validate:"required"`
	// UnitCost applies to batches created by an inbound update. Zero falls back to the
	// product's unit cost.
	UnitCost  decimal.Decimal
	ExpiresAt *time.Time
	// BatchID names the batch an inbound return or adjustment restores.
	BatchID int64 `validate:"gte=0"`
}

// ApplyInput describes one all-or-nothing ledger transaction.
type ApplyInput struct {
	Type            TransactionType `validate:"required"`
	ReferenceID     string          `validate:"max=128"`
	ActorID         int64           `validate:"gte=0"`
	Notes           string          `validate:"max=1024"`
	SupplierID      int64           `validate:"gte=0"`
	PurchaseOrderID int64           `validate:"gte=0"`
	ReceivedAt      time.Time
	IdempotencyKey  string        `validate:"max=128"`
	Updates         []StockUpdate `validate:"required,min=1,dive"`
}

// BatchTouch records how one batch changed during a movement. Batch holds the state
// after the change; Quantity is signed like the movement.
type BatchTouch struct {
	Batch    Batch
	Quantity int64
	Created  bool
}

// MovementResult summarises the effect of one StockUpdate.
type MovementResult struct {
	ProductID      int64
	QuantityBefore int64
	QuantityAfter  int64
	Delta          int64
	Batches        []BatchTouch
	MovementIDs    []int64
	Alert          *alerts.Alert
}

// ApplyResult is returned by ApplyMovements.
type ApplyResult struct {
	GroupID uuid.UUID
	Results []MovementResult
}

// CreateBatchInput receives goods for one product into a new batch.
type CreateBatchInput struct {
	ProductID       int64 `validate:"required,gt=0"`
	SupplierID      int64 `validate:"gte=0"`
	PurchaseOrderID int64 `validate:"gte=0"`
	Quantity        int64 `validate:"required,gt=0"`
	UnitCost        decimal.Decimal
	ReceivedAt      time.Time
	ExpiresAt       *time.Time
	ActorID         int64 `validate:"gte=0"`
	ReferenceID     string
}

// MovementFilter narrows the movement history.
type MovementFilter struct {
	ProductID int64
	BatchID   int64
	Type      TransactionType
	From      time.Time
	To        time.Time
	Limit     int
}

// ProductUpdate lists the product settings that may change. Nil fields are left as is.
type ProductUpdate struct {
	ReorderLevel *int64 `validate:"omitempty,gte=0"`
	MinimumLevel *int64 `validate:"omitempty,gte=0"`
	UnitCost     *decimal.Decimal
	Active       *bool
}

// Empty reports whether no field is set.
func (u ProductUpdate) Empty() bool {
	return u.ReorderLevel == nil && u.MinimumLevel == nil && u.UnitCost == nil && u.Active == nil
}

// ExpirySummary reports what an expiry sweep wrote off.
type ExpirySummary struct {
	Products int
	Batches  int
	Quantity int64
	Alerts   int
}

// LedgerViolation describes a movement row that breaks the replay chain.
type LedgerViolation struct {
	MovementID int64  `json:"movement_id,omitempty"`
	Reason     string `json:"reason"`
	Expected   int64  `json:"expected"`
	Actual     int64  `json:"actual"`
}

// LedgerReport is the result of replaying a product's movements.
type LedgerReport struct {
	ProductID  int64
	Movements  int
	Aggregate  int64
	Replayed   int64
	Violations []LedgerViolation
}

// OK reports whether the replay matched every snapshot and the aggregate.
func (r LedgerReport) OK() bool {
	return len(r.Violations) == 0
}

// InsufficientStockError carries the shortfall of a rejected deduction.
type InsufficientStockError struct {
	ProductID int64
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// Is lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

var (
	// ErrInsufficientStock indicates a deduction larger than the available quantity.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = fmt.Errorf("inventory: product not found: %w", shared.ErrNotFound)
	// ErrBatchNotFound indicates the batch does not exist.
	ErrBatchNotFound = fmt.Errorf("inventory: batch not found: %w", shared.ErrNotFound)
	// ErrProductInactive rejects movements against a deactivated product.
	ErrProductInactive = fmt.Errorf("inventory: product inactive: %w", shared.ErrConflict)
	// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
	ErrInvalidQuantity = fmt.Errorf("inventory: invalid quantity: %w", shared.ErrValidation)
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = fmt.Errorf("inventory: invalid unit cost: %w", shared.ErrValidation)
	// ErrInvalidTransactionType indicates an unknown transaction type.
	ErrInvalidTransactionType = fmt.Errorf("inventory: invalid transaction type: %w", shared.ErrValidation)
	// ErrInvalidThresholds indicates a minimum level above the reorder level.
	ErrInvalidThresholds = fmt.Errorf("inventory: minimum level exceeds reorder level: %w", shared.ErrValidation)
	// ErrEmptyUpdate indicates a product update without fields.
	ErrEmptyUpdate = fmt.Errorf("inventory: nothing to update: %w", shared.ErrValidation)
	// ErrBatchMismatch indicates a batch that does not belong to the product or movement.
	ErrBatchMismatch = fmt.Errorf("inventory: batch not applicable: %w", shared.ErrValidation)
	// ErrInvalidFilter indicates an inconsistent history filter.
	ErrInvalidFilter = fmt.Errorf("inventory: invalid filter: %w", shared.ErrValidation)
)
