package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Severity grades a low-stock alert.
type Severity string

const (
	// SeverityWarning marks stock at or below the reorder level.
	SeverityWarning Severity = "warning"
	// SeverityCritical marks stock at or below the minimum stock level.
	SeverityCritical Severity = "critical"
)

// Alert is a low-stock notice for one product on one calendar day.
type Alert struct {
	ID               int64
	ProductID        int64
	StockQuantity    int64
	ReorderLevel     int64
	MinimumLevel     int64
	Severity         Severity
	AlertDay         time.Time
	AcknowledgedBy   int64
	AcknowledgedAt   *time.Time
	NotificationSent bool
	NotifiedAt       *time.Time
	CreatedAt        time.Time
}

// Acknowledged reports whether the alert reached its terminal state.
func (a Alert) Acknowledged() bool {
	return a.AcknowledgedAt != nil
}

// Threshold carries the product levels an evaluation compares against.
type Threshold struct {
	ProductID    int64
	ReorderLevel int64
	MinimumLevel int64
}

// ListFilter narrows alert listings.
type ListFilter struct {
	ProductID int64
	Limit     int
}

// TxStore persists alerts inside the caller's transaction.
type TxStore interface {
	FindOpenForDay(ctx context.Context, productID int64, day time.Time) (Alert, bool, error)
	// Insert stores the alert. It reports false when a concurrent writer already holds
	// the open alert for the same product and day.
	Insert(ctx context.Context, alert Alert) (Alert, bool, error)
}

var (
	// ErrAlertNotFound indicates the alert does not exist.
	ErrAlertNotFound = fmt.Errorf("alerts: alert not found: %w", shared.ErrNotFound)
	// ErrAlreadyAcknowledged rejects a second acknowledgment.
	ErrAlreadyAcknowledged = fmt.Errorf("alerts: alert already acknowledged: %w", shared.ErrConflict)
	// ErrInvalidActor indicates a missing acknowledging actor.
	ErrInvalidActor = fmt.Errorf("alerts: actor required: %w", shared.ErrValidation)
)
