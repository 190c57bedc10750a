package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries low-stock notification deliveries.
	QueueNotifications = "notifications"

	// TaskLowStockNotify delivers the notification of one low-stock alert.
	TaskLowStockNotify = "alerts:low-stock-notify"
	// TaskBatchExpirySweep writes off expired batches.
	TaskBatchExpirySweep = "inventory:batch-expiry"
	// TaskLedgerAudit replays product ledgers against their aggregates.
	TaskLedgerAudit = "inventory:ledger-audit"
)

// LowStockNotifyPayload describes the alert a notification is sent for.
type LowStockNotifyPayload struct {
	AlertID       int64     `json:"alert_id"`
	ProductID     int64     `json:"product_id"`
	Severity      string    `json:"severity"`
	StockQuantity int64     `json:"stock_quantity"`
	ReorderLevel  int64     `json:"reorder_level"`
	MinimumLevel  int64     `json:"minimum_level"`
	AlertDay      time.Time `json:"alert_day"`
}

// NewLowStockNotifyTask constructs the delivery task of one alert. The task id is derived
// from the alert so the same alert is queued at most once.
func NewLowStockNotifyTask(payload LowStockNotifyPayload) (*asynq.Task, error) {
	if payload.AlertID <= 0 {
		return nil, fmt.Errorf("jobs: low-stock notify requires an alert id")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockNotify, data,
		asynq.Queue(QueueNotifications),
		asynq.TaskID(lowStockTaskID(payload.AlertID)),
		asynq.MaxRetry(5),
	), nil
}

func lowStockTaskID(alertID int64) string {
	return fmt.Sprintf("low-stock-alert-%d", alertID)
}

// decodePayload unmarshals a task payload. Malformed payloads are never retried.
func decodePayload[T any](t *asynq.Task) (T, error) {
	var payload T
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("jobs: decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}
