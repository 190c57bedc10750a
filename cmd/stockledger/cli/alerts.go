package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/odyssey-erp/stockledger/internal/alerts"
)

// AlertAdmin is the alert administration surface the CLI drives.
type AlertAdmin interface {
	Acknowledge(ctx context.Context, alertID, actorID int64) (alerts.Alert, error)
	ListOpen(ctx context.Context, filter alerts.ListFilter) ([]alerts.Alert, error)
}

// AlertsCLI wraps alert administration commands.
type AlertsCLI struct {
	admin AlertAdmin
}

// NewAlertsCLI constructs the helper.
func NewAlertsCLI(admin AlertAdmin) *AlertsCLI {
	return &AlertsCLI{admin: admin}
}

// AckOptions defines available flags for the alerts ack command.
type AckOptions struct {
	AlertID int64
	ActorID int64
	Stdout  io.Writer
	Stderr  io.Writer
}

// AckCommand acknowledges one alert.
func (c *AlertsCLI) AckCommand(ctx context.Context, opts AckOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	if opts.AlertID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "alerts ack: --id is required and must be positive")
		return 1
	}
	alert, err := c.admin.Acknowledge(ctx, opts.AlertID, opts.ActorID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "alerts ack: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "alert %d for product %d acknowledged by %d at %s\n",
		alert.ID, alert.ProductID, alert.AcknowledgedBy, alert.AcknowledgedAt.Format(time.RFC3339))
	return 0
}

// ListOptions defines available flags for the alerts list command.
type ListOptions struct {
	ProductID  int64
	Limit      int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// OpenAlert is one row of alerts list.
type OpenAlert struct {
	ID            int64  `json:"id"`
	ProductID     int64  `json:"product_id"`
	Severity      string `json:"severity"`
	StockQuantity int64  `json:"stock_quantity"`
	ReorderLevel  int64  `json:"reorder_level"`
	MinimumLevel  int64  `json:"minimum_level"`
	AlertDay      string `json:"alert_day"`
	Notified      bool   `json:"notified"`
}

// ListCommand prints unacknowledged alerts.
func (c *AlertsCLI) ListCommand(ctx context.Context, opts ListOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	list, err := c.admin.ListOpen(ctx, alerts.ListFilter{ProductID: opts.ProductID, Limit: opts.Limit})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "alerts list: %v\n", err)
		return 1
	}
	rows := make([]OpenAlert, 0, len(list))
	for _, a := range list {
		rows = append(rows, OpenAlert{
			ID:            a.ID,
			ProductID:     a.ProductID,
			Severity:      string(a.Severity),
			StockQuantity: a.StockQuantity,
			ReorderLevel:  a.ReorderLevel,
			MinimumLevel:  a.MinimumLevel,
			AlertDay:      a.AlertDay.Format(time.DateOnly),
			Notified:      a.NotificationSent,
		})
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(rows); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "alerts list: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(opts.Stdout, "No open alerts.")
		return 0
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(opts.Stdout, "#%d %s product %d: %d on hand (reorder %d, minimum %d) %s\n",
			r.ID, r.Severity, r.ProductID, r.StockQuantity, r.ReorderLevel, r.MinimumLevel, r.AlertDay)
	}
	return 0
}
