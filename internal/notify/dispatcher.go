package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/alerts"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/jobs"
)

// DefaultTimeout bounds one notification hand-off.
const DefaultTimeout = 5 * time.Second

// Notice is the notification view of a low-stock alert.
type Notice struct {
	AlertID       int64
	ProductID     int64
	Severity      alerts.Severity
	StockQuantity int64
	ReorderLevel  int64
	MinimumLevel  int64
	AlertDay      time.Time
}

// NoticeFromAlert builds the notice of alert.
func NoticeFromAlert(alert alerts.Alert) Notice {
	return Notice{
		AlertID:       alert.ID,
		ProductID:     alert.ProductID,
		Severity:      alert.Severity,
		StockQuantity: alert.StockQuantity,
		ReorderLevel:  alert.ReorderLevel,
		MinimumLevel:  alert.MinimumLevel,
		AlertDay:      alert.AlertDay,
	}
}

// Sink hands a notice to a channel. It reports false when the notice was already
// handed off earlier.
type Sink interface {
	Notify(ctx context.Context, n Notice) (bool, error)
}

// Dispatcher sends notices on detached goroutines. A slow or failing sink never
// reaches the caller.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	wg      sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(sink Sink, timeout time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sink: sink, timeout: timeout, logger: logger, metrics: metrics}
}

// DispatchAlert schedules the notification of alert and returns immediately.
func (d *Dispatcher) DispatchAlert(alert alerts.Alert) {
	if d == nil || d.sink == nil {
		return
	}
	notice := NoticeFromAlert(alert)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(notice)
	}()
}

// Wait blocks until every dispatched notice finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) send(n Notice) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	fresh, err := d.notify(ctx, n)
	switch {
	case err != nil:
		d.metrics.AddNotification("dispatch", "error")
		d.logger.Warn("low-stock notification failed",
			slog.Int64("alert_id", n.AlertID),
			slog.Int64("product_id", n.ProductID),
			slog.Any("error", err),
		)
	case !fresh:
		d.metrics.AddNotification("dispatch", "duplicate")
	default:
		d.metrics.AddNotification("dispatch", "queued")
	}
}

func (d *Dispatcher) notify(ctx context.Context, n Notice) (fresh bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: sink panic: %v", r)
		}
	}()
	return d.sink.Notify(ctx, n)
}

// Enqueuer submits notification tasks.
type Enqueuer interface {
	EnqueueLowStockNotify(ctx context.Context, payload jobs.LowStockNotifyPayload) (*asynq.TaskInfo, error)
}

// QueueSink enqueues one delivery task per alert for the worker.
type QueueSink struct {
	client Enqueuer
}

// NewQueueSink constructs a QueueSink.
func NewQueueSink(client Enqueuer) *QueueSink {
	return &QueueSink{client: client}
}

// Notify implements Sink.
func (s *QueueSink) Notify(ctx context.Context, n Notice) (bool, error) {
	_, err := s.client.EnqueueLowStockNotify(ctx, jobs.LowStockNotifyPayload{
		AlertID:       n.AlertID,
		ProductID:     n.ProductID,
		Severity:      string(n.Severity),
		StockQuantity: n.StockQuantity,
		ReorderLevel:  n.ReorderLevel,
		MinimumLevel:  n.MinimumLevel,
		AlertDay:      n.AlertDay,
	})
	if errors.Is(err, jobs.ErrAlreadyQueued) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LogSink writes notices to the structured log. It serves deployments without a worker.
type LogSink struct {
	Logger *slog.Logger
}

// Notify implements Sink.
func (s LogSink) Notify(ctx context.Context, n Notice) (bool, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "low-stock alert",
		slog.Int64("alert_id", n.AlertID),
		slog.Int64("product_id", n.ProductID),
		slog.String("severity", string(n.Severity)),
		slog.Int64("stock_quantity", n.StockQuantity),
		slog.Int64("reorder_level", n.ReorderLevel),
		slog.Int64("minimum_level", n.MinimumLevel),
	)
	return true, nil
}
