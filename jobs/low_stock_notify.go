package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/stockledger/internal/alerts"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
)

// DefaultDeliveryMarkerTTL bounds how long a delivered alert is remembered in Redis.
const DefaultDeliveryMarkerTTL = 72 * time.Hour

// Message is a rendered low-stock notification.
type Message struct {
	AlertID   int64
	ProductID int64
	Severity  string
	Subject   string
	Body      string
}

// Deliverer hands a rendered message to an outside channel.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

// AlertMarker flags an alert's notification as sent.
type AlertMarker interface {
	MarkNotified(ctx context.Context, alertID int64) error
}

// LowStockNotifyJob delivers one notification per alert. A Redis marker keeps retried
// or duplicated tasks from delivering twice.
type LowStockNotifyJob struct {
	redis     redis.Cmdable
	deliverer Deliverer
	alerts    AlertMarker
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
	printer   *message.Printer
	ttl       time.Duration
}

// LowStockNotifyConfig collects the job's dependencies.
type LowStockNotifyConfig struct {
	Redis     redis.Cmdable
	Deliverer Deliverer
	Alerts    AlertMarker
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Language  language.Tag
	MarkerTTL time.Duration
}

// NewLowStockNotifyJob constructs the job.
func NewLowStockNotifyJob(cfg LowStockNotifyConfig) (*LowStockNotifyJob, error) {
	if cfg.Redis == nil {
		return nil, errors.New("jobs: low-stock notify requires redis")
	}
	if cfg.Deliverer == nil {
		return nil, errors.New("jobs: low-stock notify requires a deliverer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tag := cfg.Language
	if tag == language.Und {
		tag = language.English
	}
	ttl := cfg.MarkerTTL
	if ttl <= 0 {
		ttl = DefaultDeliveryMarkerTTL
	}
	return &LowStockNotifyJob{
		redis:     cfg.Redis,
		deliverer: cfg.Deliverer,
		alerts:    cfg.Alerts,
		logger:    logger,
		metrics:   cfg.Metrics,
		printer:   message.NewPrinter(tag),
		ttl:       ttl,
	}, nil
}

// Handle processes TaskLowStockNotify tasks.
func (j *LowStockNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskLowStockNotify)
	payload, err := decodePayload[LowStockNotifyPayload](t)
	if err != nil {
		return tracker.End(err)
	}
	if payload.AlertID <= 0 {
		return tracker.End(fmt.Errorf("jobs: low-stock notify without alert id: %w", asynq.SkipRetry))
	}
	return tracker.End(j.deliver(ctx, payload))
}

func (j *LowStockNotifyJob) deliver(ctx context.Context, payload LowStockNotifyPayload) error {
	key := deliveryKey(payload.AlertID)
	claimed, err := cache.MarkOnce(ctx, j.redis, key, j.ttl)
	if err != nil {
		j.metrics.AddNotification("deliver", "error")
		return err
	}
	if !claimed {
		j.metrics.AddNotification("deliver", "duplicate")
		j.logger.Debug("low-stock notification already delivered", slog.Int64("alert_id", payload.AlertID))
		return j.markNotified(ctx, payload.AlertID)
	}

	msg := j.Render(payload)
	if err := j.deliverer.Deliver(ctx, msg); err != nil {
		j.metrics.AddNotification("deliver", "error")
		if ferr := cache.Forget(ctx, j.redis, key); ferr != nil {
			j.logger.Warn("release delivery marker", slog.Int64("alert_id", payload.AlertID), slog.Any("error", ferr))
		}
		return fmt.Errorf("jobs: deliver alert %d: %w", payload.AlertID, err)
	}
	j.metrics.AddNotification("deliver", "sent")
	return j.markNotified(ctx, payload.AlertID)
}

func (j *LowStockNotifyJob) markNotified(ctx context.Context, alertID int64) error {
	if j.alerts == nil {
		return nil
	}
	err := j.alerts.MarkNotified(ctx, alertID)
	if errors.Is(err, alerts.ErrAlertNotFound) {
		j.logger.Warn("notified alert no longer exists", slog.Int64("alert_id", alertID))
		return nil
	}
	return err
}

// Render formats the notification text for payload.
func (j *LowStockNotifyJob) Render(payload LowStockNotifyPayload) Message {
	day := payload.AlertDay.Format(time.DateOnly)
	subject := j.printer.Sprintf("[%s] Low stock for product %d", payload.Severity, payload.ProductID)
	body := j.printer.Sprintf("Product %d has %d units on hand on %s. Reorder level is %d, minimum level is %d.",
		payload.ProductID, payload.StockQuantity, day, payload.ReorderLevel, payload.MinimumLevel)
	return Message{
		AlertID:   payload.AlertID,
		ProductID: payload.ProductID,
		Severity:  payload.Severity,
		Subject:   subject,
		Body:      body,
	}
}

func deliveryKey(alertID int64) string {
	return fmt.Sprintf("stockledger:notify:alert:%d", alertID)
}

// LogDeliverer writes notifications to the structured log.
type LogDeliverer struct {
	Logger *slog.Logger
}

// Deliver implements Deliverer.
func (d LogDeliverer) Deliver(ctx context.Context, msg Message) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, msg.Subject,
		slog.Int64("alert_id", msg.AlertID),
		slog.Int64("product_id", msg.ProductID),
		slog.String("severity", msg.Severity),
		slog.String("body", msg.Body),
	)
	return nil
}
