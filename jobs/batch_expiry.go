package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
)

// BatchExpiryPayload carries scheduling metadata. A zero ScheduledFor sweeps as of the
// time the task runs.
type BatchExpiryPayload struct {
	ScheduledFor time.Time `json:"scheduled_for,omitempty"`
}

// NewBatchExpiryTask constructs an Asynq task for the expiry sweep.
func NewBatchExpiryTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(BatchExpiryPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchExpirySweep, body, asynq.Queue(QueueDefault)), nil
}

// ExpirySweeper writes off expired batches.
type ExpirySweeper interface {
	ExpireBatches(ctx context.Context, asOf time.Time) (inventory.ExpirySummary, error)
}

// BatchExpiryJob runs the batch expiry sweep.
type BatchExpiryJob struct {
	sweeper ExpirySweeper
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewBatchExpiryJob constructs the job.
func NewBatchExpiryJob(sweeper ExpirySweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *BatchExpiryJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchExpiryJob{sweeper: sweeper, logger: logger, metrics: metrics, clock: time.Now}
}

// Handle processes TaskBatchExpirySweep tasks.
func (j *BatchExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskBatchExpirySweep)
	payload, err := decodePayload[BatchExpiryPayload](t)
	if err != nil {
		return tracker.End(err)
	}
	asOf := payload.ScheduledFor
	if asOf.IsZero() {
		asOf = j.clock()
	}
	summary, err := j.sweeper.ExpireBatches(ctx, asOf.UTC())
	j.logger.Info("batch expiry sweep",
		slog.Time("as_of", asOf.UTC()),
		slog.Int("products", summary.Products),
		slog.Int("batches", summary.Batches),
		slog.Int64("quantity", summary.Quantity),
		slog.Int("alerts", summary.Alerts),
	)
	if err != nil {
		j.logger.Error("batch expiry sweep incomplete", slog.Any("error", err))
	}
	return tracker.End(err)
}
