package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/jobs"
)

// Trigger names accepted by JobsCLI.Trigger.
const (
	JobExpiry = "expiry"
	JobAudit  = "audit"
)

// Enqueuer submits the maintenance tasks.
type Enqueuer interface {
	EnqueueBatchExpiry(ctx context.Context, at time.Time) (*asynq.TaskInfo, error)
	EnqueueLedgerAudit(ctx context.Context, productID int64) (*asynq.TaskInfo, error)
}

// QueueReader reads queue health.
type QueueReader interface {
	Stats() ([]jobs.QueueHealth, error)
}

// Scheduler lists scheduled tasks of a queue.
type Scheduler interface {
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	queues    QueueReader
	scheduled Scheduler
}

// NewJobsCLI assembles the helpers from already opened clients.
func NewJobsCLI(client Enqueuer, queues QueueReader, scheduled Scheduler) *JobsCLI {
	return &JobsCLI{client: client, queues: queues, scheduled: scheduled}
}

// TriggerOptions parameterises Trigger.
type TriggerOptions struct {
	AsOf      time.Time
	ProductID int64
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case JobExpiry:
		return c.client.EnqueueBatchExpiry(ctx, opts.AsOf)
	case JobAudit:
		if opts.ProductID < 0 {
			return nil, fmt.Errorf("jobs cli: invalid product %d", opts.ProductID)
		}
		return c.client.EnqueueLedgerAudit(ctx, opts.ProductID)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// InspectQueues reports the health of every worker queue.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]jobs.QueueHealth, error) {
	if c == nil || c.queues == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	return c.queues.Stats()
}

// ListScheduled returns scheduled task infos of the default queue.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.scheduled == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.scheduled.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}
