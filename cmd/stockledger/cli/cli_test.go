package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/alerts"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/jobs"
)

type stubVerifier struct {
	reports map[int64]inventory.LedgerReport
}

func (s stubVerifier) VerifyLedger(ctx context.Context, productID int64) (inventory.LedgerReport, error) {
	r, ok := s.reports[productID]
	if !ok {
		return inventory.LedgerReport{}, inventory.ErrProductNotFound
	}
	return r, nil
}

func (s stubVerifier) VerifyAll(ctx context.Context) ([]inventory.LedgerReport, error) {
	out := make([]inventory.LedgerReport, 0, len(s.reports))
	for id := int64(1); id <= int64(len(s.reports)); id++ {
		out = append(out, s.reports[id])
	}
	return out, nil
}

type stubSweeper struct {
	asOf time.Time
	err  error
}

func (s *stubSweeper) ExpireBatches(ctx context.Context, asOf time.Time) (inventory.ExpirySummary, error) {
	s.asOf = asOf
	return inventory.ExpirySummary{Products: 1, Batches: 2, Quantity: 7}, s.err
}

func verifierWithDrift() stubVerifier {
	return stubVerifier{reports: map[int64]inventory.LedgerReport{
		1: {ProductID: 1, Movements: 3, Aggregate: 10, Replayed: 10},
		2: {ProductID: 2, Movements: 2, Aggregate: 9, Replayed: 8, Violations: []inventory.LedgerViolation{
			{Reason: "aggregate disagrees with fold", Expected: 8, Actual: 9},
		}},
	}}
}

func TestVerifyCommandJSON(t *testing.T) {
	c := NewLedgerCLI(verifierWithDrift(), nil)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := c.VerifyCommand(context.Background(), VerifyOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 10, code)
	require.Empty(t, stderr.String())

	var summary VerifySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Len(t, summary.Products, 2)
	require.Empty(t, summary.Products[0].Violations)
	require.Len(t, summary.Products[1].Violations, 1)
}

func TestVerifyCommandSingleProductHuman(t *testing.T) {
	c := NewLedgerCLI(verifierWithDrift(), nil)
	stdout := new(bytes.Buffer)

	code := c.VerifyCommand(context.Background(), VerifyOptions{ProductID: 1, Stdout: stdout})
	require.Equal(t, 0, code)
	require.Equal(t, "1 ledger(s) replay cleanly.\n", stdout.String())

	stdout.Reset()
	code = c.VerifyCommand(context.Background(), VerifyOptions{ProductID: 2, Stdout: stdout})
	require.Equal(t, 10, code)
	require.Contains(t, stdout.String(), " - aggregate disagrees with fold (expected 8, found 9)")
}

func TestVerifyCommandUnknownProduct(t *testing.T) {
	c := NewLedgerCLI(verifierWithDrift(), nil)
	stderr := new(bytes.Buffer)

	code := c.VerifyCommand(context.Background(), VerifyOptions{ProductID: 9, Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.True(t, strings.HasPrefix(stderr.String(), "ledger verify: "))
}

func TestExpireCommand(t *testing.T) {
	sweeper := &stubSweeper{}
	c := NewLedgerCLI(nil, sweeper)
	stdout := new(bytes.Buffer)
	asOf := time.Date(2026, 5, 20, 0, 0, 0, 0, time.FixedZone("WIB", 7*3600))

	code := c.ExpireCommand(context.Background(), ExpireOptions{AsOf: asOf, Stdout: stdout})
	require.Equal(t, 0, code)
	require.Equal(t, time.UTC, sweeper.asOf.Location())
	require.True(t, asOf.Equal(sweeper.asOf))
	require.Contains(t, stdout.String(), "expired 2 batch(es) of 1 product(s), 7 unit(s) written off")

	sweeper.err = errors.New("product 4: lock timeout")
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, c.ExpireCommand(context.Background(), ExpireOptions{Stdout: stdout, Stderr: stderr}))
}

type stubAdmin struct {
	open []alerts.Alert
}

func (s *stubAdmin) Acknowledge(ctx context.Context, alertID, actorID int64) (alerts.Alert, error) {
	for _, a := range s.open {
		if a.ID == alertID {
			at := time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)
			a.AcknowledgedBy = actorID
			a.AcknowledgedAt = &at
			return a, nil
		}
	}
	return alerts.Alert{}, alerts.ErrAlertNotFound
}

func (s *stubAdmin) ListOpen(ctx context.Context, filter alerts.ListFilter) ([]alerts.Alert, error) {
	return s.open, nil
}

func TestAlertsCommands(t *testing.T) {
	admin := &stubAdmin{open: []alerts.Alert{{
		ID: 4, ProductID: 8, Severity: alerts.SeverityWarning, StockQuantity: 9, ReorderLevel: 10, MinimumLevel: 2,
		AlertDay: time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC),
	}}}
	c := NewAlertsCLI(admin)

	stdout := new(bytes.Buffer)
	require.Equal(t, 0, c.ListCommand(context.Background(), ListOptions{Stdout: stdout}))
	require.Equal(t, "#4 warning product 8: 9 on hand (reorder 10, minimum 2) 2026-05-20\n", stdout.String())

	stdout.Reset()
	require.Equal(t, 0, c.AckCommand(context.Background(), AckOptions{AlertID: 4, ActorID: 3, Stdout: stdout}))
	require.Equal(t, "alert 4 for product 8 acknowledged by 3 at 2026-05-20T09:00:00Z\n", stdout.String())

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, c.AckCommand(context.Background(), AckOptions{AlertID: 5, ActorID: 3, Stdout: stdout, Stderr: stderr}))
	require.Equal(t, 1, c.AckCommand(context.Background(), AckOptions{Stdout: stdout, Stderr: stderr}))
}

type stubEnqueuer struct {
	expiry []time.Time
	audit  []int64
}

func (s *stubEnqueuer) EnqueueBatchExpiry(ctx context.Context, at time.Time) (*asynq.TaskInfo, error) {
	s.expiry = append(s.expiry, at)
	return &asynq.TaskInfo{ID: "expiry", Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) EnqueueLedgerAudit(ctx context.Context, productID int64) (*asynq.TaskInfo, error) {
	s.audit = append(s.audit, productID)
	return &asynq.TaskInfo{ID: "audit", Queue: jobs.QueueDefault}, nil
}

func TestJobsTrigger(t *testing.T) {
	enq := &stubEnqueuer{}
	c := NewJobsCLI(enq, nil, nil)
	ctx := context.Background()

	info, err := c.Trigger(ctx, JobExpiry, TriggerOptions{})
	require.NoError(t, err)
	require.Equal(t, "expiry", info.ID)

	_, err = c.Trigger(ctx, JobAudit, TriggerOptions{ProductID: 6})
	require.NoError(t, err)
	require.Equal(t, []int64{6}, enq.audit)

	_, err = c.Trigger(ctx, "reindex", TriggerOptions{})
	require.Error(t, err)

	_, err = c.InspectQueues(ctx)
	require.Error(t, err)
}
