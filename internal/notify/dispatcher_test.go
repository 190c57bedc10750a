package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/alerts"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/jobs"
)

type recordingSink struct {
	mu      sync.Mutex
	notices []Notice
	err     error
	panics  bool
	block   bool
}

func (s *recordingSink) Notify(ctx context.Context, n Notice) (bool, error) {
	if s.panics {
		panic("sink exploded")
	}
	if s.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	return true, s.err
}

func sampleAlert(id int64) alerts.Alert {
	return alerts.Alert{
		ID:            id,
		ProductID:     4,
		StockQuantity: 3,
		ReorderLevel:  10,
		MinimumLevel:  5,
		Severity:      alerts.SeverityCritical,
		AlertDay:      time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestDispatcherDeliversNotice(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, time.Second, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	d.DispatchAlert(sampleAlert(1))
	d.DispatchAlert(sampleAlert(2))
	d.Wait()

	require.Len(t, sink.notices, 2)
	ids := []int64{sink.notices[0].AlertID, sink.notices[1].AlertID}
	require.ElementsMatch(t, []int64{1, 2}, ids)
	require.Equal(t, alerts.SeverityCritical, sink.notices[0].Severity)
}

func TestDispatcherSwallowsSinkFailures(t *testing.T) {
	for name, sink := range map[string]*recordingSink{
		"error": {err: errors.New("queue down")},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			d := NewDispatcher(sink, time.Second, nil, nil)
			require.NotPanics(t, func() {
				d.DispatchAlert(sampleAlert(1))
				d.Wait()
			})
		})
	}
}

func TestDispatcherBoundsSlowSinks(t *testing.T) {
	d := NewDispatcher(&recordingSink{block: true}, 100*time.Millisecond, nil, nil)

	start := time.Now()
	d.DispatchAlert(sampleAlert(1))
	require.Less(t, time.Since(start), 50*time.Millisecond, "dispatch must not wait for the sink")
	d.Wait()
	require.Less(t, time.Since(start), time.Second)
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	d.DispatchAlert(sampleAlert(1))
	d.Wait()
}

type fakeEnqueuer struct {
	payloads []jobs.LowStockNotifyPayload
	seen     map[int64]bool
}

func (f *fakeEnqueuer) EnqueueLowStockNotify(ctx context.Context, payload jobs.LowStockNotifyPayload) (*asynq.TaskInfo, error) {
	if f.seen == nil {
		f.seen = map[int64]bool{}
	}
	if f.seen[payload.AlertID] {
		return nil, jobs.ErrAlreadyQueued
	}
	f.seen[payload.AlertID] = true
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func TestQueueSinkTreatsDuplicateAsDelivered(t *testing.T) {
	enq := &fakeEnqueuer{}
	sink := NewQueueSink(enq)
	notice := NoticeFromAlert(sampleAlert(9))

	fresh, err := sink.Notify(context.Background(), notice)
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = sink.Notify(context.Background(), notice)
	require.NoError(t, err)
	require.False(t, fresh)

	require.Len(t, enq.payloads, 1)
	require.Equal(t, jobs.LowStockNotifyPayload{
		AlertID:       9,
		ProductID:     4,
		Severity:      "critical",
		StockQuantity: 3,
		ReorderLevel:  10,
		MinimumLevel:  5,
		AlertDay:      time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC),
	}, enq.payloads[0])
}
