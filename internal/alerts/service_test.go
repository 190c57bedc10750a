package alerts

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	alerts map[int64]Alert
}

func newMemoryRepo(alerts ...Alert) *memoryRepo {
	repo := &memoryRepo{alerts: make(map[int64]Alert)}
	for _, a := range alerts {
		repo.alerts[a.ID] = a
	}
	return repo
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return Alert{}, ErrAlertNotFound
	}
	return a, nil
}

func (r *memoryRepo) Acknowledge(ctx context.Context, id, actorID int64, at time.Time) (Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return Alert{}, ErrAlertNotFound
	}
	if a.Acknowledged() {
		return Alert{}, ErrAlreadyAcknowledged
	}
	a.AcknowledgedBy = actorID
	a.AcknowledgedAt = &at
	r.alerts[id] = a
	return a, nil
}

func (r *memoryRepo) ListOpen(ctx context.Context, filter ListFilter) ([]Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Alert
	for _, a := range r.alerts {
		if a.Acknowledged() {
			continue
		}
		if filter.ProductID != 0 && a.ProductID != filter.ProductID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryRepo) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	a.NotificationSent = true
	a.NotifiedAt = &at
	r.alerts[id] = a
	return nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func TestAcknowledgeTwiceConflicts(t *testing.T) {
	repo := newMemoryRepo(Alert{ID: 1, ProductID: 9, Severity: SeverityWarning})
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)
	ctx := context.Background()

	first, err := svc.Acknowledge(ctx, 1, 42)
	require.NoError(t, err)
	require.True(t, first.Acknowledged())
	require.Equal(t, int64(42), first.AcknowledgedBy)

	_, err = svc.Acknowledge(ctx, 1, 77)
	require.ErrorIs(t, err, ErrAlreadyAcknowledged)
	require.ErrorIs(t, err, shared.ErrConflict)

	stored, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(42), stored.AcknowledgedBy)
	require.Equal(t, *first.AcknowledgedAt, *stored.AcknowledgedAt)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "alert:acknowledge", audit.logs[0].Action)
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.Acknowledge(context.Background(), 99, 1)
	require.ErrorIs(t, err, ErrAlertNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Acknowledge(context.Background(), 0, 1)
	require.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAcknowledgeRequiresActor(t *testing.T) {
	svc := NewService(newMemoryRepo(Alert{ID: 1}), nil, nil)

	_, err := svc.Acknowledge(context.Background(), 1, 0)
	require.ErrorIs(t, err, ErrInvalidActor)
}

func TestConcurrentAcknowledgeHasSingleWinner(t *testing.T) {
	repo := newMemoryRepo(Alert{ID: 5, ProductID: 1})
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for actor := int64(1); actor <= 8; actor++ {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			if _, err := svc.Acknowledge(ctx, 5, actor); err == nil {
				wins.Add(1)
			} else if err == ErrAlreadyAcknowledged {
				conflicts.Add(1)
			}
		}(actor)
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(7), conflicts.Load())
}

func TestMarkNotified(t *testing.T) {
	repo := newMemoryRepo(Alert{ID: 3})
	svc := NewService(repo, nil, nil)

	require.NoError(t, svc.MarkNotified(context.Background(), 3))
	stored, err := svc.Get(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, stored.NotificationSent)
	require.NotNil(t, stored.NotifiedAt)

	require.ErrorIs(t, svc.MarkNotified(context.Background(), 4), ErrAlertNotFound)
}

func TestListOpenSkipsAcknowledged(t *testing.T) {
	at := time.Now()
	repo := newMemoryRepo(
		Alert{ID: 1, ProductID: 1},
		Alert{ID: 2, ProductID: 2},
		Alert{ID: 3, ProductID: 1, AcknowledgedAt: &at, AcknowledgedBy: 4},
	)
	svc := NewService(repo, nil, nil)

	open, err := svc.ListOpen(context.Background(), ListFilter{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, int64(1), open[0].ID)
}
