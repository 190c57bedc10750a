package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RepositoryPort abstracts alert persistence used by the service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Alert, error)
	Acknowledge(ctx context.Context, id, actorID int64, at time.Time) (Alert, error)
	ListOpen(ctx context.Context, filter ListFilter) ([]Alert, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes administrative alert operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Acknowledge marks the alert as seen by actorID. A second acknowledgment fails with
// ErrAlreadyAcknowledged and leaves the first actor and timestamp untouched.
func (s *Service) Acknowledge(ctx context.Context, alertID, actorID int64) (Alert, error) {
	if alertID <= 0 {
		return Alert{}, ErrAlertNotFound
	}
	if actorID <= 0 {
		return Alert{}, ErrInvalidActor
	}
	alert, err := s.repo.Acknowledge(ctx, alertID, actorID, s.now().UTC())
	if err != nil {
		return Alert{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "alert:acknowledge",
			Entity:   shared.AuditEntityAlert,
			EntityID: strconv.FormatInt(alert.ID, 10),
			Meta: map[string]any{
				"product_id": alert.ProductID,
				"severity":   string(alert.Severity),
			},
		}); err != nil {
			s.logger.Warn("audit alert acknowledgment", slog.Int64("alert_id", alert.ID), slog.Any("error", err))
		}
	}
	return alert, nil
}

// Get loads one alert.
func (s *Service) Get(ctx context.Context, alertID int64) (Alert, error) {
	if alertID <= 0 {
		return Alert{}, ErrAlertNotFound
	}
	return s.repo.Get(ctx, alertID)
}

// ListOpen lists unacknowledged alerts.
func (s *Service) ListOpen(ctx context.Context, filter ListFilter) ([]Alert, error) {
	return s.repo.ListOpen(ctx, filter)
}

// MarkNotified flags the alert's notification as delivered.
func (s *Service) MarkNotified(ctx context.Context, alertID int64) error {
	if err := s.repo.MarkNotified(ctx, alertID, s.now().UTC()); err != nil {
		return fmt.Errorf("alerts: mark notified %d: %w", alertID, err)
	}
	return nil
}
