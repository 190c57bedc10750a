package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

const alertColumns = `id, product_id, stock_quantity, reorder_level, minimum_level, severity, alert_day,
COALESCE(acknowledged_by, 0), acknowledged_at, notification_sent, notified_at, created_at`

// Repository persists alerts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a single alert.
func (r *Repository) Get(ctx context.Context, id int64) (Alert, error) {
	if r == nil {
		return Alert{}, errors.New("alerts repository not initialised")
	}
	alert, err := scanAlert(r.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM low_stock_alerts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, ErrAlertNotFound
	}
	return alert, err
}

// Acknowledge moves an unacknowledged alert to acknowledged. The guarded UPDATE makes the
// transition exclusive: only one caller can match the `acknowledged_at IS NULL` row.
func (r *Repository) Acknowledge(ctx context.Context, id, actorID int64, at time.Time) (Alert, error) {
	if r == nil {
		return Alert{}, errors.New("alerts repository not initialised")
	}
	alert, err := scanAlert(r.pool.QueryRow(ctx, `UPDATE low_stock_alerts SET acknowledged_by=$2, acknowledged_at=$3
WHERE id=$1 AND acknowledged_at IS NULL
RETURNING `+alertColumns, id, actorID, at))
	if err == nil {
		return alert, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, err
	}
	if _, err := r.Get(ctx, id); err != nil {
		return Alert{}, err
	}
	return Alert{}, ErrAlreadyAcknowledged
}

// ListOpen returns unacknowledged alerts, newest first.
func (r *Repository) ListOpen(ctx context.Context, filter ListFilter) ([]Alert, error) {
	if r == nil {
		return nil, errors.New("alerts repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+alertColumns+` FROM low_stock_alerts
WHERE acknowledged_at IS NULL AND ($1::bigint = 0 OR product_id = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2`, filter.ProductID, shared.ClampPageSize(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, alert)
	}
	return result, rows.Err()
}

// MarkNotified records that the notification for the alert was delivered.
func (r *Repository) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	if r == nil {
		return errors.New("alerts repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE low_stock_alerts SET notification_sent=TRUE, notified_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

// NewTxStore binds alert persistence to an open transaction.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

func (s *txStore) FindOpenForDay(ctx context.Context, productID int64, day time.Time) (Alert, bool, error) {
	alert, err := scanAlert(s.tx.QueryRow(ctx, `SELECT `+alertColumns+` FROM low_stock_alerts
WHERE product_id=$1 AND alert_day=$2 AND acknowledged_at IS NULL
LIMIT 1`, productID, day))
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, false, nil
	}
	if err != nil {
		return Alert{}, false, err
	}
	return alert, true, nil
}

func (s *txStore) Insert(ctx context.Context, alert Alert) (Alert, bool, error) {
	created, err := scanAlert(s.tx.QueryRow(ctx, `INSERT INTO low_stock_alerts
(product_id, stock_quantity, reorder_level, minimum_level, severity, alert_day, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (product_id, alert_day) WHERE acknowledged_at IS NULL DO NOTHING
RETURNING `+alertColumns,
		alert.ProductID, alert.StockQuantity, alert.ReorderLevel, alert.MinimumLevel, string(alert.Severity), alert.AlertDay, alert.CreatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, false, nil
	}
	if err != nil {
		return Alert{}, false, err
	}
	return created, true, nil
}

func scanAlert(row pgx.Row) (Alert, error) {
	var (
		alert    Alert
		severity string
	)
	err := row.Scan(&alert.ID, &alert.ProductID, &alert.StockQuantity, &alert.ReorderLevel, &alert.MinimumLevel, &severity,
		&alert.AlertDay, &alert.AcknowledgedBy, &alert.AcknowledgedAt, &alert.NotificationSent, &alert.NotifiedAt, &alert.CreatedAt)
	if err != nil {
		return Alert{}, err
	}
	alert.Severity = Severity(severity)
	return alert, nil
}
