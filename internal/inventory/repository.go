package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/alerts"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	productColumns = `id, sku, name, on_hand_quantity, reorder_level, minimum_stock_level, unit_cost,
batch_tracked, is_active, created_at, updated_at`
	batchColumns = `id, batch_number, product_id, sequence, supplier_id, purchase_order_id, quantity_received,
quantity_remaining, unit_cost, received_at, expires_at, is_active, created_at`
	movementColumns = `id, group_id, product_id, batch_id, movement_type, transaction_type, quantity,
quantity_before, quantity_after, unit_cost, supplier_id, reference_id, actor_id, notes, created_at`
)

// RepositoryConfig tunes ledger transactions.
type RepositoryConfig struct {
	LockTimeout time.Duration
}

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	cfg  RepositoryConfig
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, cfg RepositoryConfig) *Repository {
	return &Repository{pool: pool, cfg: cfg}
}

// TxRepository exposes the locked operations of one ledger transaction.
type TxRepository interface {
	// LockProducts locks the product rows in ascending id order.
	LockProducts(ctx context.Context, ids []int64) ([]Product, error)
	// LockActiveBatches locks the product's active batches in FIFO order.
	LockActiveBatches(ctx context.Context, productID int64) ([]Batch, error)
	LockBatch(ctx context.Context, batchID int64) (Batch, error)
	CountBatches(ctx context.Context, productID int64) (int, error)
	InsertBatch(ctx context.Context, batch Batch) (Batch, error)
	UpdateBatch(ctx context.Context, batchID, remaining int64, active bool) error
	SumActiveRemaining(ctx context.Context, productID int64) (int64, error)
	InsertMovement(ctx context.Context, movement Movement) (Movement, error)
	UpdateProductStock(ctx context.Context, productID, onHand int64, tracked bool) error
	UpdateProductSettings(ctx context.Context, productID int64, update ProductUpdate) (Product, error)
	Alerts() alerts.TxStore
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a READ COMMITTED transaction bounded by the configured lock timeout.
// Under READ COMMITTED a FOR UPDATE that waited on a concurrent writer re-reads the
// committed row instead of failing with a serialization error.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	opts := db.TxOptions{IsoLevel: pgx.ReadCommitted, LockTimeout: r.cfg.LockTimeout}
	return db.WithTx(ctx, r.pool, opts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetProduct loads a product without locking it.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// ListProductIDs returns every product id in ascending order.
func (r *Repository) ListProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ListBatches returns the product's batches in FIFO order.
func (r *Repository) ListBatches(ctx context.Context, productID int64, includeInactive bool) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE product_id=$1 AND ($2 OR is_active)
ORDER BY received_at, id`, productID, includeInactive)
	if err != nil {
		return nil, err
	}
	return collectBatches(rows)
}

// ListExpiredBatches returns active batches whose expiry is at or before asOf.
func (r *Repository) ListExpiredBatches(ctx context.Context, asOf time.Time) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
ORDER BY product_id, received_at, id`, asOf)
	if err != nil {
		return nil, err
	}
	return collectBatches(rows)
}

// ListMovements returns movements matching filter, most recent first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE ($1::bigint = 0 OR product_id = $1)
  AND ($2::bigint = 0 OR batch_id = $2)
  AND ($3::text = '' OR transaction_type = $3)
  AND ($4::timestamptz IS NULL OR created_at >= $4)
  AND ($5::timestamptz IS NULL OR created_at <= $5)
ORDER BY created_at DESC, id DESC
LIMIT $6`,
		filter.ProductID,
		filter.BatchID,
		string(filter.Type),
		pgtype.Timestamptz{Time: filter.From, Valid: !filter.From.IsZero()},
		pgtype.Timestamptz{Time: filter.To, Valid: !filter.To.IsZero()},
		shared.ClampPageSize(filter.Limit),
	)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

// ListProductMovements returns every movement of the product in commit order.
func (r *Repository) ListProductMovements(ctx context.Context, productID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE product_id=$1 ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

func (t *txRepo) LockProducts(ctx context.Context, ids []int64) ([]Product, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (t *txRepo) LockActiveBatches(ctx context.Context, productID int64) ([]Batch, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE product_id=$1 AND is_active
ORDER BY received_at, id
FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	return collectBatches(rows)
}

func (t *txRepo) LockBatch(ctx context.Context, batchID int64) (Batch, error) {
	b, err := scanBatch(t.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE id=$1 FOR UPDATE`, batchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return b, err
}

func (t *txRepo) CountBatches(ctx context.Context, productID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM stock_batches WHERE product_id=$1`, productID).Scan(&n)
	return n, err
}

func (t *txRepo) InsertBatch(ctx context.Context, b Batch) (Batch, error) {
	return scanBatch(t.tx.QueryRow(ctx, `INSERT INTO stock_batches
(batch_number, product_id, sequence, supplier_id, purchase_order_id, quantity_received, quantity_remaining,
 unit_cost, received_at, expires_at, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING `+batchColumns,
		b.BatchNumber, b.ProductID, b.Sequence, nullInt8(b.SupplierID), nullInt8(b.PurchaseOrderID),
		b.QuantityReceived, b.QuantityRemaining, numericFromDecimal(b.UnitCost), b.ReceivedAt, b.ExpiresAt, b.Active))
}

func (t *txRepo) UpdateBatch(ctx context.Context, batchID, remaining int64, active bool) error {
	tag, err := t.tx.Exec(ctx, `UPDATE stock_batches SET quantity_remaining=$2, is_active=$3, updated_at=NOW() WHERE id=$1`,
		batchID, remaining, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (t *txRepo) SumActiveRemaining(ctx context.Context, productID int64) (int64, error) {
	var sum int64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_remaining), 0)::bigint FROM stock_batches
WHERE product_id=$1 AND is_active`, productID).Scan(&sum)
	return sum, err
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	unitCost := pgtype.Numeric{}
	if m.UnitCost.Valid {
		unitCost = numericFromDecimal(m.UnitCost.Decimal)
	}
	return scanMovement(t.tx.QueryRow(ctx, `INSERT INTO stock_movements
(group_id, product_id, batch_id, movement_type, transaction_type, quantity, quantity_before, quantity_after,
 unit_cost, supplier_id, reference_id, actor_id, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING `+movementColumns,
		pgtype.UUID{Bytes: m.GroupID, Valid: true}, m.ProductID, nullInt8(m.BatchID), string(m.MovementType),
		string(m.TransactionType), m.Quantity, m.QuantityBefore, m.QuantityAfter, unitCost,
		nullInt8(m.SupplierID), m.ReferenceID, nullInt8(m.ActorID), m.Notes, m.CreatedAt))
}

func (t *txRepo) UpdateProductStock(ctx context.Context, productID, onHand int64, tracked bool) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET on_hand_quantity=$2, batch_tracked=$3, updated_at=NOW() WHERE id=$1`,
		productID, onHand, tracked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (t *txRepo) UpdateProductSettings(ctx context.Context, productID int64, update ProductUpdate) (Product, error) {
	unitCost := pgtype.Numeric{}
	if update.UnitCost != nil {
		unitCost = numericFromDecimal(*update.UnitCost)
	}
	p, err := scanProduct(t.tx.QueryRow(ctx, `UPDATE products SET
reorder_level = COALESCE($2::bigint, reorder_level),
minimum_stock_level = COALESCE($3::bigint, minimum_stock_level),
unit_cost = COALESCE($4::numeric, unit_cost),
is_active = COALESCE($5::boolean, is_active),
updated_at = NOW()
WHERE id=$1
RETURNING `+productColumns,
		productID, update.ReorderLevel, update.MinimumLevel, unitCost, update.Active))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("inventory: update product %d: %w", productID, err)
	}
	return p, nil
}

func (t *txRepo) Alerts() alerts.TxStore {
	return alerts.NewTxStore(t.tx)
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p        Product
		unitCost pgtype.Numeric
	)
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.OnHand, &p.ReorderLevel, &p.MinimumLevel, &unitCost,
		&p.BatchTracked, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.UnitCost = decimalFromNumeric(unitCost)
	return p, nil
}

func scanBatch(row pgx.Row) (Batch, error) {
	var (
		b          Batch
		supplierID pgtype.Int8
		poID       pgtype.Int8
		unitCost   pgtype.Numeric
	)
	err := row.Scan(&b.ID, &b.BatchNumber, &b.ProductID, &b.Sequence, &supplierID, &poID, &b.QuantityReceived,
		&b.QuantityRemaining, &unitCost, &b.ReceivedAt, &b.ExpiresAt, &b.Active, &b.CreatedAt)
	if err != nil {
		return Batch{}, err
	}
	b.SupplierID = supplierID.Int64
	b.PurchaseOrderID = poID.Int64
	b.UnitCost = decimalFromNumeric(unitCost)
	return b, nil
}

func collectBatches(rows pgx.Rows) ([]Batch, error) {
	defer rows.Close()
	batches := []Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func scanMovement(row pgx.Row) (Movement, error) {
	var (
		m          Movement
		groupID    pgtype.UUID
		batchID    pgtype.Int8
		supplierID pgtype.Int8
		actorID    pgtype.Int8
		unitCost   pgtype.Numeric
		movType    string
		txType     string
	)
	err := row.Scan(&m.ID, &groupID, &m.ProductID, &batchID, &movType, &txType, &m.Quantity,
		&m.QuantityBefore, &m.QuantityAfter, &unitCost, &supplierID, &m.ReferenceID, &actorID, &m.Notes, &m.CreatedAt)
	if err != nil {
		return Movement{}, err
	}
	m.GroupID = uuid.UUID(groupID.Bytes)
	m.BatchID = batchID.Int64
	m.SupplierID = supplierID.Int64
	m.ActorID = actorID.Int64
	m.MovementType = MovementType(movType)
	m.TransactionType = TransactionType(txType)
	if unitCost.Valid {
		m.UnitCost = decimal.NewNullDecimal(decimalFromNumeric(unitCost))
	}
	return m, nil
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func nullInt8(v int64) pgtype.Int8 {
	return pgtype.Int8{Int64: v, Valid: v != 0}
}

func numericFromDecimal(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func decimalFromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
