package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/alerts"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProductIDs(ctx context.Context) ([]int64, error)
	ListBatches(ctx context.Context, productID int64, includeInactive bool) ([]Batch, error)
	ListExpiredBatches(ctx context.Context, asOf time.Time) ([]Batch, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListProductMovements(ctx context.Context, productID int64) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards caller-supplied idempotency keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Notifier receives alerts raised by committed transactions. DispatchAlert must return
// without waiting for delivery.
type Notifier interface {
	DispatchAlert(alert alerts.Alert)
}

// Recorder receives ledger metrics.
type Recorder interface {
	ObserveApply(txType, outcome string, elapsed time.Duration)
	AlertCreated(severity string)
	IntegrityViolation()
	BatchesExpired(n int)
	LedgerVerified(ok bool, violations int)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// HealDrift persists the batch-derived aggregate with a correcting movement instead
	// of failing the transaction when the two disagree.
	HealDrift       bool
	HistoryPageSize int
}

// Option customises Service.
type Option func(*Service)

// WithAudit records committed transactions in the audit log.
func WithAudit(audit AuditPort) Option { return func(s *Service) { s.audit = audit } }

// WithIdempotency enables idempotency keys on ApplyMovements.
func WithIdempotency(store IdempotencyPort) Option {
	return func(s *Service) { s.idempotency = store }
}

// WithNotifier hands created alerts to n after commit.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithRecorder reports ledger metrics to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service is the stock ledger engine. It is the only writer of product quantities,
// batch remainders and movement rows.
type Service struct {
	repo        RepositoryPort
	generator   *alerts.Generator
	audit       AuditPort
	idempotency IdempotencyPort
	notifier    Notifier
	recorder    Recorder
	logger      *slog.Logger
	validate    *validator.Validate
	cfg         ServiceConfig
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, generator *alerts.Generator, cfg ServiceConfig, opts ...Option) *Service {
	if generator == nil {
		generator = alerts.NewGenerator(time.UTC)
	}
	s := &Service{
		repo:      repo,
		generator: generator,
		recorder:  nopRecorder{},
		logger:    slog.Default(),
		validate:  validator.New(),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	idempotencyModule = "inventory"

	referenceBatchExpiry     = "batch-expiry"
	referenceDriftCorrection = "drift-correction"
)

// ledgerOp carries the attributes shared by every row of one transaction.
type ledgerOp struct {
	groupID         uuid.UUID
	txType          TransactionType
	referenceID     string
	actorID         int64
	notes           string
	supplierID      int64
	purchaseOrderID int64
	receivedAt      time.Time
	now             time.Time
}

func (op ledgerOp) movement(productID, quantity, before int64) Movement {
	return Movement{
		GroupID:         op.groupID,
		ProductID:       productID,
		MovementType:    op.txType.MovementType(),
		TransactionType: op.txType,
		Quantity:        quantity,
		QuantityBefore:  before,
		QuantityAfter:   before + quantity,
		ReferenceID:     op.referenceID,
		ActorID:         op.actorID,
		Notes:           op.notes,
		CreatedAt:       op.now,
	}
}

// ApplyMovements applies every update as one transaction. Products are locked in
// ascending id order; any failure rolls back all of them. Alerts are evaluated inside
// the transaction and handed to the notifier only after commit.
func (s *Service) ApplyMovements(ctx context.Context, input ApplyInput) (ApplyResult, error) {
	start := s.now()
	result, err := s.applyMovements(ctx, input)
	s.recorder.ObserveApply(string(input.Type), outcomeFor(err), s.now().Sub(start))
	return result, err
}

func (s *Service) applyMovements(ctx context.Context, input ApplyInput) (ApplyResult, error) {
	if err := s.validateApply(input); err != nil {
		return ApplyResult{}, err
	}

	key := ""
	if input.IdempotencyKey != "" && s.idempotency != nil {
		key = fmt.Sprintf("%s:%s:%s", idempotencyModule, input.Type, input.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return ApplyResult{}, err
		}
	}

	now := s.now().UTC()
	op := ledgerOp{
		groupID:         uuid.New(),
		txType:          input.Type,
		referenceID:     input.ReferenceID,
		actorID:         input.ActorID,
		notes:           input.Notes,
		supplierID:      input.SupplierID,
		purchaseOrderID: input.PurchaseOrderID,
		receivedAt:      input.ReceivedAt.UTC(),
		now:             now,
	}
	if input.ReceivedAt.IsZero() {
		op.receivedAt = now
	}
	updates := sortedUpdates(input.Updates)

	var (
		results []MovementResult
		created []alerts.Alert
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		results, created = nil, nil
		products, err := lockProducts(ctx, tx, updates)
		if err != nil {
			return err
		}
		for _, upd := range updates {
			p := products[upd.ProductID]
			if !p.Active {
				return fmt.Errorf("%w: product %d", ErrProductInactive, p.ID)
			}
			res, err := s.applyUpdate(ctx, tx, op, p, upd)
			if err != nil {
				return err
			}
			alert, ok, err := s.generator.Evaluate(ctx, tx.Alerts(), p.Threshold(), p.OnHand)
			if err != nil {
				return err
			}
			if ok {
				res.Alert = &alert
				created = append(created, alert)
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(context.WithoutCancel(ctx), key)
		}
		return ApplyResult{}, err
	}

	s.afterCommit(ctx, op, results, created)
	return ApplyResult{GroupID: op.groupID, Results: results}, nil
}

func (s *Service) validateApply(input ApplyInput) error {
	if !input.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTransactionType, input.Type)
	}
	if len(input.Updates) == 0 {
		return fmt.Errorf("%w: no updates", shared.ErrValidation)
	}
	for _, upd := range input.Updates {
		if err := input.Type.CheckDelta(upd.Delta); err != nil {
			return fmt.Errorf("product %d: %w", upd.ProductID, err)
		}
		if upd.UnitCost.IsNegative() {
			return fmt.Errorf("product %d: %w", upd.ProductID, ErrInvalidUnitCost)
		}
		if upd.BatchID != 0 && (upd.Delta < 0 || (input.Type != TransactionTypeReturn && input.Type != TransactionTypeAdjustment)) {
			return fmt.Errorf("%w: batch %d cannot be named for %s of %d", ErrBatchMismatch, upd.BatchID, input.Type, upd.Delta)
		}
	}
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("inventory: %w: %s", shared.ErrValidation, err.Error())
	}
	return nil
}

// lockProducts locks every distinct product of updates and fails when any is missing.
func lockProducts(ctx context.Context, tx TxRepository, updates []StockUpdate) (map[int64]*Product, error) {
	ids := make([]int64, 0, len(updates))
	for _, upd := range updates {
		if len(ids) == 0 || ids[len(ids)-1] != upd.ProductID {
			ids = append(ids, upd.ProductID)
		}
	}
	locked, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	products := make(map[int64]*Product, len(locked))
	for i := range locked {
		products[locked[i].ID] = &locked[i]
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, fmt.Errorf("%w: product %d", ErrProductNotFound, id)
		}
	}
	return products, nil
}

// applyUpdate performs one product's change. p is updated in place with the new
// aggregate so later updates of the same product see it.
func (s *Service) applyUpdate(ctx context.Context, tx TxRepository, op ledgerOp, p *Product, upd StockUpdate) (MovementResult, error) {
	before := p.OnHand
	after := before + upd.Delta
	if after < 0 {
		return MovementResult{}, &InsufficientStockError{ProductID: p.ID, Available: before, Requested: -upd.Delta}
	}
	res := MovementResult{ProductID: p.ID, QuantityBefore: before, Delta: upd.Delta}

	if !p.BatchTracked && op.txType != TransactionTypePurchase {
		if upd.BatchID != 0 {
			return MovementResult{}, fmt.Errorf("%w: product %d has no batches", ErrBatchMismatch, p.ID)
		}
		m := op.movement(p.ID, upd.Delta, before)
		m.UnitCost = decimal.NewNullDecimal(costOr(upd.UnitCost, p.UnitCost))
		m, err := tx.InsertMovement(ctx, m)
		if err != nil {
			return MovementResult{}, err
		}
		if err := tx.UpdateProductStock(ctx, p.ID, after, false); err != nil {
			return MovementResult{}, err
		}
		p.OnHand = after
		res.MovementIDs = append(res.MovementIDs, m.ID)
		res.QuantityAfter = after
		return res, nil
	}

	if !p.BatchTracked {
		if err := s.openTracking(ctx, tx, op, p); err != nil {
			return MovementResult{}, err
		}
	}

	var err error
	switch {
	case upd.Delta < 0:
		err = s.consume(ctx, tx, op, p, -upd.Delta, &res)
	case upd.BatchID != 0:
		err = s.restore(ctx, tx, op, p, upd, &res)
	default:
		err = s.receive(ctx, tx, op, p, upd, &res)
	}
	if err != nil {
		return MovementResult{}, err
	}

	final, err := s.reconcile(ctx, tx, op, p, after, &res)
	if err != nil {
		return MovementResult{}, err
	}
	res.QuantityAfter = final
	return res, nil
}

// openTracking switches a product to batch tracking. Stock already on hand moves into an
// opening batch dated at product creation so FIFO consumes it first.
func (s *Service) openTracking(ctx context.Context, tx TxRepository, op ledgerOp, p *Product) error {
	if p.OnHand > 0 {
		n, err := tx.CountBatches(ctx, p.ID)
		if err != nil {
			return err
		}
		receivedAt := p.CreatedAt
		if receivedAt.IsZero() {
			receivedAt = op.now
		}
		b, err := tx.InsertBatch(ctx, Batch{
			BatchNumber:       openingBatchNumber(p.ID, n+1),
			ProductID:         p.ID,
			Sequence:          n + 1,
			QuantityReceived:  p.OnHand,
			QuantityRemaining: p.OnHand,
			UnitCost:          p.UnitCost,
			ReceivedAt:        receivedAt,
			Active:            true,
		})
		if err != nil {
			return err
		}
		s.logger.Info("opening batch created", slog.Int64("product_id", p.ID), slog.String("batch_number", b.BatchNumber), slog.Int64("quantity", p.OnHand))
	}
	p.BatchTracked = true
	return nil
}

// consume deducts quantity from the product's batches in FIFO order, one movement per
// batch touched.
func (s *Service) consume(ctx context.Context, tx TxRepository, op ledgerOp, p *Product, quantity int64, res *MovementResult) error {
	batches, err := tx.LockActiveBatches(ctx, p.ID)
	if err != nil {
		return err
	}
	plan, err := Plan(p.ID, quantity, batches)
	if err != nil {
		return err
	}
	byID := make(map[int64]Batch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}
	running := p.OnHand
	for _, a := range plan.Allocations {
		active := a.Remaining > 0
		if err := tx.UpdateBatch(ctx, a.BatchID, a.Remaining, active); err != nil {
			return err
		}
		m := op.movement(p.ID, -a.Quantity, running)
		m.BatchID = a.BatchID
		m.UnitCost = decimal.NewNullDecimal(a.UnitCost)
		m.SupplierID = a.SupplierID
		m, err := tx.InsertMovement(ctx, m)
		if err != nil {
			return err
		}
		running = m.QuantityAfter
		b := byID[a.BatchID]
		b.QuantityRemaining = a.Remaining
		b.Active = active
		res.Batches = append(res.Batches, BatchTouch{Batch: b, Quantity: -a.Quantity})
		res.MovementIDs = append(res.MovementIDs, m.ID)
	}
	p.OnHand = running
	return nil
}

// restore puts returned goods back into the batch they came from.
func (s *Service) restore(ctx context.Context, tx TxRepository, op ledgerOp, p *Product, upd StockUpdate, res *MovementResult) error {
	b, err := tx.LockBatch(ctx, upd.BatchID)
	if err != nil {
		return err
	}
	if b.ProductID != p.ID {
		return fmt.Errorf("%w: batch %d belongs to product %d", ErrBatchMismatch, b.ID, b.ProductID)
	}
	if b.QuantityRemaining+upd.Delta > b.QuantityReceived {
		return fmt.Errorf("%w: batch %s can take back at most %d", ErrInvalidQuantity, b.BatchNumber, b.QuantityReceived-b.QuantityRemaining)
	}
	b.QuantityRemaining += upd.Delta
	b.Active = true
	if err := tx.UpdateBatch(ctx, b.ID, b.QuantityRemaining, true); err != nil {
		return err
	}
	m := op.movement(p.ID, upd.Delta, p.OnHand)
	m.BatchID = b.ID
	m.UnitCost = decimal.NewNullDecimal(b.UnitCost)
	m.SupplierID = b.SupplierID
	m, err = tx.InsertMovement(ctx, m)
	if err != nil {
		return err
	}
	p.OnHand = m.QuantityAfter
	res.Batches = append(res.Batches, BatchTouch{Batch: b, Quantity: upd.Delta})
	res.MovementIDs = append(res.MovementIDs, m.ID)
	return nil
}

// receive creates a new batch holding the inbound quantity.
func (s *Service) receive(ctx context.Context, tx TxRepository, op ledgerOp, p *Product, upd StockUpdate, res *MovementResult) error {
	n, err := tx.CountBatches(ctx, p.ID)
	if err != nil {
		return err
	}
	seq := n + 1
	var supplierID, poID int64
	if op.txType == TransactionTypePurchase {
		supplierID, poID = op.supplierID, op.purchaseOrderID
	}
	b, err := tx.InsertBatch(ctx, Batch{
		BatchNumber:       BatchNumber(op.txType, poID, p.ID, seq),
		ProductID:         p.ID,
		Sequence:          seq,
		SupplierID:        supplierID,
		PurchaseOrderID:   poID,
		QuantityReceived:  upd.Delta,
		QuantityRemaining: upd.Delta,
		UnitCost:          costOr(upd.UnitCost, p.UnitCost),
		ReceivedAt:        op.receivedAt,
		ExpiresAt:         upd.ExpiresAt,
		Active:            true,
	})
	if err != nil {
		return err
	}
	m := op.movement(p.ID, upd.Delta, p.OnHand)
	m.BatchID = b.ID
	m.UnitCost = decimal.NewNullDecimal(b.UnitCost)
	m.SupplierID = b.SupplierID
	m, err = tx.InsertMovement(ctx, m)
	if err != nil {
		return err
	}
	p.OnHand = m.QuantityAfter
	b.Status = BatchStatusActive
	res.Batches = append(res.Batches, BatchTouch{Batch: b, Quantity: upd.Delta, Created: true})
	res.MovementIDs = append(res.MovementIDs, m.ID)
	return nil
}

// reconcile recomputes the aggregate from active batches and persists it. A mismatch
// with the incremental value fails the transaction unless HealDrift is set, in which
// case a correcting adjustment keeps the ledger replayable.
func (s *Service) reconcile(ctx context.Context, tx TxRepository, op ledgerOp, p *Product, expected int64, res *MovementResult) (int64, error) {
	sum, err := tx.SumActiveRemaining(ctx, p.ID)
	if err != nil {
		return 0, err
	}
	if sum != expected {
		s.recorder.IntegrityViolation()
		attrs := []any{
			slog.Int64("product_id", p.ID),
			slog.Int64("expected", expected),
			slog.Int64("recomputed", sum),
			slog.String("group_id", op.groupID.String()),
		}
		if !s.cfg.HealDrift {
			s.logger.Error("stock aggregate drift", attrs...)
			return 0, fmt.Errorf("inventory: product %d aggregate %d but active batches hold %d: %w", p.ID, expected, sum, shared.ErrIntegrityViolation)
		}
		s.logger.Error("stock aggregate drift healed", attrs...)
		fix := op.movement(p.ID, sum-expected, expected)
		fix.MovementType = MovementTypeAdjustment
		fix.TransactionType = TransactionTypeAdjustment
		fix.ReferenceID = referenceDriftCorrection
		fix.Notes = fmt.Sprintf("aggregate realigned with batches in group %s", op.groupID)
		fix, err := tx.InsertMovement(ctx, fix)
		if err != nil {
			return 0, err
		}
		if res != nil {
			res.MovementIDs = append(res.MovementIDs, fix.ID)
		}
		expected = sum
	}
	if err := tx.UpdateProductStock(ctx, p.ID, expected, true); err != nil {
		return 0, err
	}
	p.OnHand = expected
	p.BatchTracked = true
	return expected, nil
}

func (s *Service) afterCommit(ctx context.Context, op ledgerOp, results []MovementResult, created []alerts.Alert) {
	lines := 0
	for _, res := range results {
		lines += len(res.MovementIDs)
	}
	s.logger.Info("stock movements applied",
		slog.String("group_id", op.groupID.String()),
		slog.String("type", string(op.txType)),
		slog.String("reference_id", op.referenceID),
		slog.Int("products", len(results)),
		slog.Int("movements", lines),
	)
	if s.audit != nil {
		products := make([]int64, 0, len(results))
		for _, res := range results {
			products = append(products, res.ProductID)
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  op.actorID,
			Action:   "inventory:" + string(op.txType),
			Entity:   shared.AuditEntityMovementGroup,
			EntityID: op.groupID.String(),
			Meta: map[string]any{
				"reference_id": op.referenceID,
				"products":     products,
				"movements":    lines,
			},
		}); err != nil {
			s.logger.Warn("audit stock movements", slog.String("group_id", op.groupID.String()), slog.Any("error", err))
		}
	}
	for _, alert := range created {
		s.recorder.AlertCreated(string(alert.Severity))
		if s.notifier != nil {
			s.notifier.DispatchAlert(alert)
		}
	}
}

// CreateBatch receives goods into a new batch. It is a single-line purchase through
// ApplyMovements, so the aggregate, ledger and alerts stay consistent.
func (s *Service) CreateBatch(ctx context.Context, input CreateBatchInput) (Batch, error) {
	if err := s.validate.Struct(input); err != nil {
		return Batch{}, fmt.Errorf("inventory: %w: %s", shared.ErrValidation, err.Error())
	}
	ref := input.ReferenceID
	if ref == "" && input.PurchaseOrderID > 0 {
		ref = "po-" + strconv.FormatInt(input.PurchaseOrderID, 10)
	}
	result, err := s.ApplyMovements(ctx, ApplyInput{
		Type:            TransactionTypePurchase,
		ReferenceID:     ref,
		ActorID:         input.ActorID,
		SupplierID:      input.SupplierID,
		PurchaseOrderID: input.PurchaseOrderID,
		ReceivedAt:      input.ReceivedAt,
		Updates: []StockUpdate{{
			ProductID: input.ProductID,
			Delta:     input.Quantity,
			UnitCost:  input.UnitCost,
			ExpiresAt: input.ExpiresAt,
		}},
	})
	if err != nil {
		return Batch{}, err
	}
	for _, res := range result.Results {
		for _, touch := range res.Batches {
			if touch.Created {
				return touch.Batch, nil
			}
		}
	}
	return Batch{}, errors.New("inventory: purchase did not create a batch")
}

// GetBatchesForProduct lists the product's batches oldest first with their derived status.
func (s *Service) GetBatchesForProduct(ctx context.Context, productID int64, includeInactive bool) ([]Batch, error) {
	if productID <= 0 {
		return nil, ErrProductNotFound
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	batches, err := s.repo.ListBatches(ctx, productID, includeInactive)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range batches {
		batches[i].Status = batches[i].DeriveStatus(now)
	}
	return batches, nil
}

// GetMovementHistory lists movements most recent first, bounded to one page.
func (s *Service) GetMovementHistory(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTransactionType, filter.Type)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: range ends before it starts", ErrInvalidFilter)
	}
	if filter.ProductID < 0 || filter.BatchID < 0 {
		return nil, fmt.Errorf("%w: negative id", ErrInvalidFilter)
	}
	if filter.Limit <= 0 {
		filter.Limit = s.cfg.HistoryPageSize
	}
	filter.Limit = shared.ClampPageSize(filter.Limit)
	return s.repo.ListMovements(ctx, filter)
}

// UpdateProduct changes product settings. The update is validated against the merged
// result before anything is written.
func (s *Service) UpdateProduct(ctx context.Context, productID int64, update ProductUpdate, actorID int64) (Product, error) {
	if productID <= 0 {
		return Product{}, ErrProductNotFound
	}
	if update.Empty() {
		return Product{}, ErrEmptyUpdate
	}
	if err := s.validate.Struct(update); err != nil {
		return Product{}, fmt.Errorf("inventory: %w: %s", shared.ErrValidation, err.Error())
	}
	if update.UnitCost != nil && update.UnitCost.IsNegative() {
		return Product{}, ErrInvalidUnitCost
	}

	var updated Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockProducts(ctx, []int64{productID})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return ErrProductNotFound
		}
		current := locked[0]
		reorder, minimum := current.ReorderLevel, current.MinimumLevel
		if update.ReorderLevel != nil {
			reorder = *update.ReorderLevel
		}
		if update.MinimumLevel != nil {
			minimum = *update.MinimumLevel
		}
		if minimum > reorder {
			return fmt.Errorf("%w: minimum %d, reorder %d", ErrInvalidThresholds, minimum, reorder)
		}
		updated, err = tx.UpdateProductSettings(ctx, productID, update)
		return err
	})
	if err != nil {
		return Product{}, err
	}

	if s.audit != nil {
		meta := map[string]any{}
		if update.ReorderLevel != nil {
			meta["reorder_level"] = *update.ReorderLevel
		}
		if update.MinimumLevel != nil {
			meta["minimum_stock_level"] = *update.MinimumLevel
		}
		if update.UnitCost != nil {
			meta["unit_cost"] = update.UnitCost.String()
		}
		if update.Active != nil {
			meta["is_active"] = *update.Active
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "product:update",
			Entity:   shared.AuditEntityProduct,
			EntityID: strconv.FormatInt(productID, 10),
			Meta:     meta,
		}); err != nil {
			s.logger.Warn("audit product update", slog.Int64("product_id", productID), slog.Any("error", err))
		}
	}
	return updated, nil
}

func sortedUpdates(updates []StockUpdate) []StockUpdate {
	out := make([]StockUpdate, len(updates))
	copy(out, updates)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func costOr(cost, fallback decimal.Decimal) decimal.Decimal {
	if cost.IsZero() {
		return fallback
	}
	return cost
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, shared.ErrIntegrityViolation):
		return "integrity_violation"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveApply(string, string, time.Duration) {}
func (nopRecorder) AlertCreated(string) {}
func (nopRecorder) IntegrityViolation() {}
func (nopRecorder) BatchesExpired(int) {}
func (nopRecorder) LedgerVerified(bool, int) {}
