package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/alerts"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ExpireBatches writes off every active batch whose expiry is at or before asOf. Each
// product is handled in its own transaction; failures are collected and the sweep
// continues with the next product.
func (s *Service) ExpireBatches(ctx context.Context, asOf time.Time) (ExpirySummary, error) {
	candidates, err := s.repo.ListExpiredBatches(ctx, asOf)
	if err != nil {
		return ExpirySummary{}, fmt.Errorf("inventory: list expired batches: %w", err)
	}
	var ids []int64
	for _, b := range candidates {
		if len(ids) == 0 || ids[len(ids)-1] != b.ProductID {
			ids = append(ids, b.ProductID)
		}
	}

	var (
		summary ExpirySummary
		errs    []error
	)
	for _, productID := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		batches, quantity, alerted, err := s.expireProduct(ctx, productID, asOf)
		if err != nil {
			s.logger.Error("batch expiry failed", slog.Int64("product_id", productID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("product %d: %w", productID, err))
			continue
		}
		if batches == 0 {
			continue
		}
		summary.Products++
		summary.Batches += batches
		summary.Quantity += quantity
		if alerted {
			summary.Alerts++
		}
	}
	s.recorder.BatchesExpired(summary.Batches)
	return summary, errors.Join(errs...)
}

func (s *Service) expireProduct(ctx context.Context, productID int64, asOf time.Time) (int, int64, bool, error) {
	op := ledgerOp{
		groupID:     uuid.New(),
		txType:      TransactionTypeAdjustment,
		referenceID: referenceBatchExpiry,
		notes:       "expired batch written off",
		now:         s.now().UTC(),
	}
	var (
		count    int
		quantity int64
		results  []MovementResult
		created  []alerts.Alert
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		count, quantity, results, created = 0, 0, nil, nil
		products, err := lockProducts(ctx, tx, []StockUpdate{{ProductID: productID}})
		if err != nil {
			return err
		}
		p := products[productID]
		batches, err := tx.LockActiveBatches(ctx, productID)
		if err != nil {
			return err
		}
		res := MovementResult{ProductID: p.ID, QuantityBefore: p.OnHand}
		running := p.OnHand
		for _, b := range batches {
			if !b.Expired(asOf) {
				continue
			}
			written := b.QuantityRemaining
			if written > 0 {
				if running < written {
					return fmt.Errorf("inventory: product %d aggregate %d below batch %s remaining %d: %w", p.ID, running, b.BatchNumber, written, shared.ErrIntegrityViolation)
				}
				m := op.movement(p.ID, -written, running)
				m.BatchID = b.ID
				m.UnitCost = decimal.NewNullDecimal(b.UnitCost)
				m.SupplierID = b.SupplierID
				m, err := tx.InsertMovement(ctx, m)
				if err != nil {
					return err
				}
				running = m.QuantityAfter
				res.MovementIDs = append(res.MovementIDs, m.ID)
			}
			if err := tx.UpdateBatch(ctx, b.ID, 0, false); err != nil {
				return err
			}
			b.QuantityRemaining = 0
			b.Active = false
			b.Status = BatchStatusExpired
			res.Batches = append(res.Batches, BatchTouch{Batch: b, Quantity: -written})
			count++
			quantity += written
		}
		if count == 0 {
			return nil
		}
		final, err := s.reconcile(ctx, tx, op, p, running, &res)
		if err != nil {
			return err
		}
		res.QuantityAfter = final
		res.Delta = final - res.QuantityBefore
		alert, ok, err := s.generator.Evaluate(ctx, tx.Alerts(), p.Threshold(), final)
		if err != nil {
			return err
		}
		if ok {
			res.Alert = &alert
			created = append(created, alert)
		}
		results = append(results, res)
		return nil
	})
	if err != nil {
		return 0, 0, false, err
	}
	if count > 0 {
		s.afterCommit(ctx, op, results, created)
	}
	return count, quantity, len(created) > 0, nil
}
