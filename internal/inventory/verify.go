package inventory

import (
	"context"
	"fmt"
	"log/slog"
)

// VerifyLedger replays the product's movements and compares them with the aggregate.
func (s *Service) VerifyLedger(ctx context.Context, productID int64) (LedgerReport, error) {
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return LedgerReport{}, err
	}
	movements, err := s.repo.ListProductMovements(ctx, productID)
	if err != nil {
		return LedgerReport{}, fmt.Errorf("inventory: list movements of product %d: %w", productID, err)
	}
	report := Replay(p.ID, p.OnHand, movements)
	s.recorder.LedgerVerified(report.OK(), len(report.Violations))
	if !report.OK() {
		s.logger.Error("ledger replay mismatch",
			slog.Int64("product_id", p.ID),
			slog.Int64("aggregate", report.Aggregate),
			slog.Int64("replayed", report.Replayed),
			slog.Int("violations", len(report.Violations)),
		)
	}
	return report, nil
}

// VerifyAll replays the ledger of every product.
func (s *Service) VerifyAll(ctx context.Context) ([]LedgerReport, error) {
	ids, err := s.repo.ListProductIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("inventory: list products: %w", err)
	}
	reports := make([]LedgerReport, 0, len(ids))
	for _, id := range ids {
		report, err := s.VerifyLedger(ctx, id)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Replay folds movements in commit order starting from the first quantity_before. Every
// row must continue the previous row's result and end at its own quantity_after; the
// fold must end at aggregate.
func Replay(productID, aggregate int64, movements []Movement) LedgerReport {
	report := LedgerReport{ProductID: productID, Movements: len(movements), Aggregate: aggregate}
	if len(movements) == 0 {
		if aggregate != 0 {
			report.Violations = append(report.Violations, LedgerViolation{Reason: "aggregate without movements", Expected: 0, Actual: aggregate})
		}
		return report
	}
	running := movements[0].QuantityBefore
	for _, m := range movements {
		if m.QuantityBefore != running {
			report.Violations = append(report.Violations, LedgerViolation{MovementID: m.ID, Reason: "quantity_before breaks chain", Expected: running, Actual: m.QuantityBefore})
		}
		running += m.Quantity
		if m.QuantityAfter != running {
			report.Violations = append(report.Violations, LedgerViolation{MovementID: m.ID, Reason: "quantity_after disagrees with fold", Expected: running, Actual: m.QuantityAfter})
		}
	}
	report.Replayed = running
	if running != aggregate {
		report.Violations = append(report.Violations, LedgerViolation{Reason: "aggregate disagrees with fold", Expected: running, Actual: aggregate})
	}
	return report
}
