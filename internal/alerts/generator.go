package alerts

import (
	"context"
	"fmt"
	"time"
)

// Generator decides whether a quantity transition raises a low-stock alert.
type Generator struct {
	loc *time.Location
	now func() time.Time
}

// GeneratorOption customises a Generator.
type GeneratorOption func(*Generator)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator builds a Generator whose calendar days are taken in loc.
func NewGenerator(loc *time.Location, opts ...GeneratorOption) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	g := &Generator{loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SeverityFor classifies quantity against the thresholds. The second result is false
// when the quantity is above the reorder level.
func SeverityFor(th Threshold, quantity int64) (Severity, bool) {
	if quantity > th.ReorderLevel {
		return "", false
	}
	if quantity <= th.MinimumLevel {
		return SeverityCritical, true
	}
	return SeverityWarning, true
}

// Day returns the calendar day of t in the generator's location, as a UTC midnight.
func (g *Generator) Day(t time.Time) time.Time {
	y, m, d := t.In(g.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Evaluate creates an alert when quantityAfter is at or below the reorder level and no
// unacknowledged alert exists for the product today. An existing open alert is left as
// is, even when the new quantity would grade it higher.
func (g *Generator) Evaluate(ctx context.Context, store TxStore, th Threshold, quantityAfter int64) (Alert, bool, error) {
	severity, triggered := SeverityFor(th, quantityAfter)
	if !triggered {
		return Alert{}, false, nil
	}
	now := g.now().UTC()
	day := g.Day(now)

	_, open, err := store.FindOpenForDay(ctx, th.ProductID, day)
	if err != nil {
		return Alert{}, false, fmt.Errorf("alerts: find open alert: %w", err)
	}
	if open {
		return Alert{}, false, nil
	}

	created, inserted, err := store.Insert(ctx, Alert{
		ProductID:     th.ProductID,
		StockQuantity: quantityAfter,
		ReorderLevel:  th.ReorderLevel,
		MinimumLevel:  th.MinimumLevel,
		Severity:      severity,
		AlertDay:      day,
		CreatedAt:     now,
	})
	if err != nil {
		return Alert{}, false, fmt.Errorf("alerts: insert alert: %w", err)
	}
	return created, inserted, nil
}
