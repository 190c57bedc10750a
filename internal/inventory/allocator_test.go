package inventory

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2026, 1, n, 8, 0, 0, 0, time.UTC)
}

func TestPlanConsumesOldestBatchFirst(t *testing.T) {
	batches := []Batch{
		{ID: 2, QuantityRemaining: 10, ReceivedAt: day(2), Active: true, UnitCost: decimal.NewFromInt(12), SupplierID: 9},
		{ID: 1, QuantityRemaining: 5, ReceivedAt: day(1), Active: true, UnitCost: decimal.NewFromInt(10), SupplierID: 8},
	}

	plan, err := Plan(1, 8, batches)
	require.NoError(t, err)
	require.Equal(t, int64(8), plan.Requested)
	require.Len(t, plan.Allocations, 2)

	require.Equal(t, int64(1), plan.Allocations[0].BatchID)
	require.Equal(t, int64(5), plan.Allocations[0].Quantity)
	require.Equal(t, int64(0), plan.Allocations[0].Remaining)
	require.Equal(t, int64(8), plan.Allocations[0].SupplierID)
	require.True(t, decimal.NewFromInt(10).Equal(plan.Allocations[0].UnitCost))

	require.Equal(t, int64(2), plan.Allocations[1].BatchID)
	require.Equal(t, int64(3), plan.Allocations[1].Quantity)
	require.Equal(t, int64(7), plan.Allocations[1].Remaining)

	require.Equal(t, int64(5), batches[1].QuantityRemaining, "plan must not mutate its input")
}

func TestPlanInsufficientStock(t *testing.T) {
	batches := []Batch{
		{ID: 1, QuantityRemaining: 5, ReceivedAt: day(1), Active: true},
		{ID: 2, QuantityRemaining: 10, ReceivedAt: day(2), Active: true},
	}

	_, err := Plan(4, 20, batches)
	require.ErrorIs(t, err, ErrInsufficientStock)
	var shortfall *InsufficientStockError
	require.True(t, errors.As(err, &shortfall))
	require.Equal(t, int64(4), shortfall.ProductID)
	require.Equal(t, int64(15), shortfall.Available)
	require.Equal(t, int64(20), shortfall.Requested)
}

func TestPlanBreaksTiesByBatchID(t *testing.T) {
	batches := []Batch{
		{ID: 7, QuantityRemaining: 3, ReceivedAt: day(1), Active: true},
		{ID: 4, QuantityRemaining: 3, ReceivedAt: day(1), Active: true},
	}

	plan, err := Plan(1, 4, batches)
	require.NoError(t, err)
	require.Equal(t, int64(4), plan.Allocations[0].BatchID)
	require.Equal(t, int64(3), plan.Allocations[0].Quantity)
	require.Equal(t, int64(7), plan.Allocations[1].BatchID)
	require.Equal(t, int64(1), plan.Allocations[1].Quantity)
}

func TestPlanSkipsInactiveAndEmptyBatches(t *testing.T) {
	batches := []Batch{
		{ID: 1, QuantityRemaining: 0, ReceivedAt: day(1), Active: true},
		{ID: 2, QuantityRemaining: 9, ReceivedAt: day(2), Active: false},
		{ID: 3, QuantityRemaining: 4, ReceivedAt: day(3), Active: true},
	}

	plan, err := Plan(1, 4, batches)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	require.Equal(t, int64(3), plan.Allocations[0].BatchID)

	_, err = Plan(1, 5, batches)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestPlanRejectsNonPositiveQuantity(t *testing.T) {
	_, err := Plan(1, 0, nil)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestBatchNumber(t *testing.T) {
	require.Equal(t, "PO42-P7-0003", BatchNumber(TransactionTypePurchase, 42, 7, 3))
	require.Equal(t, "RCV-P7-0001", BatchNumber(TransactionTypePurchase, 0, 7, 1))
	require.Equal(t, "RT-P7-0012", BatchNumber(TransactionTypeReturn, 42, 7, 12))
	require.Equal(t, "ADJ-P7-0002", BatchNumber(TransactionTypeAdjustment, 0, 7, 2))
	require.Equal(t, "OPEN-P7-0001", openingBatchNumber(7, 1))
}

func TestCheckDelta(t *testing.T) {
	require.NoError(t, TransactionTypePurchase.CheckDelta(5))
	require.ErrorIs(t, TransactionTypePurchase.CheckDelta(-5), ErrInvalidQuantity)
	require.NoError(t, TransactionTypeOnlineSale.CheckDelta(-1))
	require.ErrorIs(t, TransactionTypeOTCSale.CheckDelta(1), ErrInvalidQuantity)
	require.NoError(t, TransactionTypeAdjustment.CheckDelta(-3))
	require.NoError(t, TransactionTypeAdjustment.CheckDelta(3))
	require.ErrorIs(t, TransactionTypeReturn.CheckDelta(-2), ErrInvalidQuantity)
	require.ErrorIs(t, TransactionTypeAdjustment.CheckDelta(0), ErrInvalidQuantity)
}

func TestDeriveStatus(t *testing.T) {
	now := day(10)
	past := day(9)
	future := day(11)

	require.Equal(t, BatchStatusActive, Batch{QuantityRemaining: 3}.DeriveStatus(now))
	require.Equal(t, BatchStatusDepleted, Batch{QuantityRemaining: 0}.DeriveStatus(now))
	require.Equal(t, BatchStatusExpired, Batch{QuantityRemaining: 3, ExpiresAt: &past}.DeriveStatus(now))
	require.Equal(t, BatchStatusActive, Batch{QuantityRemaining: 3, ExpiresAt: &future}.DeriveStatus(now))
}
