package inventory

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Allocation is the deduction planned against one batch.
type Allocation struct {
	BatchID     int64
	BatchNumber string
	Quantity    int64
	Remaining   int64
	UnitCost    decimal.Decimal
	SupplierID  int64
}

// AllocationPlan is the ordered list of per-batch deductions covering a request.
type AllocationPlan struct {
	ProductID   int64
	Requested   int64
	Allocations []Allocation
}

// Plan selects batches oldest-received first, ties broken by batch id, and deducts from
// each until needed is covered. Inactive and empty batches are ignored. When the batches
// cannot cover needed an *InsufficientStockError is returned. Plan never mutates batches.
func Plan(productID, needed int64, batches []Batch) (AllocationPlan, error) {
	if needed <= 0 {
		return AllocationPlan{}, ErrInvalidQuantity
	}
	eligible := make([]Batch, 0, len(batches))
	var available int64
	for _, b := range batches {
		if !b.Active || b.QuantityRemaining <= 0 {
			continue
		}
		eligible = append(eligible, b)
		available += b.QuantityRemaining
	}
	if available < needed {
		return AllocationPlan{}, &InsufficientStockError{ProductID: productID, Available: available, Requested: needed}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if !eligible[i].ReceivedAt.Equal(eligible[j].ReceivedAt) {
			return eligible[i].ReceivedAt.Before(eligible[j].ReceivedAt)
		}
		return eligible[i].ID < eligible[j].ID
	})

	plan := AllocationPlan{ProductID: productID, Requested: needed}
	still := needed
	for _, b := range eligible {
		if still == 0 {
			break
		}
		take := min(b.QuantityRemaining, still)
		plan.Allocations = append(plan.Allocations, Allocation{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Quantity:    take,
			Remaining:   b.QuantityRemaining - take,
			UnitCost:    b.UnitCost,
			SupplierID:  b.SupplierID,
		})
		still -= take
	}
	return plan, nil
}

// Batch number prefixes for batches that do not come from a purchase order.
const (
	batchPrefixReturn     = "RT"
	batchPrefixAdjustment = "ADJ"
	batchPrefixReceipt    = "RCV"
	batchPrefixOpening    = "OPEN"
)

// BatchNumber renders the human-readable number of a product's seq-th batch. Purchase
// batches embed the purchase order id; other batches carry a prefix naming their origin.
func BatchNumber(txType TransactionType, purchaseOrderID, productID int64, seq int) string {
	if txType == TransactionTypePurchase && purchaseOrderID > 0 {
		return fmt.Sprintf("PO%d-P%d-%04d", purchaseOrderID, productID, seq)
	}
	prefix := batchPrefixReceipt
	switch txType {
	case TransactionTypeReturn:
		prefix = batchPrefixReturn
	case TransactionTypeAdjustment:
		prefix = batchPrefixAdjustment
	}
	return fmt.Sprintf("%s-P%d-%04d", prefix, productID, seq)
}

func openingBatchNumber(productID int64, seq int) string {
	return fmt.Sprintf("%s-P%d-%04d", batchPrefixOpening, productID, seq)
}
