package stock

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidQuantity indicates a quantity outside the allowed range for the
// operation (non-positive request, zero adjustment, sign mismatch).
var ErrInvalidQuantity = errors.New("stock: invalid quantity")

// ErrInvalidCount indicates a negative physical count.
var ErrInvalidCount = errors.New("stock: physical count must not be negative")

// ErrInvalidCost indicates a negative unit cost.
var ErrInvalidCost = errors.New("stock: unit cost must not be negative")

// ErrInvalidType indicates an unknown transaction type.
var ErrInvalidType = errors.New("stock: unknown transaction type")

// ErrBalanceNotFound indicates no balance row matches the requested key.
var ErrBalanceNotFound = errors.New("stock: balance not found")

// ErrConflict indicates the conditional balance update lost a race with
// another writer. The engine retries the selection once before surfacing a
// caller-visible failure.
var ErrConflict = errors.New("stock: concurrent balance update conflict")

// ErrInsufficientStock is the sentinel matched by errors.Is for
// InsufficientStockError values.
var ErrInsufficientStock = errors.New("stock: insufficient stock")

// InsufficientStockError rejects a stock-out that exceeds the quantity of the
// selected batch. Available carries the best candidate's on-hand amount so the
// caller can retry with a smaller quantity or a different batch.
type InsufficientStockError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock: requested %s, available %s", e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
