package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypeIn represents goods received into a warehouse.
	TransactionTypeIn TransactionType = "in"
	// TransactionTypeOut represents goods issued out of a warehouse.
	TransactionTypeOut TransactionType = "out"
	// TransactionTypeAdjustment records a stock take correction.
	TransactionTypeAdjustment TransactionType = "adjustment"
	// TransactionTypeTransfer is used for transfer legs between warehouses.
	TransactionTypeTransfer TransactionType = "transfer"
	// TransactionTypeExpired writes off a lot past its expiration date.
	TransactionTypeExpired TransactionType = "expired"
	// TransactionTypeDamaged writes off damaged goods.
	TransactionTypeDamaged TransactionType = "damaged"
)

// Valid reports whether the type is one of the enumerated kinds.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIn, TransactionTypeOut, TransactionTypeAdjustment,
		TransactionTypeTransfer, TransactionTypeExpired, TransactionTypeDamaged:
		return true
	}
	return false
}

// BalanceKey identifies one balance row. Two lots of the same ingredient in
// the same place with different batch or expiration are distinct inventory
// units and never merge.
type BalanceKey struct {
	IngredientID   int64
	StoreID        int64
	WarehouseID    int64
	BatchNumber    string
	ExpirationDate *time.Time
}

// Transaction is one immutable ledger entry. Quantity is signed: positive for
// inbound movements and upward adjustments, negative for outbound movements
// and downward adjustments. Rows are never updated or deleted; a reversal is
// its own compensating transaction.
type Transaction struct {
	ID               int64
	Type             TransactionType
	IngredientID     int64
	StoreID          int64
	WarehouseID      int64
	Quantity         decimal.Decimal
	Unit             string
	BatchNumber      string
	ExpirationDate   *time.Time
	CostPerUnit      decimal.NullDecimal
	TotalCost        decimal.Decimal
	PreviousQuantity decimal.NullDecimal
	NewQuantity      decimal.NullDecimal
	Reference        string
	UserID           int64
	OwnerID          int64
	Date             time.Time
	CreatedAt        time.Time
}

// Validate checks the ledger append contract: a known type, a non-zero
// quantity, and a sign matching the type.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if t.Quantity.IsZero() {
		return ErrInvalidQuantity
	}
	switch t.Type {
	case TransactionTypeIn:
		if t.Quantity.IsNegative() {
			return ErrInvalidQuantity
		}
	case TransactionTypeOut, TransactionTypeExpired, TransactionTypeDamaged:
		if t.Quantity.IsPositive() {
			return ErrInvalidQuantity
		}
	}
	return nil
}

// Balance is the mutable projection of the ledger for one key: current
// on-hand quantity and the weighted-average unit cost of that lot.
type Balance struct {
	ID                int64
	IngredientID      int64
	StoreID           int64
	WarehouseID       int64
	BatchNumber       string
	ExpirationDate    *time.Time
	Quantity          decimal.Decimal
	CostPerUnit       decimal.Decimal
	MinStock          decimal.NullDecimal
	MaxStock          decimal.NullDecimal
	LastTransactionID int64
	LastTransactionAt time.Time
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Key returns the identifying tuple of the balance row.
func (b Balance) Key() BalanceKey {
	return BalanceKey{
		IngredientID:   b.IngredientID,
		StoreID:        b.StoreID,
		WarehouseID:    b.WarehouseID,
		BatchNumber:    b.BatchNumber,
		ExpirationDate: b.ExpirationDate,
	}
}

// StockInInput describes a goods receipt.
type StockInInput struct {
	OwnerID        int64
	UserID         int64
	StoreID        int64
	WarehouseID    int64
	IngredientID   int64
	Quantity       decimal.Decimal
	Unit           string
	BatchNumber    string
	ExpirationDate *time.Time
	CostPerUnit    *decimal.Decimal
	Reference      string
	Date           time.Time
}

// StockOutInput describes a goods issue. When BatchNumber is empty the engine
// picks the earliest-expiring batch that alone satisfies the quantity.
type StockOutInput struct {
	OwnerID      int64
	UserID       int64
	StoreID      int64
	WarehouseID  int64
	IngredientID int64
	Quantity     decimal.Decimal
	Unit         string
	BatchNumber  string
	Reference    string
	Date         time.Time
}

// TransferInput moves a quantity between two warehouses of the same store.
// The moved lot keeps its batch, expiration and unit cost.
type TransferInput struct {
	OwnerID        int64
	UserID         int64
	StoreID        int64
	SrcWarehouseID int64
	DstWarehouseID int64
	IngredientID   int64
	Quantity       decimal.Decimal
	Unit           string
	BatchNumber    string
	Reference      string
	Date           time.Time
}

// WriteOffInput removes stock for a loss reason (expired or damaged goods).
type WriteOffInput struct {
	OwnerID      int64
	UserID       int64
	StoreID      int64
	WarehouseID  int64
	IngredientID int64
	Quantity     decimal.Decimal
	Unit         string
	BatchNumber  string
	Reason       TransactionType
	Reference    string
	Date         time.Time
}

// StockTakeInput describes a physical count against one balance row.
type StockTakeInput struct {
	OwnerID       int64
	UserID        int64
	StoreID       int64
	WarehouseID   int64
	IngredientID  int64
	PhysicalCount decimal.Decimal
	BatchNumber   string
	Reference     string
	Date          time.Time
}

// MovementResult pairs the appended transaction with the balance it produced.
type MovementResult struct {
	Transaction Transaction
	Balance     Balance
}

// TransferResult pairs the two legs of a warehouse transfer.
type TransferResult struct {
	Out MovementResult
	In  MovementResult
}

// StockTakeResult reports the applied adjustment. Transaction is nil when the
// physical count matched the book quantity and nothing was written.
type StockTakeResult struct {
	Transaction        *Transaction
	Balance            Balance
	AdjustmentQuantity decimal.Decimal
}

// BalanceFilter narrows balance listings.
type BalanceFilter struct {
	OwnerID         int64
	StoreID         int64
	WarehouseID     int64
	IngredientID    int64
	IncludeDepleted bool
}

// HistoryFilter narrows the ledger scan.
type HistoryFilter struct {
	OwnerID      int64
	StoreID      int64
	WarehouseID  int64
	IngredientID int64
	Type         TransactionType
	BatchNumber  string
	From         time.Time
	To           time.Time
}

// ReportFilter narrows derived reports. Zero fields match everything, so a
// background scan can pass an empty owner to cover all tenants.
type ReportFilter struct {
	OwnerID     int64
	StoreID     int64
	WarehouseID int64
}

// LowStockItem is one row of the low-stock report. Threshold is the balance's
// own minStock, falling back to the ingredient's configured minimum.
type LowStockItem struct {
	Balance        Balance
	IngredientName string
	Unit           string
	Threshold      decimal.Decimal
}

// ExpiryItem is one row of the expiring/expired reports.
type ExpiryItem struct {
	Balance        Balance
	IngredientName string
	Unit           string
	ExpiresAt      time.Time
}

// Summary aggregates the three derived reports for a dashboard view.
type Summary struct {
	LowStock []LowStockItem
	Expiring []ExpiryItem
	Expired  []ExpiryItem
}
