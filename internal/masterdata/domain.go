package masterdata

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Store is a tenant-owned sales location.
type Store struct {
	ID        int64
	OwnerID   int64
	Code      string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Warehouse is a storage location attached to a store.
type Warehouse struct {
	ID        int64
	OwnerID   int64
	StoreID   int64
	Code      string
	Name      string
	Address   string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ingredient is a stock-managed raw material. AverageCost is a rolling,
// informational aggregate across all of the ingredient's lots; the
// authoritative per-lot cost lives on the stock balance.
type Ingredient struct {
	ID          int64
	OwnerID     int64
	Name        string
	Unit        string
	MinStock    decimal.NullDecimal
	MaxStock    decimal.NullDecimal
	AverageCost decimal.Decimal
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Scope bundles the records a stock operation acts on, all verified to belong
// to the same owner.
type Scope struct {
	Store      Store
	Warehouse  Warehouse
	Ingredient Ingredient
}

// ListFilter narrows masterdata listings.
type ListFilter struct {
	OwnerID int64
	Search  string
	Limit   int
}

// ErrOwnerMismatch indicates records resolved for different owners.
var ErrOwnerMismatch = errors.New("masterdata: records belong to different owners")
