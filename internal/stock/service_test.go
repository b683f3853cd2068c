package stock

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mise-erp/mise-erp/internal/masterdata"
)

type fakeRepo struct {
	mu       sync.Mutex
	balances map[int64]*Balance
	txns     []Transaction
	nextBal  int64
	nextTxn  int64

	// decreaseConflicts forces the next N Decrease calls to fail as if a
	// concurrent writer raced the selection.
	decreaseConflicts int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{balances: map[int64]*Balance{}}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapBalances := make(map[int64]*Balance, len(f.balances))
	for id, b := range f.balances {
		cp := *b
		snapBalances[id] = &cp
	}
	snapTxns := append([]Transaction(nil), f.txns...)
	snapBal, snapTxn := f.nextBal, f.nextTxn

	if err := fn(ctx, &fakeTx{repo: f}); err != nil {
		f.balances = snapBalances
		f.txns = snapTxns
		f.nextBal, f.nextTxn = snapBal, snapTxn
		return err
	}
	return nil
}

type fakeTx struct {
	repo *fakeRepo
}

func (t *fakeTx) InsertTransaction(_ context.Context, txn Transaction) (Transaction, error) {
	if err := txn.Validate(); err != nil {
		return Transaction{}, err
	}
	t.repo.nextTxn++
	txn.ID = t.repo.nextTxn
	txn.CreatedAt = time.Now().UTC()
	t.repo.txns = append(t.repo.txns, txn)
	return txn, nil
}

func sameExpiration(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (t *fakeTx) UpsertIncrease(_ context.Context, key BalanceKey, qty decimal.Decimal, costPerUnit, minStock, maxStock decimal.NullDecimal) (Balance, error) {
	for _, b := range t.repo.balances {
		if b.IngredientID == key.IngredientID && b.StoreID == key.StoreID && b.WarehouseID == key.WarehouseID &&
			b.BatchNumber == key.BatchNumber && sameExpiration(b.ExpirationDate, key.ExpirationDate) {
			newQty := b.Quantity.Add(qty)
			if costPerUnit.Valid && !newQty.IsZero() {
				b.CostPerUnit = b.Quantity.Mul(b.CostPerUnit).
					Add(qty.Mul(costPerUnit.Decimal)).
					Div(newQty)
			}
			b.Quantity = newQty
			b.Active = true
			b.UpdatedAt = time.Now().UTC()
			return *b, nil
		}
	}
	t.repo.nextBal++
	b := &Balance{
		ID:             t.repo.nextBal,
		IngredientID:   key.IngredientID,
		StoreID:        key.StoreID,
		WarehouseID:    key.WarehouseID,
		BatchNumber:    key.BatchNumber,
		ExpirationDate: key.ExpirationDate,
		Quantity:       qty,
		CostPerUnit:    costPerUnit.Decimal,
		MinStock:       minStock,
		MaxStock:       maxStock,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	t.repo.balances[b.ID] = b
	return *b, nil
}

func (t *fakeTx) Decrease(_ context.Context, balanceID int64, qty decimal.Decimal) (Balance, error) {
	if t.repo.decreaseConflicts > 0 {
		t.repo.decreaseConflicts--
		return Balance{}, ErrConflict
	}
	b, ok := t.repo.balances[balanceID]
	if !ok || !b.Active || b.Quantity.LessThan(qty) {
		return Balance{}, ErrConflict
	}
	b.Quantity = b.Quantity.Sub(qty)
	b.UpdatedAt = time.Now().UTC()
	return *b, nil
}

func (t *fakeTx) AdjustTo(_ context.Context, balanceID int64, expected, physicalCount decimal.Decimal) (Balance, error) {
	b, ok := t.repo.balances[balanceID]
	if !ok || !b.Active || !b.Quantity.Equal(expected) {
		return Balance{}, ErrConflict
	}
	b.Quantity = physicalCount
	b.UpdatedAt = time.Now().UTC()
	return *b, nil
}

func (t *fakeTx) SetLastTransaction(_ context.Context, balanceID, txID int64, at time.Time) error {
	if b, ok := t.repo.balances[balanceID]; ok {
		b.LastTransactionID = txID
		b.LastTransactionAt = at
	}
	return nil
}

func (t *fakeTx) candidates(ingredientID, storeID, warehouseID int64) []*Balance {
	var out []*Balance
	for _, b := range t.repo.balances {
		if b.IngredientID == ingredientID && b.StoreID == storeID && b.WarehouseID == warehouseID && b.Active {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].ExpirationDate, out[j].ExpirationDate
		switch {
		case ei == nil && ej == nil:
			return out[i].ID < out[j].ID
		case ei == nil:
			return false
		case ej == nil:
			return true
		case !ei.Equal(*ej):
			return ei.Before(*ej)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *fakeTx) SelectFIFO(_ context.Context, ingredientID, storeID, warehouseID int64, required decimal.Decimal) (Balance, error) {
	for _, b := range t.candidates(ingredientID, storeID, warehouseID) {
		if b.Quantity.GreaterThanOrEqual(required) {
			return *b, nil
		}
	}
	return Balance{}, ErrBalanceNotFound
}

func (t *fakeTx) FindForTake(_ context.Context, ingredientID, storeID, warehouseID int64, batchNumber string) (Balance, error) {
	for _, b := range t.candidates(ingredientID, storeID, warehouseID) {
		if b.BatchNumber == batchNumber {
			return *b, nil
		}
	}
	return Balance{}, ErrBalanceNotFound
}

func (t *fakeTx) MaxAvailable(_ context.Context, ingredientID, storeID, warehouseID int64, batchNumber string) (decimal.Decimal, error) {
	max := decimal.Zero
	for _, b := range t.candidates(ingredientID, storeID, warehouseID) {
		if batchNumber != "" && b.BatchNumber != batchNumber {
			continue
		}
		if b.Quantity.GreaterThan(max) {
			max = b.Quantity
		}
	}
	return max, nil
}

func (f *fakeRepo) GetBalance(_ context.Context, id int64) (Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[id]; ok {
		return *b, nil
	}
	return Balance{}, ErrBalanceNotFound
}

func (f *fakeRepo) GetBalanceByKey(_ context.Context, key BalanceKey) (Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.balances {
		if b.IngredientID == key.IngredientID && b.StoreID == key.StoreID && b.WarehouseID == key.WarehouseID &&
			b.BatchNumber == key.BatchNumber && sameExpiration(b.ExpirationDate, key.ExpirationDate) {
			return *b, nil
		}
	}
	return Balance{}, ErrBalanceNotFound
}

func (f *fakeRepo) ListBalances(_ context.Context, filter BalanceFilter) ([]Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Balance
	for _, b := range f.balances {
		if !b.Active {
			continue
		}
		if !filter.IncludeDepleted && !b.Quantity.IsPositive() {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (f *fakeRepo) History(_ context.Context, filter HistoryFilter, page, limit int) ([]Transaction, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []Transaction
	for _, t := range f.txns {
		if filter.IngredientID != 0 && t.IngredientID != filter.IngredientID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (f *fakeRepo) LowStock(context.Context, ReportFilter) ([]LowStockItem, error) { return nil, nil }
func (f *fakeRepo) Expiring(context.Context, ReportFilter, time.Time) ([]ExpiryItem, error) {
	return nil, nil
}
func (f *fakeRepo) Expired(context.Context, ReportFilter) ([]ExpiryItem, error) { return nil, nil }

type fakeResolver struct {
	ownerID int64
	unit    string
}

func (r *fakeResolver) ResolveScope(_ context.Context, ownerID, storeID, warehouseID, ingredientID int64) (masterdata.Scope, error) {
	if ownerID != r.ownerID {
		return masterdata.Scope{}, masterdata.ErrOwnerMismatch
	}
	return masterdata.Scope{
		Store:      masterdata.Store{ID: storeID, OwnerID: ownerID},
		Warehouse:  masterdata.Warehouse{ID: warehouseID, StoreID: storeID, OwnerID: ownerID},
		Ingredient: masterdata.Ingredient{ID: ingredientID, OwnerID: ownerID, Unit: r.unit},
	}, nil
}

type fakeCosts struct {
	calls int
	avg   decimal.Decimal
}

func (c *fakeCosts) RecalculateAverageCost(context.Context, int64) (decimal.Decimal, error) {
	c.calls++
	return c.avg, nil
}

type fakeNotifier struct {
	events []CostChangedEvent
}

func (n *fakeNotifier) NotifyCostChanged(_ context.Context, evt CostChangedEvent) error {
	n.events = append(n.events, evt)
	return nil
}

func newTestService(repo *fakeRepo) (*Service, *fakeCosts, *fakeNotifier) {
	costs := &fakeCosts{avg: dec("3")}
	notifier := &fakeNotifier{}
	svc := NewService(repo, &fakeResolver{ownerID: 1, unit: "kg"}, nil, costs, notifier, nil)
	return svc, costs, notifier
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func datePtr(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func stockIn(t *testing.T, svc *Service, qty, cost, batch string, exp *time.Time) MovementResult {
	t.Helper()
	input := StockInInput{
		OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		Quantity: dec(qty), BatchNumber: batch, ExpirationDate: exp,
	}
	if cost != "" {
		input.CostPerUnit = decPtr(cost)
	}
	res, err := svc.StockIn(context.Background(), input)
	require.NoError(t, err)
	return res
}

func TestStockInCreatesBalanceAndLedgerEntry(t *testing.T) {
	repo := newFakeRepo()
	svc, costs, notifier := newTestService(repo)

	res := stockIn(t, svc, "10.5", "2.40", "B-1", datePtr("2026-10-01"))

	assert.Equal(t, TransactionTypeIn, res.Transaction.Type)
	assert.True(t, res.Transaction.Quantity.Equal(dec("10.5")))
	assert.Equal(t, "kg", res.Transaction.Unit)
	assert.True(t, res.Transaction.TotalCost.Equal(dec("25.2")))
	assert.True(t, res.Balance.Quantity.Equal(dec("10.5")))
	assert.True(t, res.Balance.CostPerUnit.Equal(dec("2.40")))
	assert.Equal(t, res.Transaction.ID, res.Balance.LastTransactionID)
	assert.Equal(t, 1, costs.calls)
	require.Len(t, notifier.events, 1)
	assert.True(t, notifier.events[0].AverageCost.Equal(dec("3")))
}

func TestStockInWeightedAverageCost(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))
	res := stockIn(t, svc, "10", "4", "B-1", datePtr("2026-10-01"))

	assert.True(t, res.Balance.Quantity.Equal(dec("20")))
	assert.True(t, res.Balance.CostPerUnit.Equal(dec("3")), "got %s", res.Balance.CostPerUnit)
}

func TestStockInUncostedKeepsExistingCost(t *testing.T) {
	repo := newFakeRepo()
	svc, costs, _ := newTestService(repo)

	stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))
	res := stockIn(t, svc, "5", "", "B-1", datePtr("2026-10-01"))

	assert.True(t, res.Balance.CostPerUnit.Equal(dec("2")))
	assert.Equal(t, 1, costs.calls, "uncosted receipt must not trigger a rollup")
}

func TestStockInDistinctBatchesStaySeparate(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	a := stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))
	b := stockIn(t, svc, "10", "2", "B-2", datePtr("2026-11-01"))

	assert.NotEqual(t, a.Balance.ID, b.Balance.ID)
}

func TestStockOutPicksEarliestExpiringBatch(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	stockIn(t, svc, "10", "2", "LATER", datePtr("2026-12-01"))
	stockIn(t, svc, "10", "2", "SOONER", datePtr("2026-10-01"))
	stockIn(t, svc, "10", "2", "NEVER", nil)

	res, err := svc.StockOut(context.Background(), StockOutInput{
		OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		Quantity: dec("4"),
	})
	require.NoError(t, err)
	assert.Equal(t, "SOONER", res.Transaction.BatchNumber)
	assert.True(t, res.Transaction.Quantity.Equal(dec("-4")))
	assert.True(t, res.Balance.Quantity.Equal(dec("6")))
}

func TestStockOutNoSingleBatchSatisfies(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	stockIn(t, svc, "5", "2", "B-1", datePtr("2026-10-01"))
	stockIn(t, svc, "4", "2", "B-2", datePtr("2026-11-01"))
	before := len(repo.txns)

	_, err := svc.StockOut(context.Background(), StockOutInput{
		OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		Quantity: dec("6"),
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(dec("5")))
	assert.True(t, insufficient.Requested.Equal(dec("6")))

	// A rejected issue leaves no trace in the ledger or the balances.
	assert.Len(t, repo.txns, before)
	b1, _ := repo.GetBalanceByKey(context.Background(), BalanceKey{IngredientID: 30, StoreID: 10, WarehouseID: 20, BatchNumber: "B-1", ExpirationDate: datePtr("2026-10-01")})
	assert.True(t, b1.Quantity.Equal(dec("5")))
}

func TestStockOutSpecificBatch(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))
	stockIn(t, svc, "10", "3", "B-2", datePtr("2026-12-01"))

	res, err := svc.StockOut(context.Background(), StockOutInput{
		OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		Quantity: dec("3"), BatchNumber: "B-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "B-2", res.Transaction.BatchNumber)
	require.True(t, res.Transaction.CostPerUnit.Valid)
	assert.True(t, res.Transaction.CostPerUnit.Decimal.Equal(dec("3")))
	assert.True(t, res.Transaction.TotalCost.Equal(dec("9")))
}

func TestStockOutRetriesOnceOnConflict(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))
	repo.decreaseConflicts = 1

	res, err := svc.StockOut(context.Background(), StockOutInput{
		OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		Quantity: dec("4"),
	})
	require.NoError(t, err)
	assert.True(t, res.Balance.Quantity.Equal(dec("6")))
}

func TestStockOutPersistentConflictReportsAvailability(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))
	repo.decreaseConflicts = 2

	_, err := svc.StockOut(context.Background(), StockOutInput{
		OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		Quantity: dec("4"),
	})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(dec("10")))
}

func TestWriteOffExpired(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))

	res, err := svc.WriteOff(context.Background(), WriteOffInput{
		OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		Quantity: dec("10"), BatchNumber: "B-1", Reason: TransactionTypeExpired,
	})
	require.NoError(t, err)
	assert.Equal(t, TransactionTypeExpired, res.Transaction.Type)
	assert.True(t, res.Transaction.Quantity.Equal(dec("-10")))
	assert.True(t, res.Balance.Quantity.IsZero())
}

func TestWriteOffRejectsUnknownReason(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())

	_, err := svc.WriteOff(context.Background(), WriteOffInput{
		OwnerID: 1, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		Quantity: dec("1"), Reason: TransactionTypeOut,
	})
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestTransferPreservesLotIdentity(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	stockIn(t, svc, "10", "2.5", "B-1", datePtr("2026-10-01"))

	res, err := svc.Transfer(context.Background(), TransferInput{
		OwnerID: 1, UserID: 9, StoreID: 10, SrcWarehouseID: 20, DstWarehouseID: 21,
		IngredientID: 30, Quantity: dec("4"),
	})
	require.NoError(t, err)
	assert.Equal(t, TransactionTypeTransfer, res.Out.Transaction.Type)
	assert.True(t, res.Out.Transaction.Quantity.Equal(dec("-4")))
	assert.True(t, res.In.Transaction.Quantity.Equal(dec("4")))
	assert.True(t, res.Out.Balance.Quantity.Equal(dec("6")))
	assert.True(t, res.In.Balance.Quantity.Equal(dec("4")))
	assert.Equal(t, "B-1", res.In.Balance.BatchNumber)
	assert.True(t, res.In.Balance.CostPerUnit.Equal(dec("2.5")))
	require.NotNil(t, res.In.Balance.ExpirationDate)
}

func TestTransferRejectsSameWarehouse(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())

	_, err := svc.Transfer(context.Background(), TransferInput{
		OwnerID: 1, StoreID: 10, SrcWarehouseID: 20, DstWarehouseID: 20,
		IngredientID: 30, Quantity: dec("1"),
	})
	assert.Error(t, err)
}

func TestStockTakeZeroDeltaWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))
	before := len(repo.txns)

	res, err := svc.StockTake(context.Background(), StockTakeInput{
		OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		PhysicalCount: dec("10"), BatchNumber: "B-1",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Transaction)
	assert.True(t, res.AdjustmentQuantity.IsZero())
	assert.Len(t, repo.txns, before)
}

func TestStockTakeRecordsDelta(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))

	res, err := svc.StockTake(context.Background(), StockTakeInput{
		OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		PhysicalCount: dec("7"), BatchNumber: "B-1",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, TransactionTypeAdjustment, res.Transaction.Type)
	assert.True(t, res.AdjustmentQuantity.Equal(dec("-3")))
	assert.True(t, res.Transaction.PreviousQuantity.Decimal.Equal(dec("10")))
	assert.True(t, res.Transaction.NewQuantity.Decimal.Equal(dec("7")))
	assert.True(t, res.Balance.Quantity.Equal(dec("7")))
}

func TestStockTakeRejectsNegativeCount(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())

	_, err := svc.StockTake(context.Background(), StockTakeInput{
		OwnerID: 1, StoreID: 10, WarehouseID: 20, IngredientID: 30,
		PhysicalCount: dec("-1"),
	})
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestValidationFailures(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())
	ctx := context.Background()

	_, err := svc.StockIn(ctx, StockInInput{OwnerID: 1, StoreID: 10, WarehouseID: 20, IngredientID: 30, Quantity: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.StockIn(ctx, StockInInput{OwnerID: 1, StoreID: 10, WarehouseID: 20, IngredientID: 30, Quantity: dec("1"), CostPerUnit: decPtr("-1")})
	assert.ErrorIs(t, err, ErrInvalidCost)

	_, err = svc.StockIn(ctx, StockInInput{OwnerID: 1, StoreID: 10, WarehouseID: 20, IngredientID: 30, Quantity: dec("1"), Reference: "not-a-uuid"})
	assert.Error(t, err)

	_, err = svc.StockOut(ctx, StockOutInput{OwnerID: 1, StoreID: 10, WarehouseID: 20, IngredientID: 30, Quantity: dec("-1")})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.StockIn(ctx, StockInInput{OwnerID: 1, WarehouseID: 20, IngredientID: 30, Quantity: dec("1")})
	assert.Error(t, err)
}

func TestOwnerMismatchRejected(t *testing.T) {
	svc, _, _ := newTestService(newFakeRepo())

	_, err := svc.StockIn(context.Background(), StockInInput{
		OwnerID: 2, StoreID: 10, WarehouseID: 20, IngredientID: 30, Quantity: dec("1"),
	})
	assert.ErrorIs(t, err, masterdata.ErrOwnerMismatch)
}

func TestLedgerReplaysToBalance(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))
	stockIn(t, svc, "5", "4", "B-1", datePtr("2026-10-01"))
	_, err := svc.StockOut(ctx, StockOutInput{OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30, Quantity: dec("6"), BatchNumber: "B-1"})
	require.NoError(t, err)
	_, err = svc.StockTake(ctx, StockTakeInput{OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30, PhysicalCount: dec("8"), BatchNumber: "B-1"})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, txn := range repo.txns {
		sum = sum.Add(txn.Quantity)
	}
	balance, err := repo.GetBalanceByKey(ctx, BalanceKey{IngredientID: 30, StoreID: 10, WarehouseID: 20, BatchNumber: "B-1", ExpirationDate: datePtr("2026-10-01")})
	require.NoError(t, err)
	assert.True(t, sum.Equal(balance.Quantity), "ledger sum %s vs balance %s", sum, balance.Quantity)
}

func TestConcurrentStockInsAllLand(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)
	const workers = 16

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stockIn(t, svc, "2", "3", "B-1", datePtr("2026-10-01"))
		}()
	}
	wg.Wait()

	balance, err := repo.GetBalanceByKey(context.Background(), BalanceKey{IngredientID: 30, StoreID: 10, WarehouseID: 20, BatchNumber: "B-1", ExpirationDate: datePtr("2026-10-01")})
	require.NoError(t, err)
	assert.True(t, balance.Quantity.Equal(dec("32")))
	assert.Len(t, repo.txns, workers)
}

func TestConcurrentStockOutsNeverOverdraw(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)
	stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))

	const workers = 8
	var wg sync.WaitGroup
	var okCount int32
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StockOut(context.Background(), StockOutInput{
				OwnerID: 1, UserID: 9, StoreID: 10, WarehouseID: 20, IngredientID: 30,
				Quantity: dec("3"),
			})
			if err == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			} else {
				var insufficient *InsufficientStockError
				require.ErrorAs(t, err, &insufficient)
			}
		}()
	}
	wg.Wait()

	balance, err := repo.GetBalanceByKey(context.Background(), BalanceKey{IngredientID: 30, StoreID: 10, WarehouseID: 20, BatchNumber: "B-1", ExpirationDate: datePtr("2026-10-01")})
	require.NoError(t, err)
	assert.False(t, balance.Quantity.IsNegative())
	assert.Equal(t, int32(3), okCount)
	assert.True(t, balance.Quantity.Equal(dec("1")))
}

func TestHistoryPagination(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)

	for i := 0; i < 5; i++ {
		stockIn(t, svc, "1", "2", "B-1", datePtr("2026-10-01"))
	}

	txns, pagination, err := svc.History(context.Background(), HistoryFilter{IngredientID: 30}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, txns, 2)
	assert.Equal(t, 5, pagination.Total)
	assert.Equal(t, 3, pagination.TotalPages)
	assert.Equal(t, 2, pagination.Page)
}

func TestGetBalanceScopedToOwner(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _ := newTestService(repo)
	res := stockIn(t, svc, "10", "2", "B-1", datePtr("2026-10-01"))

	balance, err := svc.GetBalance(context.Background(), 1, res.Balance.ID)
	require.NoError(t, err)
	assert.True(t, balance.Quantity.Equal(dec("10")))

	_, err = svc.GetBalance(context.Background(), 2, res.Balance.ID)
	assert.ErrorIs(t, err, ErrBalanceNotFound)

	key := BalanceKey{IngredientID: 30, StoreID: 10, WarehouseID: 20, BatchNumber: "B-1", ExpirationDate: datePtr("2026-10-01")}
	_, err = svc.GetBalanceByKey(context.Background(), 1, key)
	require.NoError(t, err)
	_, err = svc.GetBalanceByKey(context.Background(), 2, key)
	assert.ErrorIs(t, err, ErrBalanceNotFound)
}
