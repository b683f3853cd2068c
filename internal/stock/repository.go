package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists the ledger and balance projection in PostgreSQL.
//
// Balance mutations are expressed as single conditional statements
// ("increment by N", "decrement by N where quantity >= N") so concurrent
// writers can never lose an update; the ledger insert and its paired balance
// mutation always share one database transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the engine.
type TxRepository interface {
	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	UpsertIncrease(ctx context.Context, key BalanceKey, qty decimal.Decimal, costPerUnit decimal.NullDecimal, minStock, maxStock decimal.NullDecimal) (Balance, error)
	Decrease(ctx context.Context, balanceID int64, qty decimal.Decimal) (Balance, error)
	AdjustTo(ctx context.Context, balanceID int64, expected, physicalCount decimal.Decimal) (Balance, error)
	SetLastTransaction(ctx context.Context, balanceID, txID int64, at time.Time) error
	SelectFIFO(ctx context.Context, ingredientID, storeID, warehouseID int64, required decimal.Decimal) (Balance, error)
	FindForTake(ctx context.Context, ingredientID, storeID, warehouseID int64, batchNumber string) (Balance, error)
	MaxAvailable(ctx context.Context, ingredientID, storeID, warehouseID int64, batchNumber string) (decimal.Decimal, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction. Either
// both halves of an operation (ledger append + balance mutation) commit, or
// neither does. Read committed is sufficient: the conditional UPDATE guards
// and the upsert carry the concurrency discipline, and a stricter snapshot
// would turn concurrent writers into serialization aborts instead of the
// zero-row conflicts the engine retries on. Serialization failures are still
// mapped to ErrConflict as a safety net.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return mapConflict(err)
	}
	return mapConflict(tx.Commit(ctx))
}

// mapConflict converts a SQLSTATE 40001 serialization failure into
// ErrConflict so the caller's retry path engages instead of surfacing a raw
// infrastructure error.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	}
	return err
}

const balanceColumns = `id, ingredient_id, store_id, warehouse_id, batch_number, expiration_date,
quantity, cost_per_unit, min_stock, max_stock,
COALESCE(last_transaction_id, 0), COALESCE(last_transaction_at, created_at), active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (Balance, error) {
	var b Balance
	err := row.Scan(&b.ID, &b.IngredientID, &b.StoreID, &b.WarehouseID, &b.BatchNumber, &b.ExpirationDate,
		&b.Quantity, &b.CostPerUnit, &b.MinStock, &b.MaxStock,
		&b.LastTransactionID, &b.LastTransactionAt, &b.Active, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	if err := txn.Validate(); err != nil {
		return Transaction{}, err
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transactions
(tx_type, ingredient_id, store_id, warehouse_id, quantity, unit, batch_number, expiration_date,
 cost_per_unit, total_cost, previous_quantity, new_quantity, reference, user_id, owner_id, date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW())
RETURNING id, created_at`,
		string(txn.Type), txn.IngredientID, txn.StoreID, txn.WarehouseID, txn.Quantity, txn.Unit,
		txn.BatchNumber, txn.ExpirationDate, txn.CostPerUnit, txn.TotalCost,
		txn.PreviousQuantity, txn.NewQuantity, txn.Reference, txn.UserID, txn.OwnerID, txn.Date).
		Scan(&txn.ID, &txn.CreatedAt)
	return txn, err
}

// UpsertIncrease creates the balance row on first receipt of a key, or
// atomically adds the quantity and folds the incoming cost into the
// weighted average. The whole read-blend-write happens inside one statement,
// so two concurrent stock-ins both land.
func (r *txRepository) UpsertIncrease(ctx context.Context, key BalanceKey, qty decimal.Decimal, costPerUnit decimal.NullDecimal, minStock, maxStock decimal.NullDecimal) (Balance, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO stock_balances
(ingredient_id, store_id, warehouse_id, batch_number, expiration_date,
 quantity, cost_per_unit, min_stock, max_stock, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7, 0),$8,$9,TRUE,NOW(),NOW())
ON CONFLICT (ingredient_id, store_id, warehouse_id, batch_number, expiration_date)
DO UPDATE SET
  quantity = stock_balances.quantity + EXCLUDED.quantity,
  cost_per_unit = CASE
    WHEN $7::numeric IS NULL THEN stock_balances.cost_per_unit
    WHEN stock_balances.quantity + EXCLUDED.quantity = 0 THEN stock_balances.cost_per_unit
    ELSE (stock_balances.quantity * stock_balances.cost_per_unit + EXCLUDED.quantity * $7::numeric)
         / (stock_balances.quantity + EXCLUDED.quantity)
  END,
  active = TRUE,
  updated_at = NOW()
RETURNING `+balanceColumns,
		key.IngredientID, key.StoreID, key.WarehouseID, key.BatchNumber, key.ExpirationDate,
		qty, costPerUnit, minStock, maxStock)
	return scanBalance(row)
}

// Decrease subtracts qty, guarded by quantity >= qty. A zero-row result means
// the precondition failed (raced or insufficient) and nothing changed.
func (r *txRepository) Decrease(ctx context.Context, balanceID int64, qty decimal.Decimal) (Balance, error) {
	row := r.tx.QueryRow(ctx, `UPDATE stock_balances
SET quantity = quantity - $2, updated_at = NOW()
WHERE id = $1 AND active AND quantity >= $2
RETURNING `+balanceColumns, balanceID, qty)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrConflict
	}
	return b, err
}

// AdjustTo sets the quantity to the physical count, conditioned on the
// quantity still being the value the count was taken against.
func (r *txRepository) AdjustTo(ctx context.Context, balanceID int64, expected, physicalCount decimal.Decimal) (Balance, error) {
	row := r.tx.QueryRow(ctx, `UPDATE stock_balances
SET quantity = $3, updated_at = NOW()
WHERE id = $1 AND active AND quantity = $2
RETURNING `+balanceColumns, balanceID, expected, physicalCount)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrConflict
	}
	return b, err
}

func (r *txRepository) SetLastTransaction(ctx context.Context, balanceID, txID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_balances
SET last_transaction_id = $2, last_transaction_at = $3, updated_at = NOW()
WHERE id = $1`, balanceID, txID, at)
	return err
}

// SelectFIFO picks the batch expiring soonest among those that alone can
// satisfy the requested quantity. Unexpiring lots sort last.
func (r *txRepository) SelectFIFO(ctx context.Context, ingredientID, storeID, warehouseID int64, required decimal.Decimal) (Balance, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+balanceColumns+`
FROM stock_balances
WHERE ingredient_id = $1 AND store_id = $2 AND warehouse_id = $3 AND active AND quantity >= $4
ORDER BY expiration_date ASC NULLS LAST, created_at ASC
LIMIT 1`, ingredientID, storeID, warehouseID, required)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrBalanceNotFound
	}
	return b, err
}

// FindForTake locates the single balance row a physical count targets: the
// FIFO-first active row for the batch, where an empty batch number matches
// only un-batched stock.
func (r *txRepository) FindForTake(ctx context.Context, ingredientID, storeID, warehouseID int64, batchNumber string) (Balance, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+balanceColumns+`
FROM stock_balances
WHERE ingredient_id = $1 AND store_id = $2 AND warehouse_id = $3 AND batch_number = $4 AND active
ORDER BY expiration_date ASC NULLS LAST, created_at ASC
LIMIT 1`, ingredientID, storeID, warehouseID, batchNumber)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrBalanceNotFound
	}
	return b, err
}

// MaxAvailable reports the largest on-hand quantity among eligible batches,
// used to tell a rejected caller how much a retry could request.
func (r *txRepository) MaxAvailable(ctx context.Context, ingredientID, storeID, warehouseID int64, batchNumber string) (decimal.Decimal, error) {
	var available decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(quantity), 0)
FROM stock_balances
WHERE ingredient_id = $1 AND store_id = $2 AND warehouse_id = $3 AND active
  AND ($4 = '' OR batch_number = $4)`, ingredientID, storeID, warehouseID, batchNumber).Scan(&available)
	return available, err
}

// GetBalance loads one balance row by id.
func (r *Repository) GetBalance(ctx context.Context, id int64) (Balance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM stock_balances WHERE id = $1`, id)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrBalanceNotFound
	}
	return b, err
}

// GetBalanceByKey loads the balance row for an exact key.
func (r *Repository) GetBalanceByKey(ctx context.Context, key BalanceKey) (Balance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+balanceColumns+`
FROM stock_balances
WHERE ingredient_id = $1 AND store_id = $2 AND warehouse_id = $3 AND batch_number = $4
  AND (($5::timestamptz IS NULL AND expiration_date IS NULL) OR expiration_date = $5)`,
		key.IngredientID, key.StoreID, key.WarehouseID, key.BatchNumber, key.ExpirationDate)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrBalanceNotFound
	}
	return b, err
}

// ListBalances lists balance rows matching the filter. Depleted rows are
// excluded unless asked for; they remain valid, queryable state.
func (r *Repository) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+balanceColumns+`
FROM stock_balances b
WHERE active
  AND ($1 = 0 OR EXISTS (SELECT 1 FROM ingredients i WHERE i.id = b.ingredient_id AND i.owner_id = $1))
  AND ($2 = 0 OR store_id = $2)
  AND ($3 = 0 OR warehouse_id = $3)
  AND ($4 = 0 OR ingredient_id = $4)
  AND ($5 OR quantity > 0)
ORDER BY ingredient_id, expiration_date ASC NULLS LAST, created_at ASC`,
		filter.OwnerID, filter.StoreID, filter.WarehouseID, filter.IngredientID, filter.IncludeDepleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// History scans the ledger, newest first, with pagination. Returns the page
// and the total match count.
func (r *Repository) History(ctx context.Context, filter HistoryFilter, page, limit int) ([]Transaction, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	where := ` FROM stock_transactions
WHERE ($1 = 0 OR owner_id = $1)
  AND ($2 = 0 OR ingredient_id = $2)
  AND ($3 = 0 OR warehouse_id = $3)
  AND ($4 = 0 OR store_id = $4)
  AND ($5 = '' OR tx_type = $5)
  AND ($6 = '' OR batch_number = $6)
  AND date BETWEEN COALESCE($7, '-infinity') AND COALESCE($8, 'infinity')`
	args := []any{filter.OwnerID, filter.IngredientID, filter.WarehouseID, filter.StoreID,
		string(filter.Type), filter.BatchNumber, nullTime(filter.From), nullTime(filter.To)}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, tx_type, ingredient_id, store_id, warehouse_id, quantity, unit,
batch_number, expiration_date, cost_per_unit, total_cost, previous_quantity, new_quantity,
reference, user_id, owner_id, date, created_at`+where+`
ORDER BY date DESC, id DESC
LIMIT $9 OFFSET $10`, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Type, &t.IngredientID, &t.StoreID, &t.WarehouseID, &t.Quantity, &t.Unit,
			&t.BatchNumber, &t.ExpirationDate, &t.CostPerUnit, &t.TotalCost, &t.PreviousQuantity, &t.NewQuantity,
			&t.Reference, &t.UserID, &t.OwnerID, &t.Date, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// LowStock lists balances at or below their reorder threshold, preferring the
// threshold frozen on the balance and falling back to the ingredient's.
func (r *Repository) LowStock(ctx context.Context, filter ReportFilter) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+prefixedBalanceColumns("b")+`, i.name, i.unit,
COALESCE(b.min_stock, i.min_stock, 0)
FROM stock_balances b
JOIN ingredients i ON i.id = b.ingredient_id
WHERE b.active
  AND ($1 = 0 OR i.owner_id = $1)
  AND ($2 = 0 OR b.store_id = $2)
  AND ($3 = 0 OR b.warehouse_id = $3)
  AND b.quantity <= COALESCE(b.min_stock, i.min_stock, 0)
ORDER BY i.name ASC`, filter.OwnerID, filter.StoreID, filter.WarehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LowStockItem
	for rows.Next() {
		var item LowStockItem
		b := &item.Balance
		if err := rows.Scan(&b.ID, &b.IngredientID, &b.StoreID, &b.WarehouseID, &b.BatchNumber, &b.ExpirationDate,
			&b.Quantity, &b.CostPerUnit, &b.MinStock, &b.MaxStock,
			&b.LastTransactionID, &b.LastTransactionAt, &b.Active, &b.CreatedAt, &b.UpdatedAt,
			&item.IngredientName, &item.Unit, &item.Threshold); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Expiring lists lots with stock on hand that expire after now but on or
// before the horizon.
func (r *Repository) Expiring(ctx context.Context, filter ReportFilter, horizon time.Time) ([]ExpiryItem, error) {
	return r.queryExpiry(ctx, filter, `b.expiration_date > NOW() AND b.expiration_date <= $4`, horizon)
}

// Expired lists lots with stock on hand whose expiration date has passed.
func (r *Repository) Expired(ctx context.Context, filter ReportFilter) ([]ExpiryItem, error) {
	return r.queryExpiry(ctx, filter, `b.expiration_date <= NOW() AND $4::timestamptz IS NOT NULL`, time.Now().UTC())
}

func (r *Repository) queryExpiry(ctx context.Context, filter ReportFilter, cond string, horizon time.Time) ([]ExpiryItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+prefixedBalanceColumns("b")+`, i.name, i.unit, b.expiration_date
FROM stock_balances b
JOIN ingredients i ON i.id = b.ingredient_id
WHERE b.active AND b.quantity > 0 AND b.expiration_date IS NOT NULL
  AND ($1 = 0 OR i.owner_id = $1)
  AND ($2 = 0 OR b.store_id = $2)
  AND ($3 = 0 OR b.warehouse_id = $3)
  AND `+cond+`
ORDER BY b.expiration_date ASC`, filter.OwnerID, filter.StoreID, filter.WarehouseID, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExpiryItem
	for rows.Next() {
		var item ExpiryItem
		b := &item.Balance
		if err := rows.Scan(&b.ID, &b.IngredientID, &b.StoreID, &b.WarehouseID, &b.BatchNumber, &b.ExpirationDate,
			&b.Quantity, &b.CostPerUnit, &b.MinStock, &b.MaxStock,
			&b.LastTransactionID, &b.LastTransactionAt, &b.Active, &b.CreatedAt, &b.UpdatedAt,
			&item.IngredientName, &item.Unit, &item.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func prefixedBalanceColumns(alias string) string {
	return alias + `.id, ` + alias + `.ingredient_id, ` + alias + `.store_id, ` + alias + `.warehouse_id, ` +
		alias + `.batch_number, ` + alias + `.expiration_date, ` + alias + `.quantity, ` + alias + `.cost_per_unit, ` +
		alias + `.min_stock, ` + alias + `.max_stock, COALESCE(` + alias + `.last_transaction_id, 0), ` +
		`COALESCE(` + alias + `.last_transaction_at, ` + alias + `.created_at), ` + alias + `.active, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
