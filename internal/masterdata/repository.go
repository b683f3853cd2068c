package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mise-erp/mise-erp/internal/platform/httpx"
	"github.com/mise-erp/mise-erp/internal/shared"
)

// Repository persists masterdata in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetStore(ctx context.Context, id int64) (Store, error) {
	var s Store
	err := r.pool.QueryRow(ctx, `SELECT id, owner_id, code, name, active, created_at, updated_at
FROM stores WHERE id=$1 AND active`, id).
		Scan(&s.ID, &s.OwnerID, &s.Code, &s.Name, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Store{}, fmt.Errorf("store %d: %w", id, shared.ErrNotFound)
	}
	return s, err
}

func (r *Repository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, owner_id, store_id, code, name, address, active, created_at, updated_at
FROM warehouses WHERE id=$1 AND active`, id).
		Scan(&w.ID, &w.OwnerID, &w.StoreID, &w.Code, &w.Name, &w.Address, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, fmt.Errorf("warehouse %d: %w", id, shared.ErrNotFound)
	}
	return w, err
}

func (r *Repository) GetIngredient(ctx context.Context, id int64) (Ingredient, error) {
	var ing Ingredient
	err := r.pool.QueryRow(ctx, `SELECT id, owner_id, name, unit, min_stock, max_stock, average_cost, active, created_at, updated_at
FROM ingredients WHERE id=$1 AND active`, id).
		Scan(&ing.ID, &ing.OwnerID, &ing.Name, &ing.Unit, &ing.MinStock, &ing.MaxStock, &ing.AverageCost, &ing.Active, &ing.CreatedAt, &ing.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ingredient{}, fmt.Errorf("ingredient %d: %w", id, shared.ErrNotFound)
	}
	return ing, err
}

// ListIngredients returns active ingredients for an owner, optionally filtered
// by a normalized name fragment.
func (r *Repository) ListIngredients(ctx context.Context, filter ListFilter) ([]Ingredient, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, owner_id, name, unit, min_stock, max_stock, average_cost, active, created_at, updated_at
FROM ingredients
WHERE owner_id=$1 AND active AND ($2 = '' OR name ILIKE '%' || $2 || '%')
ORDER BY name ASC
LIMIT $3`, filter.OwnerID, filter.Search, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ingredient
	for rows.Next() {
		var ing Ingredient
		if err := rows.Scan(&ing.ID, &ing.OwnerID, &ing.Name, &ing.Unit, &ing.MinStock, &ing.MaxStock, &ing.AverageCost, &ing.Active, &ing.CreatedAt, &ing.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// CreateIngredient inserts a new ingredient and returns it with generated fields.
func (r *Repository) CreateIngredient(ctx context.Context, ing Ingredient) (Ingredient, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO ingredients (owner_id, name, unit, min_stock, max_stock, average_cost, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
RETURNING id, active, created_at, updated_at`, ing.OwnerID, ing.Name, ing.Unit, ing.MinStock, ing.MaxStock, ing.AverageCost).
		Scan(&ing.ID, &ing.Active, &ing.CreatedAt, &ing.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Ingredient{}, fmt.Errorf("ingredient %q: %w", ing.Name, httpx.ErrDuplicate)
	}
	return ing, err
}

// RecalculateAverageCost recomputes the ingredient's rolling average cost as a
// quantity-weighted blend across its active balance rows in one statement.
// Keeps the previous value when the ingredient holds no stock.
func (r *Repository) RecalculateAverageCost(ctx context.Context, ingredientID int64) (decimal.Decimal, error) {
	var avg decimal.Decimal
	err := r.pool.QueryRow(ctx, `UPDATE ingredients SET average_cost = COALESCE((
    SELECT SUM(quantity * cost_per_unit) / NULLIF(SUM(quantity), 0)
    FROM stock_balances
    WHERE ingredient_id = ingredients.id AND active
), average_cost), updated_at = NOW()
WHERE id = $1
RETURNING average_cost`, ingredientID).Scan(&avg)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, fmt.Errorf("ingredient %d: %w", ingredientID, shared.ErrNotFound)
	}
	return avg, err
}
