package masterdata

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	GetStore(ctx context.Context, id int64) (Store, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	GetIngredient(ctx context.Context, id int64) (Ingredient, error)
	ListIngredients(ctx context.Context, filter ListFilter) ([]Ingredient, error)
	CreateIngredient(ctx context.Context, ing Ingredient) (Ingredient, error)
	RecalculateAverageCost(ctx context.Context, ingredientID int64) (decimal.Decimal, error)
}

// Service exposes masterdata lookups and the ownership resolver used by the
// stock engine.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ResolveScope loads the store, warehouse and ingredient and verifies all
// three belong to the given owner and the warehouse belongs to the store.
// Stock operations trust the returned scope as already authorised.
func (s *Service) ResolveScope(ctx context.Context, ownerID, storeID, warehouseID, ingredientID int64) (Scope, error) {
	store, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return Scope{}, err
	}
	warehouse, err := s.repo.GetWarehouse(ctx, warehouseID)
	if err != nil {
		return Scope{}, err
	}
	ingredient, err := s.repo.GetIngredient(ctx, ingredientID)
	if err != nil {
		return Scope{}, err
	}
	if store.OwnerID != ownerID || warehouse.OwnerID != ownerID || ingredient.OwnerID != ownerID {
		return Scope{}, ErrOwnerMismatch
	}
	if warehouse.StoreID != store.ID {
		return Scope{}, ErrOwnerMismatch
	}
	return Scope{Store: store, Warehouse: warehouse, Ingredient: ingredient}, nil
}

// CreateIngredient normalizes the name and persists the ingredient.
func (s *Service) CreateIngredient(ctx context.Context, ing Ingredient) (Ingredient, error) {
	ing.Name = NormalizeName(ing.Name)
	if ing.Name == "" {
		return Ingredient{}, errors.New("masterdata: ingredient name required")
	}
	if ing.Unit == "" {
		return Ingredient{}, errors.New("masterdata: ingredient unit required")
	}
	if ing.OwnerID == 0 {
		return Ingredient{}, errors.New("masterdata: owner required")
	}
	return s.repo.CreateIngredient(ctx, ing)
}

// ListIngredients lists ingredients with the search term normalized the same
// way names are stored.
func (s *Service) ListIngredients(ctx context.Context, filter ListFilter) ([]Ingredient, error) {
	filter.Search = NormalizeName(filter.Search)
	return s.repo.ListIngredients(ctx, filter)
}

// GetIngredient loads one ingredient.
func (s *Service) GetIngredient(ctx context.Context, id int64) (Ingredient, error) {
	return s.repo.GetIngredient(ctx, id)
}

// RecalculateAverageCost refreshes the ingredient's rolling average cost from
// its balance rows and returns the new value.
func (s *Service) RecalculateAverageCost(ctx context.Context, ingredientID int64) (decimal.Decimal, error) {
	return s.repo.RecalculateAverageCost(ctx, ingredientID)
}

// NormalizeName trims and NFC-normalizes a name so lookups and stored values
// compare bytewise.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
