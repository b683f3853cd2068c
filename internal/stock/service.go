package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mise-erp/mise-erp/internal/masterdata"
	"github.com/mise-erp/mise-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, id int64) (Balance, error)
	GetBalanceByKey(ctx context.Context, key BalanceKey) (Balance, error)
	ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error)
	History(ctx context.Context, filter HistoryFilter, page, limit int) ([]Transaction, int, error)
	LowStock(ctx context.Context, filter ReportFilter) ([]LowStockItem, error)
	Expiring(ctx context.Context, filter ReportFilter, horizon time.Time) ([]ExpiryItem, error)
	Expired(ctx context.Context, filter ReportFilter) ([]ExpiryItem, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ResolverPort verifies that the store, warehouse and ingredient of an
// operation belong to the acting owner before any write.
type ResolverPort interface {
	ResolveScope(ctx context.Context, ownerID, storeID, warehouseID, ingredientID int64) (masterdata.Scope, error)
}

// CostRollupPort recomputes an ingredient's rolling average cost across all
// of its lots.
type CostRollupPort interface {
	RecalculateAverageCost(ctx context.Context, ingredientID int64) (decimal.Decimal, error)
}

// DefaultExpiryWindowDays is the horizon of the expiring report when the
// caller does not supply one.
const DefaultExpiryWindowDays = 7

// Service coordinates stock operations: every quantity change appends exactly
// one ledger transaction and applies exactly one conditional balance mutation,
// both inside a single repository transaction.
type Service struct {
	repo     RepositoryPort
	resolver ResolverPort
	audit    AuditPort
	costs    CostRollupPort
	notifier CostNotifier
	reports  *ReportCache
}

// NewService builds Service. audit, costs, notifier and reports may be nil.
func NewService(repo RepositoryPort, resolver ResolverPort, audit AuditPort, costs CostRollupPort, notifier CostNotifier, reports *ReportCache) *Service {
	return &Service{repo: repo, resolver: resolver, audit: audit, costs: costs, notifier: notifier, reports: reports}
}

// StockIn receives goods into a warehouse. It appends an "in" transaction and
// creates or increases the balance row for the exact
// (ingredient, store, warehouse, batch, expiration) key, folding a supplied
// cost into the lot's weighted average.
func (s *Service) StockIn(ctx context.Context, input StockInInput) (MovementResult, error) {
	if err := requireIDs(input.StoreID, input.WarehouseID, input.IngredientID); err != nil {
		return MovementResult{}, err
	}
	if !input.Quantity.IsPositive() {
		return MovementResult{}, ErrInvalidQuantity
	}
	if input.CostPerUnit != nil && input.CostPerUnit.IsNegative() {
		return MovementResult{}, ErrInvalidCost
	}
	if err := validateReference(input.Reference); err != nil {
		return MovementResult{}, err
	}
	scope, err := s.resolver.ResolveScope(ctx, input.OwnerID, input.StoreID, input.WarehouseID, input.IngredientID)
	if err != nil {
		return MovementResult{}, err
	}
	unit := input.Unit
	if unit == "" {
		unit = scope.Ingredient.Unit
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	var cost decimal.NullDecimal
	var totalCost decimal.Decimal
	if input.CostPerUnit != nil {
		cost = decimal.NullDecimal{Decimal: *input.CostPerUnit, Valid: true}
		totalCost = input.CostPerUnit.Mul(input.Quantity)
	}

	var result MovementResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertTransaction(ctx, Transaction{
			Type:           TransactionTypeIn,
			IngredientID:   input.IngredientID,
			StoreID:        input.StoreID,
			WarehouseID:    input.WarehouseID,
			Quantity:       input.Quantity,
			Unit:           unit,
			BatchNumber:    input.BatchNumber,
			ExpirationDate: input.ExpirationDate,
			CostPerUnit:    cost,
			TotalCost:      totalCost,
			Reference:      input.Reference,
			UserID:         input.UserID,
			OwnerID:        input.OwnerID,
			Date:           date,
		})
		if err != nil {
			return err
		}
		key := BalanceKey{
			IngredientID:   input.IngredientID,
			StoreID:        input.StoreID,
			WarehouseID:    input.WarehouseID,
			BatchNumber:    input.BatchNumber,
			ExpirationDate: input.ExpirationDate,
		}
		balance, err := tx.UpsertIncrease(ctx, key, input.Quantity, cost, scope.Ingredient.MinStock, scope.Ingredient.MaxStock)
		if err != nil {
			return err
		}
		if err := tx.SetLastTransaction(ctx, balance.ID, inserted.ID, date); err != nil {
			return err
		}
		balance.LastTransactionID = inserted.ID
		balance.LastTransactionAt = date
		result = MovementResult{Transaction: inserted, Balance: balance}
		return nil
	})
	if err != nil {
		return MovementResult{}, err
	}

	s.recordAudit(ctx, input.UserID, input.OwnerID, "stock:in", result.Transaction)
	s.invalidateReports(ctx)
	if input.CostPerUnit != nil {
		s.propagateCostChange(ctx, scope.Ingredient.ID, input.OwnerID, date)
	}
	return result, nil
}

// StockOut issues goods out of a warehouse. With a batch number it draws from
// exactly that batch; without one it selects the earliest-expiring batch that
// alone can satisfy the quantity. The engine does not split an issue across
// batches: when no single batch suffices it rejects with the best candidate's
// available amount, even if the sum across batches would cover the request.
func (s *Service) StockOut(ctx context.Context, input StockOutInput) (MovementResult, error) {
	return s.postIssue(ctx, input, TransactionTypeOut)
}

// WriteOff removes stock for a loss reason (expired or damaged).
func (s *Service) WriteOff(ctx context.Context, input WriteOffInput) (MovementResult, error) {
	if input.Reason != TransactionTypeExpired && input.Reason != TransactionTypeDamaged {
		return MovementResult{}, ErrInvalidType
	}
	return s.postIssue(ctx, StockOutInput{
		OwnerID:      input.OwnerID,
		UserID:       input.UserID,
		StoreID:      input.StoreID,
		WarehouseID:  input.WarehouseID,
		IngredientID: input.IngredientID,
		Quantity:     input.Quantity,
		Unit:         input.Unit,
		BatchNumber:  input.BatchNumber,
		Reference:    input.Reference,
		Date:         input.Date,
	}, input.Reason)
}

func (s *Service) postIssue(ctx context.Context, input StockOutInput, txType TransactionType) (MovementResult, error) {
	if err := requireIDs(input.StoreID, input.WarehouseID, input.IngredientID); err != nil {
		return MovementResult{}, err
	}
	if !input.Quantity.IsPositive() {
		return MovementResult{}, ErrInvalidQuantity
	}
	if err := validateReference(input.Reference); err != nil {
		return MovementResult{}, err
	}
	scope, err := s.resolver.ResolveScope(ctx, input.OwnerID, input.StoreID, input.WarehouseID, input.IngredientID)
	if err != nil {
		return MovementResult{}, err
	}
	unit := input.Unit
	if unit == "" {
		unit = scope.Ingredient.Unit
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var result MovementResult
	attempt := func(final bool) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			balance, err := s.selectIssueCandidate(ctx, tx, input)
			if err != nil {
				return err
			}
			updated, err := tx.Decrease(ctx, balance.ID, input.Quantity)
			if errors.Is(err, ErrConflict) {
				if !final {
					return err
				}
				// Another writer consumed the stock between selection and
				// decrease; report what is actually left.
				available, aerr := tx.MaxAvailable(ctx, input.IngredientID, input.StoreID, input.WarehouseID, input.BatchNumber)
				if aerr != nil {
					return aerr
				}
				return &InsufficientStockError{Requested: input.Quantity, Available: available}
			}
			if err != nil {
				return err
			}
			inserted, err := tx.InsertTransaction(ctx, Transaction{
				Type:           txType,
				IngredientID:   input.IngredientID,
				StoreID:        input.StoreID,
				WarehouseID:    input.WarehouseID,
				Quantity:       input.Quantity.Neg(),
				Unit:           unit,
				BatchNumber:    balance.BatchNumber,
				ExpirationDate: balance.ExpirationDate,
				CostPerUnit:    decimal.NullDecimal{Decimal: balance.CostPerUnit, Valid: true},
				TotalCost:      balance.CostPerUnit.Mul(input.Quantity),
				Reference:      input.Reference,
				UserID:         input.UserID,
				OwnerID:        input.OwnerID,
				Date:           date,
			})
			if err != nil {
				return err
			}
			if err := tx.SetLastTransaction(ctx, updated.ID, inserted.ID, date); err != nil {
				return err
			}
			updated.LastTransactionID = inserted.ID
			updated.LastTransactionAt = date
			result = MovementResult{Transaction: inserted, Balance: updated}
			return nil
		})
	}

	err = attempt(false)
	if errors.Is(err, ErrConflict) {
		err = attempt(true)
	}
	if err != nil {
		return MovementResult{}, err
	}

	s.recordAudit(ctx, input.UserID, input.OwnerID, "stock:"+string(txType), result.Transaction)
	s.invalidateReports(ctx)
	return result, nil
}

func (s *Service) selectIssueCandidate(ctx context.Context, tx TxRepository, input StockOutInput) (Balance, error) {
	if input.BatchNumber != "" {
		balance, err := tx.FindForTake(ctx, input.IngredientID, input.StoreID, input.WarehouseID, input.BatchNumber)
		if err != nil {
			return Balance{}, err
		}
		if balance.Quantity.LessThan(input.Quantity) {
			return Balance{}, &InsufficientStockError{Requested: input.Quantity, Available: balance.Quantity}
		}
		return balance, nil
	}
	balance, err := tx.SelectFIFO(ctx, input.IngredientID, input.StoreID, input.WarehouseID, input.Quantity)
	if errors.Is(err, ErrBalanceNotFound) {
		available, aerr := tx.MaxAvailable(ctx, input.IngredientID, input.StoreID, input.WarehouseID, "")
		if aerr != nil {
			return Balance{}, aerr
		}
		return Balance{}, &InsufficientStockError{Requested: input.Quantity, Available: available}
	}
	return balance, err
}

// Transfer moves a quantity between two warehouses of the same store as an
// out leg plus an in leg sharing one transaction. The destination lot keeps
// the source batch, expiration and unit cost.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if err := requireIDs(input.StoreID, input.SrcWarehouseID, input.IngredientID); err != nil {
		return TransferResult{}, err
	}
	if input.DstWarehouseID == 0 {
		return TransferResult{}, errors.New("stock: destination warehouse required")
	}
	if input.SrcWarehouseID == input.DstWarehouseID {
		return TransferResult{}, errors.New("stock: source and destination warehouse must differ")
	}
	if !input.Quantity.IsPositive() {
		return TransferResult{}, ErrInvalidQuantity
	}
	if err := validateReference(input.Reference); err != nil {
		return TransferResult{}, err
	}
	srcScope, err := s.resolver.ResolveScope(ctx, input.OwnerID, input.StoreID, input.SrcWarehouseID, input.IngredientID)
	if err != nil {
		return TransferResult{}, err
	}
	if _, err := s.resolver.ResolveScope(ctx, input.OwnerID, input.StoreID, input.DstWarehouseID, input.IngredientID); err != nil {
		return TransferResult{}, err
	}
	unit := input.Unit
	if unit == "" {
		unit = srcScope.Ingredient.Unit
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var result TransferResult
	attempt := func(final bool) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			balance, err := s.selectIssueCandidate(ctx, tx, StockOutInput{
				IngredientID: input.IngredientID,
				StoreID:      input.StoreID,
				WarehouseID:  input.SrcWarehouseID,
				Quantity:     input.Quantity,
				BatchNumber:  input.BatchNumber,
			})
			if err != nil {
				return err
			}
			updated, err := tx.Decrease(ctx, balance.ID, input.Quantity)
			if errors.Is(err, ErrConflict) {
				if !final {
					return err
				}
				available, aerr := tx.MaxAvailable(ctx, input.IngredientID, input.StoreID, input.SrcWarehouseID, input.BatchNumber)
				if aerr != nil {
					return aerr
				}
				return &InsufficientStockError{Requested: input.Quantity, Available: available}
			}
			if err != nil {
				return err
			}
			cost := decimal.NullDecimal{Decimal: balance.CostPerUnit, Valid: true}
			outTxn, err := tx.InsertTransaction(ctx, Transaction{
				Type:           TransactionTypeTransfer,
				IngredientID:   input.IngredientID,
				StoreID:        input.StoreID,
				WarehouseID:    input.SrcWarehouseID,
				Quantity:       input.Quantity.Neg(),
				Unit:           unit,
				BatchNumber:    balance.BatchNumber,
				ExpirationDate: balance.ExpirationDate,
				CostPerUnit:    cost,
				TotalCost:      balance.CostPerUnit.Mul(input.Quantity),
				Reference:      input.Reference,
				UserID:         input.UserID,
				OwnerID:        input.OwnerID,
				Date:           date,
			})
			if err != nil {
				return err
			}
			if err := tx.SetLastTransaction(ctx, updated.ID, outTxn.ID, date); err != nil {
				return err
			}
			dstKey := BalanceKey{
				IngredientID:   input.IngredientID,
				StoreID:        input.StoreID,
				WarehouseID:    input.DstWarehouseID,
				BatchNumber:    balance.BatchNumber,
				ExpirationDate: balance.ExpirationDate,
			}
			dstBalance, err := tx.UpsertIncrease(ctx, dstKey, input.Quantity, cost, srcScope.Ingredient.MinStock, srcScope.Ingredient.MaxStock)
			if err != nil {
				return err
			}
			inTxn, err := tx.InsertTransaction(ctx, Transaction{
				Type:           TransactionTypeTransfer,
				IngredientID:   input.IngredientID,
				StoreID:        input.StoreID,
				WarehouseID:    input.DstWarehouseID,
				Quantity:       input.Quantity,
				Unit:           unit,
				BatchNumber:    balance.BatchNumber,
				ExpirationDate: balance.ExpirationDate,
				CostPerUnit:    cost,
				TotalCost:      balance.CostPerUnit.Mul(input.Quantity),
				Reference:      input.Reference,
				UserID:         input.UserID,
				OwnerID:        input.OwnerID,
				Date:           date,
			})
			if err != nil {
				return err
			}
			if err := tx.SetLastTransaction(ctx, dstBalance.ID, inTxn.ID, date); err != nil {
				return err
			}
			updated.LastTransactionID = outTxn.ID
			updated.LastTransactionAt = date
			dstBalance.LastTransactionID = inTxn.ID
			dstBalance.LastTransactionAt = date
			result = TransferResult{
				Out: MovementResult{Transaction: outTxn, Balance: updated},
				In:  MovementResult{Transaction: inTxn, Balance: dstBalance},
			}
			return nil
		})
	}

	err = attempt(false)
	if errors.Is(err, ErrConflict) {
		err = attempt(true)
	}
	if err != nil {
		return TransferResult{}, err
	}

	s.recordAudit(ctx, input.UserID, input.OwnerID, "stock:transfer", result.Out.Transaction)
	s.invalidateReports(ctx)
	return result, nil
}

// StockTake reconciles one balance row against a physical count. A count
// matching the book quantity writes nothing; otherwise an adjustment
// transaction records the delta together with the before/after quantities.
func (s *Service) StockTake(ctx context.Context, input StockTakeInput) (StockTakeResult, error) {
	if err := requireIDs(input.StoreID, input.WarehouseID, input.IngredientID); err != nil {
		return StockTakeResult{}, err
	}
	if input.PhysicalCount.IsNegative() {
		return StockTakeResult{}, ErrInvalidCount
	}
	if err := validateReference(input.Reference); err != nil {
		return StockTakeResult{}, err
	}
	scope, err := s.resolver.ResolveScope(ctx, input.OwnerID, input.StoreID, input.WarehouseID, input.IngredientID)
	if err != nil {
		return StockTakeResult{}, err
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var result StockTakeResult
	attempt := func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			balance, err := tx.FindForTake(ctx, input.IngredientID, input.StoreID, input.WarehouseID, input.BatchNumber)
			if err != nil {
				return err
			}
			delta := input.PhysicalCount.Sub(balance.Quantity)
			if delta.IsZero() {
				result = StockTakeResult{Balance: balance, AdjustmentQuantity: decimal.Zero}
				return nil
			}
			inserted, err := tx.InsertTransaction(ctx, Transaction{
				Type:             TransactionTypeAdjustment,
				IngredientID:     input.IngredientID,
				StoreID:          input.StoreID,
				WarehouseID:      input.WarehouseID,
				Quantity:         delta,
				Unit:             scope.Ingredient.Unit,
				BatchNumber:      balance.BatchNumber,
				ExpirationDate:   balance.ExpirationDate,
				CostPerUnit:      decimal.NullDecimal{Decimal: balance.CostPerUnit, Valid: true},
				TotalCost:        balance.CostPerUnit.Mul(delta.Abs()),
				PreviousQuantity: decimal.NullDecimal{Decimal: balance.Quantity, Valid: true},
				NewQuantity:      decimal.NullDecimal{Decimal: input.PhysicalCount, Valid: true},
				Reference:        input.Reference,
				UserID:           input.UserID,
				OwnerID:          input.OwnerID,
				Date:             date,
			})
			if err != nil {
				return err
			}
			updated, err := tx.AdjustTo(ctx, balance.ID, balance.Quantity, input.PhysicalCount)
			if err != nil {
				return err
			}
			if err := tx.SetLastTransaction(ctx, updated.ID, inserted.ID, date); err != nil {
				return err
			}
			updated.LastTransactionID = inserted.ID
			updated.LastTransactionAt = date
			result = StockTakeResult{Transaction: &inserted, Balance: updated, AdjustmentQuantity: delta}
			return nil
		})
	}

	err = attempt()
	if errors.Is(err, ErrConflict) {
		// The book quantity moved between count lookup and adjustment;
		// re-read once and recompute the delta against the fresh value.
		err = attempt()
	}
	if err != nil {
		return StockTakeResult{}, err
	}

	if result.Transaction != nil {
		s.recordAudit(ctx, input.UserID, input.OwnerID, "stock:adjustment", *result.Transaction)
		s.invalidateReports(ctx)
	}
	return result, nil
}

// GetBalance loads one balance row by id. The row must belong to the owner;
// another tenant's balance reads as not found so ids cannot be enumerated
// across tenants.
func (s *Service) GetBalance(ctx context.Context, ownerID, id int64) (Balance, error) {
	balance, err := s.repo.GetBalance(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	if err := s.checkOwnership(ctx, ownerID, balance); err != nil {
		return Balance{}, err
	}
	return balance, nil
}

// GetBalanceByKey loads the balance row for an exact key, scoped to the owner.
func (s *Service) GetBalanceByKey(ctx context.Context, ownerID int64, key BalanceKey) (Balance, error) {
	balance, err := s.repo.GetBalanceByKey(ctx, key)
	if err != nil {
		return Balance{}, err
	}
	if err := s.checkOwnership(ctx, ownerID, balance); err != nil {
		return Balance{}, err
	}
	return balance, nil
}

func (s *Service) checkOwnership(ctx context.Context, ownerID int64, balance Balance) error {
	_, err := s.resolver.ResolveScope(ctx, ownerID, balance.StoreID, balance.WarehouseID, balance.IngredientID)
	if errors.Is(err, masterdata.ErrOwnerMismatch) || errors.Is(err, shared.ErrNotFound) {
		return ErrBalanceNotFound
	}
	return err
}

// ListBalances lists balances matching the filter.
func (s *Service) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	return s.repo.ListBalances(ctx, filter)
}

// History scans the ledger, newest first.
func (s *Service) History(ctx context.Context, filter HistoryFilter, page, limit int) ([]Transaction, shared.Pagination, error) {
	txns, total, err := s.repo.History(ctx, filter, page, limit)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return txns, shared.NewPagination(page, limit, total), nil
}

// LowStockReport lists balances at or below their reorder threshold, served
// from the report cache when available.
func (s *Service) LowStockReport(ctx context.Context, filter ReportFilter) ([]LowStockItem, error) {
	var items []LowStockItem
	key, err := s.reports.BuildKey(ctx, reportKeyParts("stock:reports:low_stock", filter)...)
	if err != nil {
		return nil, err
	}
	err = s.reports.FetchJSON(ctx, key, &items, func(ctx context.Context) (any, error) {
		return s.repo.LowStock(ctx, filter)
	})
	return items, err
}

// ExpiringReport lists lots expiring within the window. A non-positive window
// falls back to DefaultExpiryWindowDays.
func (s *Service) ExpiringReport(ctx context.Context, filter ReportFilter, windowDays int) ([]ExpiryItem, error) {
	if windowDays <= 0 {
		windowDays = DefaultExpiryWindowDays
	}
	horizon := time.Now().UTC().AddDate(0, 0, windowDays)
	var items []ExpiryItem
	key, err := s.reports.BuildKey(ctx, append(reportKeyParts("stock:reports:expiring", filter), strconv.Itoa(windowDays))...)
	if err != nil {
		return nil, err
	}
	err = s.reports.FetchJSON(ctx, key, &items, func(ctx context.Context) (any, error) {
		return s.repo.Expiring(ctx, filter, horizon)
	})
	return items, err
}

// ExpiredReport lists lots already past their expiration date.
func (s *Service) ExpiredReport(ctx context.Context, filter ReportFilter) ([]ExpiryItem, error) {
	return s.repo.Expired(ctx, filter)
}

// SummaryReport fans out the three derived reports concurrently.
func (s *Service) SummaryReport(ctx context.Context, filter ReportFilter, windowDays int) (Summary, error) {
	var summary Summary
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.LowStockReport(ctx, filter)
		summary.LowStock = items
		return err
	})
	g.Go(func() error {
		items, err := s.ExpiringReport(ctx, filter, windowDays)
		summary.Expiring = items
		return err
	})
	g.Go(func() error {
		items, err := s.ExpiredReport(ctx, filter)
		summary.Expired = items
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// propagateCostChange refreshes the ingredient's rolling average cost and
// notifies listeners. Both are best-effort: the movement has already
// committed and the rollup is informational, never authoritative over the
// per-lot balance cost.
func (s *Service) propagateCostChange(ctx context.Context, ingredientID, ownerID int64, at time.Time) {
	if s.costs == nil {
		return
	}
	avg, err := s.costs.RecalculateAverageCost(ctx, ingredientID)
	if err != nil {
		return
	}
	if s.notifier == nil {
		return
	}
	_ = s.notifier.NotifyCostChanged(ctx, CostChangedEvent{
		IngredientID: ingredientID,
		OwnerID:      ownerID,
		AverageCost:  avg,
		OccurredAt:   at,
	})
}

func (s *Service) recordAudit(ctx context.Context, userID, ownerID int64, action string, txn Transaction) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  userID,
		OwnerID:  ownerID,
		Action:   action,
		Entity:   "stock_transaction",
		EntityID: strconv.FormatInt(txn.ID, 10),
		Meta: map[string]any{
			"ingredient_id": txn.IngredientID,
			"store_id":      txn.StoreID,
			"warehouse_id":  txn.WarehouseID,
			"quantity":      txn.Quantity.String(),
			"batch_number":  txn.BatchNumber,
		},
	})
}

func (s *Service) invalidateReports(ctx context.Context) {
	_ = s.reports.Bump(ctx)
}

func requireIDs(storeID, warehouseID, ingredientID int64) error {
	if storeID == 0 || warehouseID == 0 || ingredientID == 0 {
		return errors.New("stock: store, warehouse and ingredient required")
	}
	return nil
}

func reportKeyParts(prefix string, filter ReportFilter) []string {
	return []string{
		prefix,
		strconv.FormatInt(filter.OwnerID, 10),
		strconv.FormatInt(filter.StoreID, 10),
		strconv.FormatInt(filter.WarehouseID, 10),
	}
}

func validateReference(ref string) error {
	if ref == "" {
		return nil
	}
	if _, err := uuid.Parse(ref); err != nil {
		return fmt.Errorf("stock: invalid reference id: %w", err)
	}
	return nil
}
