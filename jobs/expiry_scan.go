package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/mise-erp/mise-erp/internal/stock"
)

// ExpiredLister provides the expired-lot report for the sweep.
type ExpiredLister interface {
	ExpiredReport(ctx context.Context, filter stock.ReportFilter) ([]stock.ExpiryItem, error)
}

// ExpiryScanner surfaces lots past their expiration date. The sweep is
// read-only: writing off an expired lot stays an explicit, user-initiated
// operation so the ledger records who approved the loss.
type ExpiryScanner struct {
	logger  *slog.Logger
	reports ExpiredLister
}

// NewExpiryScanner constructs the scanner.
func NewExpiryScanner(logger *slog.Logger, reports ExpiredLister) *ExpiryScanner {
	return &ExpiryScanner{logger: logger, reports: reports}
}

// HandleExpiryScan processes TaskTypeExpiryScan tasks across all tenants.
func (s *ExpiryScanner) HandleExpiryScan(ctx context.Context, _ *asynq.Task) error {
	items, err := s.reports.ExpiredReport(ctx, stock.ReportFilter{})
	if err != nil {
		s.logger.Error("expiry scan failed", slog.Any("error", err))
		return err
	}
	for _, item := range items {
		s.logger.Warn("expired lot on hand",
			slog.Int64("balance_id", item.Balance.ID),
			slog.Int64("ingredient_id", item.Balance.IngredientID),
			slog.Int64("store_id", item.Balance.StoreID),
			slog.Int64("warehouse_id", item.Balance.WarehouseID),
			slog.String("ingredient", item.IngredientName),
			slog.String("batch_number", item.Balance.BatchNumber),
			slog.String("quantity", item.Balance.Quantity.String()),
			slog.Time("expired_at", item.ExpiresAt),
		)
	}
	s.logger.Info("expiry scan complete", slog.Int("expired_lots", len(items)))
	return nil
}

// HandleCostChangedTask processes TaskTypeCostChanged tasks.
func HandleCostChangedTask(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var evt stock.CostChangedEvent
		if err := json.Unmarshal(t.Payload(), &evt); err != nil {
			return asynq.SkipRetry
		}
		// Placeholder: push to purchasing alerts once that channel exists.
		logger.Info("ingredient average cost changed",
			slog.Int64("ingredient_id", evt.IngredientID),
			slog.Int64("owner_id", evt.OwnerID),
			slog.String("average_cost", evt.AverageCost.String()),
			slog.Time("occurred_at", evt.OccurredAt),
		)
		return nil
	}
}
