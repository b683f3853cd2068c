package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CostChangedEvent is emitted after a costed stock-in moves an ingredient's
// rolling average cost.
type CostChangedEvent struct {
	IngredientID int64           `json:"ingredient_id"`
	OwnerID      int64           `json:"owner_id"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// CostNotifier delivers cost-change events to interested listeners. Delivery
// is fire-and-forget: the engine never blocks on, retries, or fails a stock-in
// because of it.
type CostNotifier interface {
	NotifyCostChanged(ctx context.Context, evt CostChangedEvent) error
}
