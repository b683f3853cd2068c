package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/mise-erp/mise-erp/internal/stock"
)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt, logger *slog.Logger) *Client {
	return &Client{client: asynq.NewClient(redisOpts), logger: logger}
}

// NotifyCostChanged enqueues a cost-change event for background fan-out.
// Implements stock.CostNotifier.
func (c *Client) NotifyCostChanged(ctx context.Context, evt stock.CostChangedEvent) error {
	task, err := NewCostChangedTask(evt)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	if err != nil {
		c.logger.Warn("enqueue cost change", slog.Any("error", err), slog.Int64("ingredient_id", evt.IngredientID))
	}
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
