package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/mise-erp/mise-erp/internal/stock"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeCostChanged fans out ingredient average-cost changes.
	TaskTypeCostChanged = "stock:cost_changed"
	// TaskTypeExpiryScan sweeps balances for expired lots.
	TaskTypeExpiryScan = "stock:expiry_scan"
)

// NewCostChangedTask constructs an Asynq task carrying a cost-change event.
func NewCostChangedTask(evt stock.CostChangedEvent) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCostChanged, data), nil
}

// NewExpiryScanTask constructs the periodic expiry sweep task.
func NewExpiryScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeExpiryScan, nil)
}
