package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/procurement-portal/internal/orders"
	"github.com/odyssey-erp/procurement-portal/internal/periods"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOrderDecided notifies a client that an order was approved or rejected.
	TaskOrderDecided = "orders:decided"
	// TaskPeriodClosed notifies clients that order collection ended.
	TaskPeriodClosed = "periods:closed"
	// TaskIntegritySweep verifies period locks and budget limits.
	TaskIntegritySweep = "portal:integrity_sweep"
	// TaskIdempotencyCleanup purges expired submission keys.
	TaskIdempotencyCleanup = "portal:idempotency_cleanup"
)

// IntegritySweepPayload tunes the integrity sweep.
type IntegritySweepPayload struct {
	// Repair relocks orders left unlocked in closed periods.
	Repair bool `json:"repair"`
}

// IdempotencyCleanupPayload controls key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

func (p IdempotencyCleanupPayload) retention() time.Duration {
	if p.RetentionHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewOrderDecidedTask builds the decision notification task.
func NewOrderDecidedTask(event orders.DecidedEvent) (*asynq.Task, error) {
	return newTask(TaskOrderDecided, event, asynq.MaxRetry(5))
}

// NewPeriodClosedTask builds the period close notification task.
func NewPeriodClosedTask(event periods.ClosedEvent) (*asynq.Task, error) {
	return newTask(TaskPeriodClosed, event, asynq.MaxRetry(5))
}

// NewIntegritySweepTask builds the integrity sweep task.
func NewIntegritySweepTask(payload IntegritySweepPayload) (*asynq.Task, error) {
	return newTask(TaskIntegritySweep, payload, asynq.MaxRetry(1), asynq.Timeout(5*time.Minute))
}

// NewIdempotencyCleanupTask builds the key cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, payload, asynq.MaxRetry(1))
}

func newTask(typ string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)...), nil
}
