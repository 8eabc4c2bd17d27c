package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/procurement-portal/internal/orders"
	"github.com/odyssey-erp/procurement-portal/internal/periods"
)

// Client submits jobs to the queue. It satisfies the notifier ports of the
// order and period services.
type Client struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{client: asynq.NewClient(redisOpts), logger: logger}
}

// OrderDecided enqueues a decision notification.
func (c *Client) OrderDecided(ctx context.Context, event orders.DecidedEvent) error {
	task, err := NewOrderDecidedTask(event)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

// PeriodClosed enqueues a period close notification.
func (c *Client) PeriodClosed(ctx context.Context, event periods.ClosedEvent) error {
	task, err := NewPeriodClosedTask(event)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

// EnqueueMaintenance enqueues a maintenance job by task type.
func (c *Client) EnqueueMaintenance(ctx context.Context, typ string) error {
	var (
		task *asynq.Task
		err  error
	)
	switch typ {
	case TaskIntegritySweep:
		task, err = NewIntegritySweepTask(IntegritySweepPayload{Repair: true})
	case TaskIdempotencyCleanup:
		task, err = NewIdempotencyCleanupTask(IdempotencyCleanupPayload{})
	default:
		return fmt.Errorf("jobs: unknown maintenance task %q", typ)
	}
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task) error {
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", task.Type(), err)
	}
	c.logger.Debug("task enqueued", slog.String("type", task.Type()), slog.String("id", info.ID))
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
