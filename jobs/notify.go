package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/procurement-portal/internal/orders"
	"github.com/odyssey-erp/procurement-portal/internal/periods"
	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NotificationJob delivers order and period notifications. Delivery is the
// notification trail in audit_logs; the portal UI reads it from there.
type NotificationJob struct {
	Audit  AuditPort
	Logger *slog.Logger
}

// HandleOrderDecided processes TaskOrderDecided tasks.
func (j *NotificationJob) HandleOrderDecided(ctx context.Context, t *asynq.Task) error {
	var event orders.DecidedEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("decode %s: %v: %w", TaskOrderDecided, err, asynq.SkipRetry)
	}
	if event.OrderID == 0 || event.ClientID == 0 {
		return fmt.Errorf("%s: order and client required: %w", TaskOrderDecided, asynq.SkipRetry)
	}
	var actor int64
	if event.DecidedBy != nil {
		actor = *event.DecidedBy
	}
	j.logger().Info("order decision notification",
		slog.Int64("order_id", event.OrderID),
		slog.Int64("client_id", event.ClientID),
		slog.String("status", string(event.Status)),
		slog.String("total", shared.FormatAmount(event.Total)),
	)
	return j.record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   "notification.order_decided",
		Entity:   "client",
		EntityID: strconv.FormatInt(event.ClientID, 10),
		Meta: map[string]any{
			"order_id": event.OrderID,
			"status":   event.Status,
			"total":    event.Total.StringFixed(2),
		},
		At: event.DecidedAt,
	})
}

// HandlePeriodClosed processes TaskPeriodClosed tasks.
func (j *NotificationJob) HandlePeriodClosed(ctx context.Context, t *asynq.Task) error {
	var event periods.ClosedEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("decode %s: %v: %w", TaskPeriodClosed, err, asynq.SkipRetry)
	}
	if event.PeriodID == 0 {
		return fmt.Errorf("%s: period required: %w", TaskPeriodClosed, asynq.SkipRetry)
	}
	j.logger().Info("period closed notification",
		slog.Int64("period_id", event.PeriodID),
		slog.String("period", fmt.Sprintf("Q%d %d", event.Quarter, event.Year)),
		slog.Int64("locked_orders", event.LockedOrders),
	)
	return j.record(ctx, shared.AuditLog{
		ActorID:  event.ClosedBy,
		Action:   "notification.period_closed",
		Entity:   "quarterly_period",
		EntityID: strconv.FormatInt(event.PeriodID, 10),
		Meta: map[string]any{
			"year":          event.Year,
			"quarter":       event.Quarter,
			"locked_orders": event.LockedOrders,
		},
		At: event.ClosedAt,
	})
}

func (j *NotificationJob) record(ctx context.Context, log shared.AuditLog) error {
	if j.Audit == nil {
		return errors.New("notification: audit store not configured")
	}
	return j.Audit.Record(ctx, log)
}

func (j *NotificationJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
