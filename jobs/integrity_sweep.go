package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/procurement-portal/internal/jobmetrics"
)

// Anomaly kinds reported by the integrity sweep.
const (
	AnomalyUnlockedOrder = "unlocked_order"
	AnomalyOverLimit     = "over_limit_client"
)

// IntegrityStore runs the integrity queries.
type IntegrityStore interface {
	// UnlockedClosedOrders counts orders of closed periods not yet locked,
	// locking them when repair is set.
	UnlockedClosedOrders(ctx context.Context, repair bool) (int64, error)
	// OverLimitClients counts clients whose committed spend exceeds their limit.
	OverLimitClients(ctx context.Context) (int64, error)
}

// IntegritySweepJob verifies the invariants the ledger and period close are
// expected to maintain.
type IntegritySweepJob struct {
	Store   IntegrityStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// IntegrityReport summarises one sweep.
type IntegrityReport struct {
	UnlockedOrders   int64
	OverLimitClients int64
}

// NewIntegritySweepJob initialises the sweep handler.
func NewIntegritySweepJob(store IntegrityStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegritySweepJob {
	return &IntegritySweepJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the sweep.
func (j *IntegritySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("integrity sweep: handler not configured")
	}
	var payload IntegritySweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode %s: %v: %w", TaskIntegritySweep, err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run performs both checks concurrently and records findings.
func (j *IntegritySweepJob) Run(ctx context.Context, payload IntegritySweepPayload) (report IntegrityReport, err error) {
	start := time.Now()
	tracker := j.Metrics.Track("integrity_sweep")
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.logger().With(slog.Bool("repair", payload.Repair))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := j.Store.UnlockedClosedOrders(gctx, payload.Repair)
		if err != nil {
			return fmt.Errorf("unlocked orders: %w", err)
		}
		report.UnlockedOrders = n
		return nil
	})
	g.Go(func() error {
		n, err := j.Store.OverLimitClients(gctx)
		if err != nil {
			return fmt.Errorf("over limit clients: %w", err)
		}
		report.OverLimitClients = n
		return nil
	})
	if err = g.Wait(); err != nil {
		logger.Error("integrity sweep failed", slog.Any("error", err))
		return report, err
	}

	if report.UnlockedOrders > 0 {
		logger.Warn("orders of closed periods were unlocked", slog.Int64("count", report.UnlockedOrders))
		j.Metrics.AddAnomalies(AnomalyUnlockedOrder, int(report.UnlockedOrders))
	}
	if report.OverLimitClients > 0 {
		logger.Warn("clients over budget limit", slog.Int64("count", report.OverLimitClients))
		j.Metrics.AddAnomalies(AnomalyOverLimit, int(report.OverLimitClients))
	}
	logger.Info("integrity sweep completed",
		slog.Int64("unlocked_orders", report.UnlockedOrders),
		slog.Int64("over_limit_clients", report.OverLimitClients),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (j *IntegritySweepJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

// PostgresIntegrityStore implements IntegrityStore with pgx.
type PostgresIntegrityStore struct {
	pool *pgxpool.Pool
}

// NewPostgresIntegrityStore constructs the store.
func NewPostgresIntegrityStore(pool *pgxpool.Pool) *PostgresIntegrityStore {
	return &PostgresIntegrityStore{pool: pool}
}

// UnlockedClosedOrders implements IntegrityStore.
func (s *PostgresIntegrityStore) UnlockedClosedOrders(ctx context.Context, repair bool) (int64, error) {
	if repair {
		tag, err := s.pool.Exec(ctx, `UPDATE orders o SET is_locked = TRUE, updated_at = NOW()
FROM quarterly_periods qp
WHERE o.period_id = qp.id AND qp.status = 'closed' AND o.is_locked = FALSE`)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders o
JOIN quarterly_periods qp ON qp.id = o.period_id
WHERE qp.status = 'closed' AND o.is_locked = FALSE`).Scan(&n)
	return n, err
}

// OverLimitClients implements IntegrityStore.
func (s *PostgresIntegrityStore) OverLimitClients(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE budget_used > budget_limit`).Scan(&n)
	return n, err
}
