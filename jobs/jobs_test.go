package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/procurement-portal/internal/jobmetrics"
	"github.com/odyssey-erp/procurement-portal/internal/orders"
	"github.com/odyssey-erp/procurement-portal/internal/periods"
	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type auditSpy struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditSpy) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func TestOrderDecidedNotification(t *testing.T) {
	audit := &auditSpy{}
	job := &NotificationJob{Audit: audit, Logger: discard}
	admin := int64(9)
	task, err := NewOrderDecidedTask(orders.DecidedEvent{
		OrderID:   12,
		ClientID:  3,
		Status:    orders.StatusApproved,
		Total:     decimal.RequireFromString("1250.5"),
		DecidedBy: &admin,
		DecidedAt: time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, TaskOrderDecided, task.Type())

	require.NoError(t, job.HandleOrderDecided(context.Background(), task))
	require.Len(t, audit.logs, 1)
	log := audit.logs[0]
	require.Equal(t, "notification.order_decided", log.Action)
	require.Equal(t, "3", log.EntityID)
	require.Equal(t, admin, log.ActorID)
	require.Equal(t, "1250.50", log.Meta["total"])
}

func TestPeriodClosedNotification(t *testing.T) {
	audit := &auditSpy{}
	job := &NotificationJob{Audit: audit, Logger: discard}
	task, err := NewPeriodClosedTask(periods.ClosedEvent{PeriodID: 4, Year: 2025, Quarter: 4, LockedOrders: 17, ClosedBy: 9})
	require.NoError(t, err)

	require.NoError(t, job.HandlePeriodClosed(context.Background(), task))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "quarterly_period", audit.logs[0].Entity)
	require.Equal(t, int64(17), audit.logs[0].Meta["locked_orders"])
}

func TestNotificationRejectsMalformedPayloads(t *testing.T) {
	job := &NotificationJob{Audit: &auditSpy{}, Logger: discard}

	err := job.HandleOrderDecided(context.Background(), asynq.NewTask(TaskOrderDecided, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.HandlePeriodClosed(context.Background(), asynq.NewTask(TaskPeriodClosed, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type integrityStub struct {
	unlocked    int64
	overLimit   int64
	err         error
	repairCalls []bool
	mu          sync.Mutex
}

func (s *integrityStub) UnlockedClosedOrders(ctx context.Context, repair bool) (int64, error) {
	s.mu.Lock()
	s.repairCalls = append(s.repairCalls, repair)
	s.mu.Unlock()
	return s.unlocked, s.err
}

func (s *integrityStub) OverLimitClients(ctx context.Context) (int64, error) {
	return s.overLimit, nil
}

func TestIntegritySweepReportsAnomalies(t *testing.T) {
	store := &integrityStub{unlocked: 2, overLimit: 1}
	job := NewIntegritySweepJob(store, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIntegritySweepTask(IntegritySweepPayload{Repair: true})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []bool{true}, store.repairCalls)

	report, err := job.Run(context.Background(), IntegritySweepPayload{})
	require.NoError(t, err)
	require.Equal(t, IntegrityReport{UnlockedOrders: 2, OverLimitClients: 1}, report)
}

func TestIntegritySweepPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	job := NewIntegritySweepJob(&integrityStub{err: boom}, discard, nil)

	_, err := job.Run(context.Background(), IntegritySweepPayload{})
	require.ErrorIs(t, err, boom)
}

type cleanerStub struct {
	olderThan time.Duration
}

func (c *cleanerStub) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	c.olderThan = olderThan
	return 4, nil
}

func TestIdempotencyCleanupDefaults(t *testing.T) {
	cleaner := &cleanerStub{}
	job := &IdempotencyCleanupJob{Store: cleaner, Logger: discard}

	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 72*time.Hour, cleaner.olderThan)

	task, err = NewIdempotencyCleanupTask(IdempotencyCleanupPayload{RetentionHours: 6})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 6*time.Hour, cleaner.olderThan)
}

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (i inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return i.info, i.err
}

func TestHealthHandler(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := serve(NewHandler(nil, discard))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"failed":0}`, rec.Body.String())

	rec = serve(NewHandler(inspectorStub{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Active: 1}}, discard))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":3,"active":1,"failed":0}`, rec.Body.String())

	rec = serve(NewHandler(inspectorStub{err: errors.New("redis down")}, discard))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
