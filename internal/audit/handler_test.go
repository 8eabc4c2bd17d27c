package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type stubTimelineService struct {
	result      Result
	exportRows  []TimelineRow
	approvals   []ApprovalEntry
	lastFilters TimelineFilters
	lastOrder   int64
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func (s *stubTimelineService) OrderApprovals(ctx context.Context, orderID int64) ([]ApprovalEntry, error) {
	s.lastOrder = orderID
	return s.approvals, nil
}

func serveAudit(t *testing.T, svc TimelineService, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestTimelineParsesFilters(t *testing.T) {
	svc := &stubTimelineService{result: Result{Rows: []TimelineRow{}, Paging: PagingInfo{Page: 2, PageSize: 10}}}

	rec := serveAudit(t, svc, "/audit?entity=client&entity_id=3&action=notification.order_decided&from=2025-10-01&to=2025-12-31T00:00:00Z&page=2&page_size=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Paging.Page)
	require.Equal(t, TimelineFilters{
		From:     time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Entity:   "client",
		EntityID: "3",
		Action:   "notification.order_decided",
		Page:     2,
		PageSize: 10,
	}, svc.lastFilters)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	for _, target := range []string{
		"/audit?from=yesterday",
		"/audit?from=2025-12-31&to=2025-10-01",
		"/audit?page=0",
	} {
		rec := serveAudit(t, &stubTimelineService{}, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.Contains(t, rec.Body.String(), `"code":"VALIDATION"`, target)
	}
}

func TestExportWritesCSV(t *testing.T) {
	svc := &stubTimelineService{exportRows: []TimelineRow{{
		At:       time.Date(2025, 12, 20, 9, 0, 0, 0, time.UTC),
		ActorID:  1,
		Action:   "period.close",
		Entity:   "quarterly_period",
		EntityID: "4",
		Meta:     json.RawMessage(`{"locked_orders":17}`),
	}}}

	rec := serveAudit(t, svc, "/audit/export.csv?entity=quarterly_period")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "at,actor_id,action,entity,entity_id,meta", lines[0])
	require.Equal(t, `2025-12-20T09:00:00Z,1,period.close,quarterly_period,4,"{""locked_orders"":17}"`, lines[1])
}

func TestOrderApprovalsEndpoint(t *testing.T) {
	svc := &stubTimelineService{approvals: []ApprovalEntry{{ActorID: 1, Action: "REJECT"}}}

	rec := serveAudit(t, svc, "/orders/42/approvals")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 42, svc.lastOrder)
	require.Contains(t, rec.Body.String(), `"action":"REJECT"`)

	rec = serveAudit(t, svc, "/orders/abc/approvals")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
