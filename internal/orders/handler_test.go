package orders

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/procurement-portal/internal/budget"
	"github.com/odyssey-erp/procurement-portal/internal/platform/httpx"
)

type stubService struct {
	createIn   CreateInput
	createErr  error
	updateIn   UpdateStatusInput
	updateErr  error
	listFilter ListFilter
	orders     []Order
}

func (s *stubService) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	s.createIn = in
	if s.createErr != nil {
		return CreateResult{}, s.createErr
	}
	return CreateResult{OrderID: 31, Status: StatusPending}, nil
}

func (s *stubService) UpdateStatus(ctx context.Context, in UpdateStatusInput) (Status, error) {
	s.updateIn = in
	if s.updateErr != nil {
		return "", s.updateErr
	}
	return in.Status, nil
}

func (s *stubService) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	s.listFilter = filter
	return s.orders, nil
}

func (s *stubService) Get(ctx context.Context, id int64) (Order, error) {
	for _, o := range s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func newTestRouter(svc OrderService) http.Handler {
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/api", handler.MountRoutes)
	r.Handle("/api/v1", httpx.ActionDispatcher(handler.Actions()...))
	return r
}

func send(router http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderHandler(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	rec := send(router, http.MethodPost, "/api/orders", `{"client_id": 1, "items": [{"product_id": 2, "quantity": 3, "price": 12.5}]}`, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"order_id": 31, "status": "pending"}`, rec.Body.String())
	require.Equal(t, int64(1), svc.createIn.ClientID)
	require.Equal(t, "abc", svc.createIn.IdempotencyKey)
	require.Len(t, svc.createIn.Items, 1)
	require.True(t, svc.createIn.Items[0].Price.Equal(decimal.RequireFromString("12.5")))

	rec = send(router, http.MethodPost, "/api/v1?action=create_order", `{"items": []}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"VALIDATION"`)

	rec = send(router, http.MethodPost, "/api/orders", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrEmptyOrder, http.StatusBadRequest, CodeEmptyOrder},
		{ErrInvalidQuantity, http.StatusBadRequest, CodeInvalidQuantity},
		{ErrUnknownProduct, http.StatusBadRequest, CodeUnknownProduct},
		{ErrPeriodClosed, http.StatusConflict, CodePeriodClosed},
		{ErrDuplicateSubmission, http.StatusConflict, CodeDuplicate},
		{&budget.OverBudgetError{ClientID: 1, Total: decimal.NewFromInt(10), Remaining: decimal.NewFromInt(5)}, http.StatusUnprocessableEntity, CodeOverBudget},
		{ErrNotFound, http.StatusNotFound, httpx.CodeNotFound},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, httpx.CodeInternal},
	}
	for _, tc := range cases {
		router := newTestRouter(&stubService{createErr: tc.err})
		rec := send(router, http.MethodPost, "/api/orders", `{"client_id": 1, "items": [{"product_id": 2, "quantity": 1}]}`)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		var body httpx.ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.code, body.Code)
		if tc.status == http.StatusInternalServerError {
			require.Equal(t, "internal error", body.Error)
		}
	}
}

func TestUpdateStatusHandler(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	rec := send(router, http.MethodPut, "/api/v1?action=update_order&order_id=12", `{"status": "approved", "admin_id": 9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status": "approved"}`, rec.Body.String())
	require.Equal(t, UpdateStatusInput{OrderID: 12, Status: StatusApproved, AdminID: 9}, svc.updateIn)

	rec = send(router, http.MethodPut, "/api/orders/12/status", `{"admin_id": 9}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	svc.updateErr = ErrOrderLocked
	rec = send(router, http.MethodPut, "/api/orders/12/status", `{"status": "rejected"}`)
	require.Equal(t, http.StatusLocked, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"ORDER_LOCKED"`)

	svc.updateErr = ErrInvalidTransition
	rec = send(router, http.MethodPut, "/api/orders/12/status", `{"status": "pending"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"INVALID_TRANSITION"`)

	rec = send(router, http.MethodPut, "/api/v1?action=update_order", `{"status": "approved"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatusHandlerUnknownStatus(t *testing.T) {
	f := newFixture(200000, 0)
	id := f.create(t, line(2, 1))
	router := newTestRouter(f.svc)

	rec := send(router, http.MethodPut, "/api/v1?action=update_order&order_id=999", `{"status": "archived"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"NOT_FOUND"`)

	rec = send(router, http.MethodPut, "/api/orders/"+strconv.FormatInt(id, 10)+"/status", `{"status": "archived"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"INVALID_TRANSITION"`)

	order, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	require.True(t, f.repo.used(clientID).IsZero())
}

func TestListOrdersHandler(t *testing.T) {
	svc := &stubService{orders: []Order{{ID: 5, ClientID: 1, Status: StatusPending, Total: decimal.RequireFromString("99.90"), Items: []Item{}}}}
	router := newTestRouter(svc)

	rec := send(router, http.MethodGet, "/api/v1?action=orders&client_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, ListFilter{ClientID: 1}, svc.listFilter)
	var orders []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	require.EqualValues(t, 99.9, orders[0]["total"])

	rec = send(router, http.MethodGet, "/api/orders?status=approved&period_id=4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, ListFilter{Status: StatusApproved, PeriodID: 4}, svc.listFilter)

	rec = send(router, http.MethodGet, "/api/orders?status=bogus", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(router, http.MethodGet, "/api/orders/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = send(router, http.MethodGet, "/api/orders/6", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
