package orders

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/procurement-portal/internal/budget"
	"github.com/odyssey-erp/procurement-portal/internal/platform/httpx"
	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

// Error codes returned by order endpoints.
const (
	CodeEmptyOrder        = "EMPTY_ORDER"
	CodeInvalidQuantity   = "INVALID_QUANTITY"
	CodeUnknownProduct    = "UNKNOWN_PRODUCT"
	CodePeriodClosed      = "PERIOD_CLOSED"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeDuplicate         = "DUPLICATE"
	CodeOrderLocked       = "ORDER_LOCKED"
	CodeOverBudget        = "OVER_BUDGET"
)

var errorMappings = []httpx.ErrorMapping{
	{Target: ErrEmptyOrder, Status: http.StatusBadRequest, Code: CodeEmptyOrder},
	{Target: ErrInvalidQuantity, Status: http.StatusBadRequest, Code: CodeInvalidQuantity},
	{Target: ErrUnknownProduct, Status: http.StatusBadRequest, Code: CodeUnknownProduct},
	{Target: ErrNotFound, Status: http.StatusNotFound, Code: httpx.CodeNotFound},
	{Target: shared.ErrForbidden, Status: http.StatusForbidden, Code: httpx.CodeForbidden},
	{Target: ErrPeriodClosed, Status: http.StatusConflict, Code: CodePeriodClosed},
	{Target: ErrInvalidTransition, Status: http.StatusConflict, Code: CodeInvalidTransition},
	{Target: ErrDuplicateSubmission, Status: http.StatusConflict, Code: CodeDuplicate},
	{Target: ErrOrderLocked, Status: http.StatusLocked, Code: CodeOrderLocked},
	{Target: budget.ErrOverBudget, Status: http.StatusUnprocessableEntity, Code: CodeOverBudget},
}

// OrderService is the behaviour the handler depends on.
type OrderService interface {
	Create(ctx context.Context, in CreateInput) (CreateResult, error)
	UpdateStatus(ctx context.Context, in UpdateStatusInput) (Status, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
	Get(ctx context.Context, id int64) (Order, error)
}

// Handler exposes order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   OrderService
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service OrderService) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.list)
	r.Post("/orders", h.create)
	r.Get("/orders/{id}", h.get)
	r.Put("/orders/{id}/status", h.updateStatus)
}

// Actions lists the handlers reachable through the action dispatcher.
func (h *Handler) Actions() []httpx.Action {
	return []httpx.Action{
		{Name: "orders", Method: http.MethodGet, Handler: h.list},
		{Name: "create_order", Method: http.MethodPost, Handler: h.create},
		{Name: "update_order", Method: http.MethodPut, Handler: h.updateStatus, URLParams: map[string]string{"id": "order_id"}},
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid client_id")
			return
		}
		filter.ClientID = id
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := Status(raw)
		if !status.IsValid() {
			httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid status")
			return
		}
		filter.Status = status
	}
	if raw := q.Get("period_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid period_id")
			return
		}
		filter.PeriodID = id
	}
	orders, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, describeValidation(err))
		return
	}
	result, err := h.service.Create(r.Context(), req.toInput(strings.TrimSpace(r.Header.Get("Idempotency-Key"))))
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "status is required")
		return
	}
	status, err := h.service.UpdateStatus(r.Context(), UpdateStatusInput{OrderID: id, Status: Status(req.Status), AdminID: req.AdminID})
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	httpx.JSON(w, http.StatusOK, updateStatusResponse{Status: status})
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid order id")
		return 0, false
	}
	return id, true
}
