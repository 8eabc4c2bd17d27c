package periods

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/procurement-portal/internal/platform/httpx"
	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

// Error codes returned by period endpoints.
const (
	CodeNoActivePeriod    = "NO_ACTIVE_PERIOD"
	CodeAlreadyClosed     = "ALREADY_CLOSED"
	CodeAnotherPeriodOpen = "ANOTHER_PERIOD_OPEN"
	CodeInvalidTransition = "INVALID_TRANSITION"
)

var errorMappings = []httpx.ErrorMapping{
	{Target: ErrNotFound, Status: http.StatusNotFound, Code: httpx.CodeNotFound},
	{Target: ErrNoActivePeriod, Status: http.StatusConflict, Code: CodeNoActivePeriod},
	{Target: ErrAlreadyClosed, Status: http.StatusConflict, Code: CodeAlreadyClosed},
	{Target: ErrAnotherPeriodOpen, Status: http.StatusConflict, Code: CodeAnotherPeriodOpen},
	{Target: ErrInvalidTransition, Status: http.StatusConflict, Code: CodeInvalidTransition},
	{Target: shared.ErrForbidden, Status: http.StatusForbidden, Code: httpx.CodeForbidden},
}

// Handler exposes period endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods/current", h.current)
	r.Get("/periods", h.list)
	r.Get("/periods/{id}", h.get)
	r.Post("/periods/close", h.close)
	r.Post("/periods/{id}/open", h.open)
}

// Actions lists the handlers reachable through the action dispatcher.
func (h *Handler) Actions() []httpx.Action {
	return []httpx.Action{
		{Name: "current_period", Method: http.MethodGet, Handler: h.current},
		{Name: "close_period", Method: http.MethodPost, Handler: h.close},
	}
}

type closeRequest struct {
	AdminID  int64 `json:"admin_id"`
	PeriodID int64 `json:"period_id"`
}

type openRequest struct {
	AdminID int64 `json:"admin_id"`
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	period, err := h.service.Current(r.Context())
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	periods, err := h.service.List(r.Context())
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	if periods == nil {
		periods = []Period{}
	}
	httpx.JSON(w, http.StatusOK, periods)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
		return
	}
	if req.AdminID <= 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "admin_id is required")
		return
	}
	result, err := h.service.Close(r.Context(), CloseInput{AdminID: req.AdminID, PeriodID: req.PeriodID})
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid request body")
		return
	}
	if req.AdminID <= 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "admin_id is required")
		return
	}
	period, err := h.service.Open(r.Context(), OpenInput{AdminID: req.AdminID, PeriodID: id})
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid period id")
		return 0, false
	}
	return id, true
}
