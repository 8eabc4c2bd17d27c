package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/procurement-portal/internal/platform/httpx"
)

var errorMappings = []httpx.ErrorMapping{
	{Target: ErrNotFound, Status: http.StatusNotFound, Code: httpx.CodeNotFound},
}

// Handler serves reference data endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/clients", h.listClients)
	r.Get("/clients/{id}/budget", h.clientBudget)
	r.Get("/products", h.listProducts)
	r.Get("/categories", h.listCategories)
}

// Actions lists the handlers reachable through the action dispatcher.
func (h *Handler) Actions() []httpx.Action {
	return []httpx.Action{
		{Name: "clients", Method: http.MethodGet, Handler: h.listClients},
		{Name: "products", Method: http.MethodGet, Handler: h.listProducts},
		{Name: "categories", Method: http.MethodGet, Handler: h.listCategories},
	}
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClients(r.Context())
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	if clients == nil {
		clients = []Client{}
	}
	httpx.JSON(w, http.StatusOK, clients)
}

func (h *Handler) clientBudget(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, httpx.CodeValidation, "invalid client id")
		return
	}
	balance, err := h.service.ClientBudget(r.Context(), id)
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		httpx.Fail(h.logger, w, r, err, errorMappings...)
		return
	}
	if categories == nil {
		categories = []Category{}
	}
	httpx.JSON(w, http.StatusOK, categories)
}
