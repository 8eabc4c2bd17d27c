package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/procurement-portal/internal/audit"
	"github.com/odyssey-erp/procurement-portal/internal/catalog"
	"github.com/odyssey-erp/procurement-portal/internal/observability"
	"github.com/odyssey-erp/procurement-portal/internal/orders"
	"github.com/odyssey-erp/procurement-portal/internal/periods"
	"github.com/odyssey-erp/procurement-portal/internal/platform/httpx"
	"github.com/odyssey-erp/procurement-portal/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	CatalogHandler *catalog.Handler
	PeriodsHandler *periods.Handler
	OrdersHandler  *orders.Handler
	AuditHandler   *audit.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var actions []httpx.Action
	r.Route("/api", func(r chi.Router) {
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
			actions = append(actions, params.CatalogHandler.Actions()...)
		}
		if params.PeriodsHandler != nil {
			params.PeriodsHandler.MountRoutes(r)
			actions = append(actions, params.PeriodsHandler.Actions()...)
		}
		if params.OrdersHandler != nil {
			params.OrdersHandler.MountRoutes(r)
			actions = append(actions, params.OrdersHandler.Actions()...)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		r.Handle("/v1", httpx.ActionDispatcher(actions...))
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "route not found")
	})
	return r
}
