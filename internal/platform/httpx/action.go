package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Action is a handler reachable through the single-endpoint dispatcher
// (`?action=<name>`) used by the browser client.
type Action struct {
	Name    string
	Method  string
	Handler http.HandlerFunc
	// URLParams copies query parameters into chi URL params, keyed by URL
	// param name, so the same handler serves both routing styles.
	URLParams map[string]string
}

// ActionDispatcher routes requests by the `action` query parameter.
func ActionDispatcher(actions ...Action) http.Handler {
	index := make(map[string]Action, len(actions))
	for _, a := range actions {
		index[a.Method+" "+a.Name] = a
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.URL.Query().Get("action"))
		if name == "" {
			Error(w, http.StatusBadRequest, CodeValidation, "action parameter is required")
			return
		}
		action, ok := index[r.Method+" "+name]
		if !ok {
			Error(w, http.StatusNotFound, CodeNotFound, "Not found")
			return
		}
		if len(action.URLParams) > 0 {
			routeCtx := chi.RouteContext(r.Context())
			if routeCtx == nil {
				routeCtx = chi.NewRouteContext()
				r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, routeCtx))
			}
			for param, query := range action.URLParams {
				routeCtx.URLParams.Add(param, r.URL.Query().Get(query))
			}
		}
		action.Handler(w, r)
	})
}
