package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/potkeeper/pkg/accounts"
	"github.com/platinummonkey/potkeeper/pkg/admin"
	"github.com/platinummonkey/potkeeper/pkg/catalog"
	"github.com/platinummonkey/potkeeper/pkg/contextkeys"
	"github.com/platinummonkey/potkeeper/pkg/httputil"
	"github.com/platinummonkey/potkeeper/pkg/lifecycle"
	"github.com/platinummonkey/potkeeper/pkg/middleware"
	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// DefaultMaxBodyBytes bounds request bodies. It leaves room for a full size
// image upload plus its multipart framing.
const DefaultMaxBodyBytes = 6 << 20

// Dependencies carries the collaborators the handlers need.
type Dependencies struct {
	Accounts  *accounts.Service
	Lifecycle *lifecycle.Service
	Admin     *admin.Service
	Catalog   *catalog.Catalog

	Identity *middleware.IdentityMiddleware
	Admins   middleware.AdminChecker
	// IdentifyThrottle limits anonymous account creation. Nil disables it.
	IdentifyThrottle *middleware.RateLimitMiddleware

	Logger  *observability.Logger
	Metrics *observability.Metrics

	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	deps   Dependencies
	router *mux.Router
	routes []Route
}

// NewServer builds the route table and registers it under every prefix.
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewNopLogger()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
	}

	accountHandlers := &AccountHandlers{svc: deps.Accounts, logger: deps.Logger, throttle: deps.IdentifyThrottle}
	potHandlers := &PotHandlers{svc: deps.Lifecycle, logger: deps.Logger}
	catalogHandlers := &CatalogHandlers{catalog: deps.Catalog, logger: deps.Logger}
	adminHandlers := &AdminHandlers{svc: deps.Admin, logger: deps.Logger}

	// Within each group, static paths precede the {id} routes they would
	// otherwise be shadowed by.
	s.routes = append(s.routes, accountHandlers.Routes()...)
	s.routes = append(s.routes, potHandlers.Routes()...)
	s.routes = append(s.routes, catalogHandlers.Routes()...)
	s.routes = append(s.routes, adminHandlers.Routes()...)

	s.setupRoutes()
	return s
}

// setupRoutes registers the route table once per prefix, wrapping each route
// with the middleware its access level requires.
func (s *Server) setupRoutes() {
	for _, prefix := range Prefixes {
		for _, route := range s.routes {
			s.router.Handle(prefix+route.Path, s.wrap(route)).
				Methods(route.Method).
				Name(routeName(prefix, route.Name))
		}
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// routeName qualifies a route name with its mount point, so "pots.get"
// under /api becomes "api.pots.get".
func routeName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimPrefix(prefix, "/") + "." + name
}

func (s *Server) wrap(route Route) http.Handler {
	var h http.Handler = route.Handler
	switch route.Access {
	case Authenticated:
		h = middleware.RequirePrincipal(h)
	case Admin:
		h = middleware.RequireAdmin(s.deps.Admins, s.deps.Logger)(h)
	}
	h = observability.HTTPMetricsMiddleware(s.deps.Metrics, route.Name)(h)

	name := route.Name
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(contextkeys.WithRoute(r.Context(), name)))
	})
}

// Routes returns the registered route table.
func (s *Server) Routes() []Route {
	return s.routes
}

// Router exposes the underlying router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the full middleware stack around the router, traced with
// otelhttp.
func (s *Server) Handler() http.Handler {
	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.deps.Logger),
		httputil.RecoveryMiddleware(s.deps.Logger),
		httputil.CORSMiddleware(s.deps.CORSOrigins),
		httputil.MaxBytesMiddleware(s.deps.MaxBodyBytes),
	}
	if s.deps.Identity != nil {
		chain = append(chain, s.deps.Identity.Handler)
	}
	return otelhttp.NewHandler(httputil.Chain(chain...)(s.router), "potkeeper")
}
