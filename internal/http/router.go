package httpx

import (
	"net/http"
	"time"

	"stkpay/internal/http/handlers"
	middlewarex "stkpay/internal/http/middleware"
	"stkpay/internal/metrics"
	"stkpay/internal/provider"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterDependencies holds all dependencies for the HTTP router
type RouterDependencies struct {
	Gateway provider.Gateway
	Metrics *metrics.Counters
	// Timeout bounds each upstream gateway call.
	Timeout time.Duration
}

// NewRouter creates the relay router. The relay routes are served at the
// root and under /functions/v1/mpesa, the path the browser checkout uses.
func NewRouter(deps RouterDependencies) http.Handler {
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(middlewarex.Recover)
	r.Use(middlewarex.CORS)
	if deps.Metrics != nil {
		r.Use(middlewarex.Metrics(deps.Metrics))
	}

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.NotFound)

	r.Get("/health", handlers.Health(gatewayName(deps.Gateway)))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	relayRoutes := func(r chi.Router) {
		r.Post("/stk", handlers.STK(deps.Gateway, deps.Timeout))
		r.Post("/status", handlers.Status(deps.Gateway, deps.Timeout))
		r.Post("/callback", handlers.Callback())
	}
	r.Group(relayRoutes)
	r.Route("/functions/v1/mpesa", relayRoutes)

	return r
}

func gatewayName(gw provider.Gateway) string {
	if n, ok := gw.(provider.Named); ok {
		return n.Name()
	}
	return "unknown"
}
