package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouteRegistrar is implemented by every HTTP handler group.
type RouteRegistrar interface {
	RegisterRoutes(router chi.Router)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	DB       Pinger
	Metrics  http.Handler
	OrdersWS http.HandlerFunc
}

func NewRouter(opts Options, handlers ...RouteRegistrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if opts.DB != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := opts.DB.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("database unavailable"))
				return
			}
		}
		_, _ = w.Write([]byte("OK"))
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.OrdersWS != nil {
		r.Get("/ws/orders", opts.OrdersWS)
	}

	r.Group(func(api chi.Router) {
		api.Use(middleware.AllowContentType("application/json"))
		api.Use(middleware.Timeout(30 * time.Second))
		for _, h := range handlers {
			h.RegisterRoutes(api)
		}
	})

	return r
}
