/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logging:    slog request log (method, path, status, duration_ms)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/bus/tickets/*           Bus tickets
  /api/plane/tickets/*         Plane tickets
  /api/events/*                Events with hotel rooms and buses
  /api/organized-travel/*      Organized travel with buses
  /api/hotel-reservations/*    Hotel reservations
  /api/transactions/*          Ledger (read-only)
  /api/agencies/*              Agencies
  /api/scenarios/*             Demo scenarios
  /api/admin/replay            Manual ledger replay
  /metrics                     Prometheus exposition

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/logging"
	"github.com/warp/travel-ledger/metrics"
)

// RouterOptions configures NewRouter. Zero values are usable.
type RouterOptions struct {
	CORSOrigins []string
	Logger      *slog.Logger
	// Gatherer backs /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
}

// groupPaths maps each group booking kind to its URL segment.
var groupPaths = map[ledger.BookingKind]string{
	ledger.KindEvent:            "/events",
	ledger.KindOrganizedTravel:  "/organized-travel",
	ledger.KindHotelReservation: "/hotel-reservations",
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Employee-ID"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !allowsAny(origins),
	}))

	r.Route("/api", func(r chi.Router) {
		// Ticket routes
		if h.Tickets != nil {
			r.Route("/bus/tickets", h.ticketRoutes(booking.TicketBus))
			r.Route("/plane/tickets", h.ticketRoutes(booking.TicketPlane))
		}

		// Group booking routes
		for kind, path := range groupPaths {
			if svc, ok := h.Groups[kind]; ok {
				r.Route(path, h.groupRoutes(svc))
			}
		}

		// Ledger routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Get("/debts/summary", h.DebtsSummary)
			r.Get("/{id}", h.GetTransaction)
		})

		// Agency routes
		r.Route("/agencies", func(r chi.Router) {
			r.Get("/", h.ListAgencies)
			r.Post("/", h.CreateAgency)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})

		// Admin routes
		r.Post("/admin/replay", h.TriggerReplay)
	})

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Gatherer))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
