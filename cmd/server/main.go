/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the travel back-office server: bookings for bus
  and plane tickets, events, organized travel and hotel reservations, plus
  the transaction ledger they keep in sync.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (flags, then environment, then defaults)
  2. Install the slog logger
  3. Initialize SQLite store
  4. Build ledger, reconciler and booking services
  5. Start the ledger replay
  6. Configure HTTP router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port             HTTP server port (default: 8080)
  -db               SQLite database path (default: travel.db)
                    Use ":memory:" for in-memory database
  -log-level        debug, info, warn, error (default: info)
  -replay           Run the periodic ledger replay (default: true)
  -replay-interval  Time between replay runs (default: 10m)
  -cors-origins     Comma-separated allowed origins (default: *)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the replay scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/travel.db"

  # Run with in-memory database and verbose logs
  ./server -db=":memory:" -log-level=debug

  # Replay every minute on a different port
  ./server -port=3000 -replay-interval=1m

ENVIRONMENT:
  PORT, DB_PATH, LOG_LEVEL, REPLAY_ENABLED, REPLAY_INTERVAL, CORS_ORIGINS
  Flags win over environment variables.

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/warp/travel-ledger/api"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/booking/groups"
	"github.com/warp/travel-ledger/booking/tickets"
	"github.com/warp/travel-ledger/config"
	"github.com/warp/travel-ledger/ledger"
	"github.com/warp/travel-ledger/logging"
	"github.com/warp/travel-ledger/metrics"
	"github.com/warp/travel-ledger/payment"
	"github.com/warp/travel-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	logger := logging.Setup(os.Stderr, cfg.LogLevel)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Ledger and booking services
	l := ledger.New(store,
		ledger.WithAgencies(store),
		ledger.WithMetrics(m),
		ledger.WithLogger(logger))
	reconciler := payment.NewReconciler(l,
		payment.WithMetrics(m),
		payment.WithLogger(logger))
	locks := booking.NewLocker()

	ticketSvc := tickets.NewService(tickets.Config{
		Store:      store,
		Ledger:     l,
		Reconciler: reconciler,
		Transactor: store,
		Locker:     locks,
		Logger:     logger,
	})
	var groupSvcs []*groups.Service
	for _, spec := range groups.Kinds {
		groupSvcs = append(groupSvcs, groups.NewService(spec, groups.Config{
			Store:      store,
			Ledger:     l,
			Reconciler: reconciler,
			Transactor: store,
			Locker:     locks,
			Logger:     logger,
		}))
	}

	// Ledger replay
	replay := api.NewReplayScheduler(api.ReplayJobs(ticketSvc, groupSvcs...), m, logger)
	replay.Interval = cfg.ReplayInterval
	replay.Enabled = cfg.ReplayEnabled
	replay.Start()

	handler := api.NewHandler(api.Deps{
		Tickets:  ticketSvc,
		Groups:   groupSvcs,
		Ledger:   l,
		Agencies: store,
		Resetter: store,
		Replay:   replay,
		Logger:   logger,
	})

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
		Gatherer:    reg,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	replay.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server stopped")
}
