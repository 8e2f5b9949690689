/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the premium and commission engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and parse command-line flags
  2. Load configuration (file, PREMIUM_* env, flags)
  3. Initialize logger and SQLite store
  4. Wire repository, commission engine, metrics and handler
  5. Start the agent invoicing scheduler (if enabled)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Configuration file (default: search config.yaml)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler and wait for a running job
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/premium.db"
  PREMIUM_LOGGING_LEVEL=debug ./server -port=3000

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/premium-engine/api"
	"github.com/warp/premium-engine/commission"
	"github.com/warp/premium-engine/config"
	"github.com/warp/premium-engine/factory"
	"github.com/warp/premium-engine/logger"
	"github.com/warp/premium-engine/metrics"
	"github.com/warp/premium-engine/store/sqlite"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Configuration file")
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	lg, err := logger.New(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		lg.Fatalw("failed to initialize database", "path", cfg.Database.Path, "error", err)
	}
	defer store.Close()

	f := factory.New()
	f.CurrencyDigits = cfg.Pricing.CurrencyDigits
	repo := factory.NewRepository(store, f)

	engine := commission.NewEngine(store, lg.With("component", "commission"))
	engine.AmountDigits = cfg.Commission.AmountDigits
	engine.RateDigits = cfg.Commission.RateDigits

	m := metrics.New()
	handler := api.NewHandler(store, repo, engine, m, lg)
	router := api.NewRouter(handler)

	var scheduler *api.InvoiceScheduler
	if cfg.Scheduler.Enabled {
		scheduler = api.NewInvoiceScheduler(repo, engine, m, lg, cfg.Scheduler.InvoiceSchedule)
		if err := scheduler.Start(); err != nil {
			lg.Fatalw("failed to start scheduler", "error", err)
		}
	} else {
		lg.Infow("scheduler disabled")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Infow("server starting", "addr", server.Addr, "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Infow("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
	}
	if err := server.Shutdown(ctx); err != nil {
		lg.Errorw("server forced to shutdown", "error", err)
	}

	lg.Infow("server stopped")
}
