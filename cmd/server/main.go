/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the membership ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load config (YAML, .env, environment), apply flag overrides
  3. Initialize zap logger
  4. Initialize SQLite store, seed settings on first start
  5. Create ledger engine and API handler
  6. Configure HTTP router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (default: config.yaml, optional)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database

ENVIRONMENT:
  LEDGER_PORT, LEDGER_DB_PATH, LEDGER_LOG_LEVEL, LEDGER_LOG_FILE,
  LEDGER_AUTH_ENABLED, LEDGER_DEMO_SCENARIOS (see config/config.go)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_grace)
  3. Close database connection
  4. Flush logs

EXAMPLES:
  ./server -db="./data/members.db"
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - ledger/engine.go: Ledger operations
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/member-ledger/api"
	"github.com/warp/member-ledger/config"
	"github.com/warp/member-ledger/ledger"
	"github.com/warp/member-ledger/pkg/logger"
	"github.com/warp/member-ledger/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	// Flags
	configPath := flag.String("config", config.DefaultConfigFile, "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	if err := logger.InitLogger(&cfg.Log); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger.Log); err != nil {
		logger.Log.Error("server exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	if err := seedSettings(context.Background(), store, cfg.Settings.Ledger(), log); err != nil {
		return err
	}

	// Initialize engine and handler
	engine := ledger.NewEngine(store, store, log.Named("ledger"))
	handler := api.NewHandler(engine, log.Named("api"))
	if cfg.Server.DemoScenarios {
		handler.Demo = store
		log.Warn("demo scenarios enabled, POST /api/scenarios/load resets the database")
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		Auth:           cfg.Auth,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("db", cfg.Database.Path),
			zap.Bool("auth", cfg.Auth.Enabled))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// seedSettings writes the configured settings the first time the database
// is opened. Later config changes do not overwrite settings saved via the API.
func seedSettings(ctx context.Context, store *sqlite.Store, seed ledger.Settings, log *zap.Logger) error {
	has, err := store.HasSettings(ctx)
	if err != nil {
		return fmt.Errorf("check settings: %w", err)
	}
	if has {
		return nil
	}
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("invalid settings seed: %w", err)
	}
	if err := store.SaveSettings(ctx, seed); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	log.Info("settings seeded",
		zap.Int64("point_rate", seed.PointRate),
		zap.Int64("silver_threshold", seed.SilverThreshold),
		zap.Int64("gold_threshold", seed.GoldThreshold))
	return nil
}
