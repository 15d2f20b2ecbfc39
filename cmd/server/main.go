/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and environment (config package), parse flags
  2. Build the zap logger
  3. Open the store (SQLite file or PostgreSQL pool, migrations applied)
  4. Parse the office network and token settings
  5. Bootstrap the first admin account if configured
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  JWT_SECRET=dev ALLOWED_IPS=127.0.0.1 ./server -db="./data/leave.db"

  # Run against PostgreSQL
  DB_DRIVER=postgres DATABASE_URL=postgres://... ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Database implementations
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
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/logging"
	"github.com/warp/leave-ledger/store/postgres"
	"github.com/warp/leave-ledger/store/sqlite"
)

// appStore is what both database backends provide.
type appStore interface {
	leave.TxStore
	auth.UserStore
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	cfg, warning := config.Load()

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port, cfg.DBPath = *port, *dbPath

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	if warning != nil {
		logger.Debug("no .env file loaded", zap.Error(warning))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	network, err := auth.ParseOfficeNetwork(cfg.AllowedIPs)
	if err != nil {
		return fmt.Errorf("ALLOWED_IPS: %w", err)
	}
	if network.Len() == 0 {
		logger.Warn("ALLOWED_IPS is empty, every login will be refused")
	}
	authn := auth.NewAuthenticator(store, auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL), network)

	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		u, created, err := authn.EnsureUser(ctx, cfg.BootstrapAdminEmail, "Administrator", cfg.BootstrapAdminPassword, leave.RoleAdmin)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("user_id", string(u.ID)), zap.String("email", u.Email))
		}
	}

	opts := []leave.Option{leave.WithLogger(logger), leave.WithTxTimeout(cfg.TxTimeout)}
	handler := api.NewHandler(
		leave.NewLedger(store, opts...),
		leave.NewCoordinator(store, opts...),
		authn,
		logger,
		api.Options{
			MaxBodyBytes:  cfg.MaxBodyBytes,
			SecureCookies: !cfg.IsDevelopment(),
			CORSOrigins:   cfg.CORSOrigins,
			TrustProxy:    cfg.TrustProxy,
			Health:        store.Ping,
		},
	)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db_driver", cfg.DBDriver),
			zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (appStore, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		return sqlite.New(cfg.DBPath)
	}
}
