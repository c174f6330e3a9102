// Package main is the entry point for the Stockroom server. It loads
// configuration, connects to the identity store and Redis, wires the
// plugins, and starts the HTTP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keyxmakerx/stockroom/internal/app"
	"github.com/keyxmakerx/stockroom/internal/config"
	"github.com/keyxmakerx/stockroom/internal/database"
)

// startupTimeout bounds connecting to every store, retries included.
const startupTimeout = 2 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		return err
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	slog.Info("starting Stockroom",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	// --- Connect to the identity store ---
	var stores app.Stores
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, db, err := database.NewMongo(connectCtx, cfg.Mongo)
		if err != nil {
			slog.Error("failed to connect to MongoDB", slog.Any("error", err))
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		stores.Mongo = db
		slog.Info("connected to MongoDB")
	default:
		db, err := connectMariaDB(connectCtx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		stores.DB = db
	}

	// --- Connect to Redis ---
	rdb, err := database.NewRedis(connectCtx, cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.Any("error", err))
		return err
	}
	defer rdb.Close()
	stores.Redis = rdb
	slog.Info("connected to Redis")

	// --- Create Application ---
	application := app.New(cfg, stores)
	if err := application.RegisterRoutes(connectCtx); err != nil {
		slog.Error("failed to register routes", slog.Any("error", err))
		return err
	}

	// --- Graceful Shutdown ---
	// Drain in-flight requests when a signal arrives.
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")

		// Give in-flight requests 10 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// connectMariaDB opens the pool and applies pending migrations.
func connectMariaDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.NewMariaDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		return nil, err
	}
	slog.Info("connected to MariaDB")

	if err := database.RunMigrations(db, cfg.MigrationsPath); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		db.Close()
		return nil, err
	}
	return db, nil
}

// setupLogging configures the global slog logger. Development uses text
// format for readability, production uses JSON for log aggregation. The
// level comes from LOG_LEVEL.
func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// parseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
