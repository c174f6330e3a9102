// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (identity store, Redis client, metrics
// registry, Echo instance) and wires the plugins together.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/keyxmakerx/stockroom/internal/apperror"
	"github.com/keyxmakerx/stockroom/internal/config"
	"github.com/keyxmakerx/stockroom/internal/metrics"
	"github.com/keyxmakerx/stockroom/internal/middleware"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB pool. Nil when the identity store is MongoDB.
	DB *sql.DB

	// Mongo is the MongoDB database. Nil when the identity store is MariaDB.
	Mongo *mongo.Database

	// Redis holds password reset records.
	Redis *redis.Client

	// Registry collects the Prometheus metrics served on /metrics.
	Registry *prometheus.Registry

	// Metrics records auth and HTTP measurements into Registry.
	Metrics *metrics.Collector

	// Echo is the HTTP server instance.
	Echo *echo.Echo
}

// Stores bundles the backing stores handed to New. Exactly one of DB and
// Mongo is set, matching Config.StoreDriver.
type Stores struct {
	DB    *sql.DB
	Mongo *mongo.Database
	Redis *redis.Client
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, stores Stores) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Configure trusted reverse proxy IPs so c.RealIP() returns the actual
	// client IP instead of the proxy's IP. Rate limiting and security events
	// depend on it.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &App{
		Config:   cfg,
		DB:       stores.DB,
		Mongo:    stores.Mongo,
		Redis:    stores.Redis,
		Registry: reg,
		Metrics:  metrics.NewCollector(reg),
		Echo:     e,
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first, innermost (CSRF) runs last.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request metrics -- method, route pattern, status, latency.
	a.Echo.Use(middleware.Metrics(a.Metrics))

	// Request logging -- log every request with method, route, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP, X-Frame-Options, X-Content-Type-Options, etc.
	a.Echo.Use(middleware.SecurityHeaders())

	// CORS -- the SPA is served from its own origin and sends the session
	// cookie with every call.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.Config.AllowedOrigins,
		AllowCredentials: true,
	}))

	// CSRF -- state-changing requests must be JSON from an allowed origin.
	a.Echo.Use(middleware.CSRF(a.Config.AllowedOrigins))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) and Echo's own HTTP errors to a JSON body of the form
// {"error": <status text>, "message": <safe message>}. Internal causes are
// logged, never returned.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := defaultErrorMessage(code)

	// Check if it's our domain error type.
	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("route", c.Path()),
			)
		}
	case errors.As(err, &echoErr):
		// Echo's built-in HTTP errors (404 from the router, bind errors).
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok && msg != "" {
			message = msg
		} else {
			message = defaultErrorMessage(code)
		}
	default:
		// Truly unexpected error -- log it.
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("route", c.Path()),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{
		"error":   http.StatusText(code),
		"message": message,
	})
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The resource you're looking for doesn't exist."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusUnsupportedMediaType:
		return "Request body must be JSON."
	case http.StatusUnprocessableEntity:
		return "The submitted data could not be processed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}

// Ping checks every backing store the app was given.
func (a *App) Ping(ctx context.Context) error {
	if a.DB != nil {
		if err := a.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("mariadb: %w", err)
		}
	}
	if a.Mongo != nil {
		if err := a.Mongo.Client().Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongodb: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Stockroom server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("store", a.Config.StoreDriver),
	)
	return a.Echo.Start(addr)
}
