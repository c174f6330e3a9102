package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stockroom/internal/config"
	"github.com/keyxmakerx/stockroom/internal/metrics"
	"github.com/keyxmakerx/stockroom/internal/plugins/auth"
	"github.com/keyxmakerx/stockroom/internal/plugins/contact"
	"github.com/keyxmakerx/stockroom/internal/plugins/security"
	"github.com/keyxmakerx/stockroom/internal/plugins/smtp"
)

// healthTimeout bounds the store pings behind /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes builds the plugins on the configured stores and registers
// every route. This is the single place where all routes are aggregated.
func (a *App) RegisterRoutes(ctx context.Context) error {
	e := a.Echo

	// --- Operational Routes ---

	e.GET("/healthz", a.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(a.Registry)))

	// --- Stores ---

	users, events, err := a.identityStores(ctx)
	if err != nil {
		return err
	}

	// --- Plugins ---

	mail := smtp.NewService(a.Config.SMTP)
	if !mail.IsConfigured() {
		slog.Warn("smtp is not configured; reset and contact emails will fail")
	}

	hasher := auth.NewBcryptHasher(a.Config.Auth.HashConcurrency,
		auth.WithObserver(a.Metrics.RecordHashDuration),
	)
	tokens := auth.NewTokenIssuer(a.Config.Auth.SecretKey, a.Config.Auth.SessionTTL)
	resets := auth.NewResetManager(auth.NewRedisResetRepository(a.Redis), users, hasher, a.Config.Auth.ResetTTL)

	authService := auth.NewAuthService(auth.Deps{
		Users:       users,
		Hasher:      hasher,
		Tokens:      tokens,
		Resets:      resets,
		Mail:        mail,
		Events:      security.NewService(events),
		Metrics:     a.Metrics,
		FrontendURL: a.Config.FrontendURL,
	})
	auth.RegisterRoutes(e, auth.NewHandler(authService), authService)

	contactService := contact.NewContactService(mail, a.Config.SMTP.SupportAddress)
	contact.RegisterRoutes(e, contact.NewHandler(contactService), authService)

	return nil
}

// identityStores builds the credential store and security event store on
// the configured backend.
func (a *App) identityStores(ctx context.Context) (auth.UserRepository, security.Repository, error) {
	switch a.Config.StoreDriver {
	case config.StoreMongo:
		users, err := auth.NewMongoUserRepository(ctx, a.Mongo)
		if err != nil {
			return nil, nil, fmt.Errorf("creating mongo user store: %w", err)
		}
		events, err := security.NewMongoRepository(ctx, a.Mongo)
		if err != nil {
			return nil, nil, fmt.Errorf("creating mongo event store: %w", err)
		}
		return users, events, nil
	default:
		return auth.NewUserRepository(a.DB), security.NewRepository(a.DB), nil
	}
}

// health reports 200 when every backing store answers, 503 otherwise.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := a.Ping(ctx); err != nil {
		slog.Warn("health check failed", slog.Any("error", err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
