package contact

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stockroom/internal/middleware"
	"github.com/keyxmakerx/stockroom/internal/plugins/auth"
)

// RegisterRoutes mounts POST /api/contact behind the auth gateway. Relayed
// mail is rate-limited per IP.
func RegisterRoutes(e *echo.Echo, h *Handler, authService auth.AuthService) {
	g := e.Group("/api/contact", auth.RequireAuth(authService))
	g.POST("", h.Send, middleware.RateLimit(5, time.Minute))
}
