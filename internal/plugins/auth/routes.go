package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stockroom/internal/middleware"
)

// RegisterRoutes sets up the /api/users routes. The gateway middleware is
// applied to the account routes only; it is exported separately for other
// plugins to use on their route groups.
//
// Credential-bearing POST/PUT endpoints are rate-limited per IP to slow
// brute-force and credential stuffing: 10 per minute for login, 5 for
// register and the reset flow.
func RegisterRoutes(e *echo.Echo, h *Handler, service AuthService) {
	g := e.Group("/api/users")

	// Public routes -- no auth required.
	g.POST("/register", h.Register, middleware.RateLimit(5, time.Minute))
	g.POST("/login", h.Login, middleware.RateLimit(10, time.Minute))
	g.GET("/logout", h.Logout)
	g.GET("/loggedIn", h.LoggedIn)
	g.POST("/forgotPwd", h.ForgotPassword, middleware.RateLimit(5, time.Minute))
	g.GET("/resetPwd/:resetToken", h.ValidateReset)
	g.PUT("/resetPwd/:resetToken", h.ResetPassword, middleware.RateLimit(5, time.Minute))

	// Account routes -- session required.
	authed := g.Group("", RequireAuth(service))
	authed.GET("/getOne", h.GetOne)
	authed.PATCH("/update", h.Update)
	authed.PATCH("/changePwd", h.ChangePassword)
	authed.GET("/activity", h.Activity)
}
