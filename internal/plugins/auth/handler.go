package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stockroom/internal/apperror"
)

// sessionCookieName is the HTTP cookie used to carry the session token.
const sessionCookieName = "token"

// Handler handles HTTP requests for the /api/users endpoints. Handlers are
// thin: they bind the request, call the service, and write JSON. No
// business logic lives here.
type Handler struct {
	service AuthService
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

// Register creates an account and signs it in (POST /api/users/register).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	user, token, err := h.service.Register(c.Request().Context(), RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Photo:     req.Photo,
		Phone:     req.Phone,
		Biography: req.Biography,
	}, requestMeta(c))
	if err != nil {
		return err
	}

	h.setSessionCookie(c, token)
	return c.JSON(http.StatusCreated, AuthResponse{User: user, Token: token})
}

// Login authenticates with email and password (POST /api/users/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	user, token, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, requestMeta(c))
	if err != nil {
		return err
	}

	h.setSessionCookie(c, token)
	return c.JSON(http.StatusOK, AuthResponse{User: user, Token: token})
}

// Logout clears the session cookie (GET /api/users/logout). The token itself
// stays valid until it expires.
func (h *Handler) Logout(c echo.Context) error {
	if token := getSessionToken(c); token != "" {
		h.service.Logout(c.Request().Context(), token, requestMeta(c))
	}
	clearSessionCookie(c)
	return c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Successfully Logged Out"})
}

// LoggedIn reports whether the cookie carries a valid session token
// (GET /api/users/loggedIn). The body is a bare JSON boolean.
func (h *Handler) LoggedIn(c echo.Context) error {
	token := getSessionToken(c)
	return c.JSON(http.StatusOK, token != "" && h.service.IsLoggedIn(token))
}

// GetOne returns the current identity (GET /api/users/getOne).
func (h *Handler) GetOne(c echo.Context) error {
	current := GetUser(c)
	if current == nil {
		return apperror.NewMissingContext()
	}

	user, err := h.service.GetUser(c.Request().Context(), current.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Update changes optional profile fields (PATCH /api/users/update).
func (h *Handler) Update(c echo.Context) error {
	current := GetUser(c)
	if current == nil {
		return apperror.NewMissingContext()
	}

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	user, err := h.service.UpdateProfile(c.Request().Context(), current.ID, ProfileInput{
		Username:  req.Username,
		Photo:     req.Photo,
		Phone:     req.Phone,
		Biography: req.Biography,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// ChangePassword replaces the password of the current identity
// (PATCH /api/users/changePwd).
func (h *Handler) ChangePassword(c echo.Context) error {
	current := GetUser(c)
	if current == nil {
		return apperror.NewMissingContext()
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	err := h.service.ChangePassword(c.Request().Context(), current.ID, req.OldPassword, req.NewPassword, requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Password changed successfully"})
}

// Activity lists recent security events of the current identity
// (GET /api/users/activity?limit=N).
func (h *Handler) Activity(c echo.Context) error {
	current := GetUser(c)
	if current == nil {
		return apperror.NewMissingContext()
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	events, err := h.service.RecentActivity(c.Request().Context(), current.ID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}

// --- Password Reset ---

// ForgotPassword emails a reset link (POST /api/users/forgotPwd). The
// response is the same whether or not the email is registered.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	if err := h.service.ForgotPassword(c.Request().Context(), req.Email, requestMeta(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Reset Email Sent"})
}

// ValidateReset checks a reset link without using it
// (GET /api/users/resetPwd/:resetToken).
func (h *Handler) ValidateReset(c echo.Context) error {
	if err := h.service.ValidateResetToken(c.Request().Context(), c.Param("resetToken")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Reset token is valid"})
}

// ResetPassword sets a new password from a reset link
// (PUT /api/users/resetPwd/:resetToken).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	err := h.service.ResetPassword(c.Request().Context(), c.Param("resetToken"), req.Password, requestMeta(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Password Reset Successful, Please Login"})
}

// --- Cookie helpers ---

// getSessionToken reads the session token from the cookie.
func getSessionToken(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// setSessionCookie sets the session cookie. It is HttpOnly and sent
// cross-site (SameSite=None, which browsers only accept with Secure) so the
// separately hosted SPA can use it. It expires with the token.
func (h *Handler) setSessionCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.service.SessionTTL()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// clearSessionCookie empties the cookie and backdates it to the epoch.
func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// requestMeta collects client details for security events.
func requestMeta(c echo.Context) RequestMeta {
	return RequestMeta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
