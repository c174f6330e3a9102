package auth

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stockroom/internal/apperror"
)

// contextKeyUser is the Echo context key holding the authenticated identity.
// Other plugins read it through GetUser.
const contextKeyUser = "auth_user"

// userCtxKey keys the identity on the request's context.Context.
type userCtxKey struct{}

// RequireAuth returns middleware that turns the session cookie into an
// authenticated identity. A missing cookie, a token that fails verification,
// and a token naming a vanished identity all produce the same 401. The
// identity is attached without its password hash.
func RequireAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := getSessionToken(c)
			if token == "" {
				return apperror.NewUnauthorized(msgUnauthenticated)
			}

			user, err := service.ValidateSession(c.Request().Context(), token)
			if err != nil {
				return err
			}

			SetUser(c, user)

			return next(c)
		}
	}
}

// --- Exported getters for other plugins ---

// GetUser retrieves the authenticated identity from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func GetUser(c echo.Context) *User {
	user, ok := c.Get(contextKeyUser).(*User)
	if !ok {
		return nil
	}
	return user
}

// SetUser attaches user to both the Echo context and the request context.
func SetUser(c echo.Context, user *User) {
	c.Set(contextKeyUser, user)
	c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), user)))
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

// UserFromContext retrieves the authenticated identity from a request
// context. Returns nil if none is attached.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userCtxKey{}).(*User)
	return user
}
