package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stockroom/internal/apperror"
)

func TestRequireAuth_AttachesIdentity(t *testing.T) {
	env := newTestAuthService(t, newMemUserRepo())
	seeded := seedUser(t, env, "alice@example.com", "secure-password-123")
	token, _ := env.tokens.Issue(seeded.ID)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var fromEcho, fromCtx *User
	handler := RequireAuth(env.svc)(func(c echo.Context) error {
		fromEcho = GetUser(c)
		fromCtx = UserFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromEcho == nil || fromEcho.ID != seeded.ID {
		t.Fatalf("expected identity %s on echo context, got %+v", seeded.ID, fromEcho)
	}
	if fromCtx == nil || fromCtx.ID != seeded.ID {
		t.Fatalf("expected identity %s on request context, got %+v", seeded.ID, fromCtx)
	}
	if fromEcho.PasswordHash != "" {
		t.Error("expected identity without password hash")
	}
}

func TestRequireAuth_Rejects(t *testing.T) {
	env := newTestAuthService(t, newMemUserRepo())
	seeded := seedUser(t, env, "alice@example.com", "secure-password-123")
	ghost, _ := env.tokens.Issue("deleted-user")
	twoDaysAgo := func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, err := NewTokenIssuer(testSecret, 24*time.Hour, WithClock(twoDaysAgo)).Issue(seeded.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"empty cookie", &http.Cookie{Name: sessionCookieName, Value: ""}},
		{"bad token", &http.Cookie{Name: sessionCookieName, Value: "garbage"}},
		{"expired token", &http.Cookie{Name: sessionCookieName, Value: expired}},
		{"vanished identity", &http.Cookie{Name: sessionCookieName, Value: ghost}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			called := false
			err := RequireAuth(env.svc)(func(echo.Context) error {
				called = true
				return nil
			})(c)

			assertAppError(t, err, http.StatusUnauthorized)
			if msg := apperror.SafeMessage(err); msg != msgUnauthenticated {
				t.Errorf("expected %q, got %q", msgUnauthenticated, msg)
			}
			if called {
				t.Error("expected downstream handler not to run")
			}
			if GetUser(c) != nil {
				t.Error("expected no identity attached")
			}
		})
	}
}

func TestRequireAuth_StoreErrorIsNot401(t *testing.T) {
	env := newTestAuthService(t, &mockUserRepo{
		findByIDFn: func(context.Context, string) (*User, error) {
			return nil, errors.New("db down")
		},
	})
	token, _ := env.tokens.Issue("user-1")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	c := e.NewContext(req, httptest.NewRecorder())

	err := RequireAuth(env.svc)(func(echo.Context) error { return nil })(c)
	assertAppError(t, err, http.StatusInternalServerError)
}

func TestUserFromContext_Empty(t *testing.T) {
	if UserFromContext(context.Background()) != nil {
		t.Error("expected nil identity on a bare context")
	}
	u := &User{ID: "user-1"}
	if got := UserFromContext(WithUser(context.Background(), u)); got != u {
		t.Errorf("expected %+v, got %+v", u, got)
	}
}
