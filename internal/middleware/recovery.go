package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// Recovery returns middleware that recovers from panics, logs the stack
// trace, and returns a generic JSON 500 to the client. A single panicking
// handler must not take the server down.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				slog.Error("panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", c.Request().Method),
					slog.String("path", c.Request().URL.Path),
				)

				if c.Response().Committed {
					returnErr = nil
					return
				}
				returnErr = c.JSON(http.StatusInternalServerError, map[string]string{
					"error":   http.StatusText(http.StatusInternalServerError),
					"message": "an unexpected error occurred",
				})
			}()

			return next(c)
		}
	}
}
