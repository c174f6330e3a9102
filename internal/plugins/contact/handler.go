package contact

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stockroom/internal/apperror"
	"github.com/keyxmakerx/stockroom/internal/plugins/auth"
)

// Handler handles HTTP requests for the contact relay.
type Handler struct {
	service ContactService
}

// NewHandler creates a new contact handler.
func NewHandler(service ContactService) *Handler {
	return &Handler{service: service}
}

// Send relays a message to support (POST /api/contact).
func (h *Handler) Send(c echo.Context) error {
	user := auth.GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	var req ContactRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	from := Sender{ID: user.ID, Username: user.Username, Email: user.Email}
	if err := h.service.Send(c.Request().Context(), from, req.Subject, req.Message); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Email Sent"})
}
