package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name string
		err  *AppError
		code int
		typ  string
	}{
		{"not found", NewNotFound("user not found"), http.StatusNotFound, TypeNotFound},
		{"bad request", NewBadRequest("bad"), http.StatusBadRequest, TypeBadRequest},
		{"unauthorized", NewUnauthorized("unauthenticated"), http.StatusUnauthorized, TypeAuth},
		{"forbidden", NewForbidden("no"), http.StatusForbidden, TypeForbidden},
		{"conflict", NewConflict("taken"), http.StatusConflict, TypeConflict},
		{"validation", NewValidation("invalid"), http.StatusUnprocessableEntity, TypeValidation},
		{"unavailable", NewUnavailable("try again", cause), http.StatusServiceUnavailable, TypeDependency},
		{"internal", NewInternal(cause), http.StatusInternalServerError, TypeInternal},
		{"missing context", NewMissingContext(), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %d, got %d", tt.code, tt.err.Code)
			}
			if tt.err.Type != tt.typ {
				t.Errorf("expected type %q, got %q", tt.typ, tt.err.Type)
			}
		})
	}
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("SELECT * FROM users failed")
	err := NewInternal(cause)

	if SafeMessage(err) == cause.Error() {
		t.Error("expected safe message not to expose the cause")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause reachable through Unwrap")
	}
}

func TestSafeMessageAndCode(t *testing.T) {
	wrapped := fmt.Errorf("loading profile: %w", NewNotFound("user not found"))

	if SafeCode(wrapped) != http.StatusNotFound {
		t.Errorf("expected 404 through wrapping, got %d", SafeCode(wrapped))
	}
	if SafeMessage(wrapped) != "user not found" {
		t.Errorf("expected message through wrapping, got %q", SafeMessage(wrapped))
	}

	plain := errors.New("boom")
	if SafeCode(plain) != http.StatusInternalServerError {
		t.Errorf("expected 500 for plain errors, got %d", SafeCode(plain))
	}
	if SafeMessage(plain) == "boom" {
		t.Error("expected generic message for plain errors")
	}
}

func TestErrorString(t *testing.T) {
	if got := NewConflict("taken").Error(); got != "conflict_error: taken" {
		t.Errorf("unexpected %q", got)
	}
	got := NewUnavailable("try again", errors.New("smtp down")).Error()
	if got != "dependency_error: try again (internal: smtp down)" {
		t.Errorf("unexpected %q", got)
	}
}
