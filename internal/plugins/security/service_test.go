package security

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/keyxmakerx/stockroom/internal/apperror"
)

// mockRepo implements Repository for testing.
type mockRepo struct {
	logFn         func(ctx context.Context, event *Event) error
	listForUserFn func(ctx context.Context, userID string, limit int) ([]Event, error)
}

func (m *mockRepo) Log(ctx context.Context, event *Event) error {
	if m.logFn != nil {
		return m.logFn(ctx, event)
	}
	return nil
}

func (m *mockRepo) ListForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	if m.listForUserFn != nil {
		return m.listForUserFn(ctx, userID, limit)
	}
	return nil, nil
}

func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status code %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func TestLogEvent_Success(t *testing.T) {
	var stored *Event
	svc := NewService(&mockRepo{
		logFn: func(_ context.Context, e *Event) error {
			stored = e
			return nil
		},
	})

	err := svc.LogEvent(context.Background(), Event{EventType: EventLoginSuccess, UserID: "u-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored == nil || stored.UserID != "u-1" {
		t.Fatalf("expected event to be stored, got %+v", stored)
	}
}

func TestLogEvent_MissingType(t *testing.T) {
	svc := NewService(&mockRepo{})
	err := svc.LogEvent(context.Background(), Event{UserID: "u-1"})
	assertAppError(t, err, http.StatusBadRequest)
}

func TestLogEvent_RepoError(t *testing.T) {
	svc := NewService(&mockRepo{
		logFn: func(context.Context, *Event) error { return errors.New("db down") },
	})
	err := svc.LogEvent(context.Background(), Event{EventType: EventLogout})
	assertAppError(t, err, http.StatusInternalServerError)
}

func TestListForUser_ClampsLimit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, DefaultListLimit},
		{-5, DefaultListLimit},
		{10, 10},
		{1000, MaxListLimit},
	}
	for _, tc := range cases {
		var got int
		svc := NewService(&mockRepo{
			listForUserFn: func(_ context.Context, _ string, limit int) ([]Event, error) {
				got = limit
				return nil, nil
			},
		})
		events, err := svc.ListForUser(context.Background(), "u-1", tc.in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if events == nil {
			t.Error("expected empty slice, got nil")
		}
		if got != tc.want {
			t.Errorf("limit %d: expected %d, got %d", tc.in, tc.want, got)
		}
	}
}

func TestListForUser_RequiresUser(t *testing.T) {
	svc := NewService(&mockRepo{})
	_, err := svc.ListForUser(context.Background(), "", 10)
	assertAppError(t, err, http.StatusBadRequest)
}

func TestEventTypeLabel(t *testing.T) {
	if got := EventTypeLabel(EventPasswordResetCompleted); got != "Password Reset Completed" {
		t.Errorf("unexpected label %q", got)
	}
	if got := EventTypeLabel("custom.thing"); got != "custom.thing" {
		t.Errorf("expected passthrough for unknown type, got %q", got)
	}
}
