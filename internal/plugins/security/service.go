package security

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/stockroom/internal/apperror"
)

// Service records and lists security events.
type Service interface {
	// LogEvent records a security event. Fire-and-forget friendly: callers
	// log the error and carry on.
	LogEvent(ctx context.Context, event Event) error

	// ListForUser returns the user's recent events. limit is clamped to
	// [1, MaxListLimit], with DefaultListLimit for non-positive values.
	ListForUser(ctx context.Context, userID string, limit int) ([]Event, error)
}

// service implements Service.
type service struct {
	repo Repository
}

// NewService creates a new security event service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// LogEvent validates and persists a security event.
func (s *service) LogEvent(ctx context.Context, event Event) error {
	if event.EventType == "" {
		return apperror.NewBadRequest("event type is required")
	}

	if err := s.repo.Log(ctx, &event); err != nil {
		slog.Error("failed to log security event",
			slog.String("event_type", event.EventType),
			slog.String("ip", event.IPAddress),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("logging security event: %w", err))
	}

	return nil
}

// ListForUser returns the user's recent events.
func (s *service) ListForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	if userID == "" {
		return nil, apperror.NewBadRequest("user ID is required")
	}

	events, err := s.repo.ListForUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing security events: %w", err))
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}
