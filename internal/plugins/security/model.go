// Package security records account security events (logins, password
// changes, reset requests) per identity and lists them back to their owner.
package security

import "time"

// Event type constants follow the "resource.verb" pattern for consistent
// filtering and display grouping.
const (
	EventUserRegistered         = "user.registered"
	EventLoginSuccess           = "login.success"
	EventLoginFailed            = "login.failed"
	EventLogout                 = "logout"
	EventPasswordChanged        = "password.changed"
	EventPasswordResetInitiated = "password.reset_initiated"
	EventPasswordResetCompleted = "password.reset_completed"
)

// Default and maximum page sizes for ListForUser.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Event is a single security event. Details never carry raw passwords or
// tokens.
type Event struct {
	ID        string         `json:"id" bson:"_id"`
	EventType string         `json:"eventType" bson:"event_type"`
	UserID    string         `json:"userId,omitempty" bson:"user_id,omitempty"`
	IPAddress string         `json:"ipAddress" bson:"ip_address"`
	UserAgent string         `json:"userAgent,omitempty" bson:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty" bson:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt" bson:"created_at"`
}

// EventTypeLabel returns a human-readable label for an event type.
func EventTypeLabel(eventType string) string {
	labels := map[string]string{
		EventUserRegistered:         "Account Created",
		EventLoginSuccess:           "Login Success",
		EventLoginFailed:            "Login Failed",
		EventLogout:                 "Logout",
		EventPasswordChanged:        "Password Changed",
		EventPasswordResetInitiated: "Password Reset Requested",
		EventPasswordResetCompleted: "Password Reset Completed",
	}
	if label, ok := labels[eventType]; ok {
		return label
	}
	return eventType
}

// clampLimit keeps a requested page size within bounds.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
