package security

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Repository defines the data access contract for security events.
type Repository interface {
	// Log inserts a new event and fills in its ID.
	Log(ctx context.Context, event *Event) error

	// ListForUser returns the user's most recent events, newest first.
	ListForUser(ctx context.Context, userID string, limit int) ([]Event, error)
}

// mariaRepository implements Repository with MariaDB.
type mariaRepository struct {
	db *sql.DB
}

// NewRepository creates a new repository backed by the given DB.
func NewRepository(db *sql.DB) Repository {
	return &mariaRepository{db: db}
}

// Log inserts a new security event. Details are serialized to JSON.
func (r *mariaRepository) Log(ctx context.Context, event *Event) error {
	query := `INSERT INTO security_events (event_type, user_id, ip_address, user_agent, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	var detailsJSON []byte
	if event.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshaling security event details: %w", err)
		}
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	// NULL for anonymous events (failed logins for unknown emails).
	var userID any
	if event.UserID != "" {
		userID = event.UserID
	}

	result, err := r.db.ExecContext(ctx, query,
		event.EventType, userID,
		event.IPAddress, event.UserAgent,
		detailsJSON, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}

	id, _ := result.LastInsertId()
	event.ID = strconv.FormatInt(id, 10)
	return nil
}

// ListForUser returns the user's events, most recent first.
func (r *mariaRepository) ListForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	query := `SELECT id, event_type, COALESCE(user_id, ''), ip_address,
	                 COALESCE(user_agent, ''), details, created_at
	          FROM security_events
	          WHERE user_id = ?
	          ORDER BY created_at DESC, id DESC
	          LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing security events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e           Event
			id          int64
			detailsJSON sql.NullString
		)
		if err := rows.Scan(
			&id, &e.EventType, &e.UserID, &e.IPAddress,
			&e.UserAgent, &detailsJSON, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning security event: %w", err)
		}
		e.ID = strconv.FormatInt(id, 10)

		if detailsJSON.Valid && detailsJSON.String != "" {
			if jsonErr := json.Unmarshal([]byte(detailsJSON.String), &e.Details); jsonErr != nil {
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating security events: %w", err)
	}
	return events, nil
}
