// Package audit provides PostgreSQL-backed storage for domain events:
// registrations, credit deductions and processed uploads. Each event keeps
// its subject, the user it concerns and the raw event payload.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store manages audit events in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Event is a single persisted domain event.
type Event struct {
	ID        int64
	Subject   string
	UserUUID  string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// NewStore creates a new audit store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts an event. The payload must be valid JSON or empty.
func (s *Store) Record(ctx context.Context, ev *Event) error {
	if ev.Subject == "" {
		return fmt.Errorf("audit: empty subject")
	}
	var payload interface{}
	if len(ev.Payload) > 0 {
		if !json.Valid(ev.Payload) {
			return fmt.Errorf("audit: payload for %s is not valid JSON", ev.Subject)
		}
		payload = []byte(ev.Payload)
	}

	const query = `
		INSERT INTO audit_events (subject, user_uuid, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, ev.Subject, ev.UserUUID, payload).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit events for a subject, newest first.
func (s *Store) Recent(ctx context.Context, subject string, limit int) ([]Event, error) {
	const query = `
		SELECT id, subject, user_uuid, COALESCE(payload, 'null'::jsonb), created_at
		FROM audit_events
		WHERE subject = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Subject, &ev.UserUUID, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		ev.Payload = payload
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return events, nil
}

// CountRecent returns the number of events for a user within the window.
func (s *Store) CountRecent(ctx context.Context, userUUID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM audit_events
		WHERE user_uuid = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, userUUID, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count recent: %w", err)
	}
	return count, nil
}
