// Package audit implements an optional, write-mostly Postgres event log
// for reconciliation and health-watcher actions. It is adapted from the
// teacher's PostgresStateStore (controller_go/state_store.go) and the
// schema-init logic in state_go/db.go, narrowed from full app/instance
// CRUD down to the one table this worker actually needs: an append-only
// event trail for operator diagnostics. It is never read back by the
// reconciler — the worker's only authoritative state is the in-memory
// snapshot cache rebuilt fresh on every boot.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store logs lifecycle and health events to Postgres.
type Store struct {
	db *sql.DB
}

// Open connects to databaseURL and ensures the events table exists,
// matching state_go/db.go's initDatabase pattern but limited to the one
// table this package owns.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS worker_events (
			id SERIAL PRIMARY KEY,
			app_name TEXT NOT NULL,
			event_type TEXT NOT NULL,
			message TEXT NOT NULL,
			details JSONB,
			occurred_at DOUBLE PRECISION NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS worker_events_app_name_idx ON worker_events (app_name)`)
	if err != nil {
		return fmt.Errorf("audit: ensure index: %w", err)
	}
	return nil
}

// LogEvent records one reconciliation or health action.
func (s *Store) LogEvent(appName, eventType, message string, details map[string]interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO worker_events (app_name, event_type, message, details, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		appName, eventType, message, detailsJSON, unixFloat(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("audit: log event: %w", err)
	}
	return nil
}

// Event is one row read back from the audit trail by RecentEvents.
type Event struct {
	ID         int                    `json:"id"`
	AppName    string                 `json:"app_name"`
	EventType  string                 `json:"event_type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	OccurredAt float64                `json:"occurred_at"`
}

// RecentEvents returns the most recent events, optionally filtered to one
// app.
func (s *Store) RecentEvents(appName string, limit int) ([]Event, error) {
	var rows *sql.Rows
	var err error
	if appName != "" {
		rows, err = s.db.Query(
			`SELECT id, app_name, event_type, message, details, occurred_at FROM worker_events WHERE app_name = $1 ORDER BY occurred_at DESC LIMIT $2`,
			appName, limit,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT id, app_name, event_type, message, details, occurred_at FROM worker_events ORDER BY occurred_at DESC LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.AppName, &e.EventType, &e.Message, &detailsJSON, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		if len(detailsJSON) > 0 {
			_ = json.Unmarshal(detailsJSON, &e.Details)
		}
		events = append(events, e)
	}
	return events, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
