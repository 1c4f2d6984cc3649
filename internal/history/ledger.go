// ABOUTME: SQLite-backed ledger for conversation events and snapshots
// ABOUTME: Provides append and replay operations using modernc.org/sqlite

package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-console/internal/execution"
	"github.com/2389/coven-console/internal/snapshot"
)

// Ledger persists normalized events and rollback snapshots to SQLite so a
// console restart can replay a conversation without the server.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLedger opens (or creates) the ledger database at the given path.
// Parent directories are created if needed.
func NewLedger(path string) (*Ledger, error) {
	logger := slog.Default().With("component", "history")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &Ledger{
		db:     db,
		logger: logger,
	}

	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history ledger initialized", "path", path)
	return l, nil
}

// createSchema creates the database tables if they don't exist
func (l *Ledger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ledger_events (
			event_id        TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			execution_id    TEXT NOT NULL,
			trace_id        TEXT NOT NULL,
			sequence        INTEGER NOT NULL,
			queue_index     INTEGER NOT NULL,
			type            TEXT NOT NULL,
			timestamp       TEXT NOT NULL,
			payload_json    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_conversation
			ON ledger_events(conversation_id);

		CREATE TABLE IF NOT EXISTS snapshots (
			snapshot_id     TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			body_json       TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_conversation
			ON snapshots(conversation_id, created_at);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// RecordEvent appends a normalized event to the ledger. Recording the same
// event id twice is a no-op, so replays after a resume cursor reset are safe.
func (l *Ledger) RecordEvent(conversationID string, ev execution.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO ledger_events (
			event_id, conversation_id, execution_id, trace_id, sequence, queue_index,
			type, timestamp, payload_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = l.db.Exec(query,
		ev.DedupKey(),
		conversationID,
		ev.ExecutionID,
		ev.TraceID,
		ev.Sequence,
		ev.QueueIndex,
		string(ev.Type),
		ev.Timestamp.Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	l.logger.Debug("recorded ledger event",
		"event_id", ev.EventID,
		"conversation_id", conversationID,
		"type", ev.Type,
	)
	return nil
}

// Events retrieves recorded events for a conversation in arrival order.
// A non-positive limit defaults to 500.
func (l *Ledger) Events(conversationID string, limit int) ([]execution.Event, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT event_id, execution_id, trace_id, sequence, queue_index, type, timestamp, payload_json
		FROM ledger_events
		WHERE conversation_id = ?
		ORDER BY rowid ASC
		LIMIT ?
	`

	rows, err := l.db.Query(query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []execution.Event
	for rows.Next() {
		var (
			ev           execution.Event
			eventKey     string
			eventType    string
			timestampStr string
			payloadJSON  sql.NullString
		)

		if err := rows.Scan(
			&eventKey,
			&ev.ExecutionID,
			&ev.TraceID,
			&ev.Sequence,
			&ev.QueueIndex,
			&eventType,
			&timestampStr,
			&payloadJSON,
		); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}

		ev.ConversationID = conversationID
		ev.Type = execution.EventType(eventType)
		ev.Timestamp, err = time.Parse(time.RFC3339Nano, timestampStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &ev.Payload); err != nil {
				return nil, fmt.Errorf("decoding event payload: %w", err)
			}
		}
		if raw, ok := ev.Payload["event_id"]; ok {
			if id, ok := raw.(string); ok {
				ev.EventID = id
			}
		}
		if ev.EventID == "" {
			ev.EventID = eventIDFromKey(eventKey)
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	return events, nil
}

// eventIDFromKey recovers the producer event id from the stored dedup key.
// Keys formed from coordinates have no recoverable id and map to "".
func eventIDFromKey(key string) string {
	const prefix = "id:"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return ""
}

// RecordSnapshot persists a rollback snapshot. Snapshots are stored whole as
// JSON so schema churn in the captured state never requires a migration.
func (l *Ledger) RecordSnapshot(snap snapshot.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO snapshots (snapshot_id, conversation_id, created_at, body_json)
		VALUES (?, ?, ?, ?)
	`

	_, err = l.db.Exec(query,
		snap.ID,
		snap.ConversationID,
		snap.CreatedAt.Format(time.RFC3339Nano),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	l.logger.Debug("recorded snapshot",
		"snapshot_id", snap.ID,
		"conversation_id", snap.ConversationID,
	)
	return nil
}

// Snapshots retrieves stored snapshots for a conversation, oldest first.
func (l *Ledger) Snapshots(conversationID string) ([]snapshot.Snapshot, error) {
	query := `
		SELECT body_json
		FROM snapshots
		WHERE conversation_id = ?
		ORDER BY created_at ASC, snapshot_id ASC
	`

	rows, err := l.db.Query(query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []snapshot.Snapshot
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}

		var snap snapshot.Snapshot
		if err := json.Unmarshal([]byte(body), &snap); err != nil {
			return nil, fmt.Errorf("decoding snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot rows: %w", err)
	}

	return snapshots, nil
}

// Conversations lists the distinct conversation ids present in the ledger.
func (l *Ledger) Conversations() ([]string, error) {
	rows, err := l.db.Query(`SELECT DISTINCT conversation_id FROM ledger_events ORDER BY conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	return ids, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
