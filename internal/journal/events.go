package journal

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/opqueue/internal/op"
)

// ErrSessionNotFound is returned when reading a session that was never
// started.
var ErrSessionNotFound = errors.New("journal session not found")

// Session is one recorded scheduler run.
type Session struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Events    int       `json:"events"`
}

// Entry is one journaled event. Event.Seq is the journal's per-session
// sequence number, not the scheduler's.
type Entry struct {
	Session string
	Event   op.Event
}

// payload carries the event fields without a column of their own.
type payload struct {
	Description    string           `json:"description,omitempty"`
	DurationNS     int64            `json:"duration_ns,omitempty"`
	Progress       float64          `json:"progress,omitempty"`
	Message        string           `json:"message,omitempty"`
	Phase          string           `json:"phase,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	ObsoletedBy    op.OperationID   `json:"obsoleted_by,omitempty"`
	OperationCount int              `json:"operation_count,omitempty"`
	Operations     []op.OperationID `json:"operations,omitempty"`
	BatchID        string           `json:"batch_id,omitempty"`
	Error          string           `json:"error,omitempty"`
	SkipTriggers   bool             `json:"skip_triggers,omitempty"`
}

// StartSession creates a session with a new UUIDv7 token.
func (s *Store) StartSession(ctx context.Context, label string) (Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("start session: %w", err)
	}
	sess := Session{ID: id.String(), Label: label, StartedAt: time.Now()}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, label, started_at)
		VALUES (?, ?, ?)
	`, sess.ID, sess.Label, sess.StartedAt.UnixNano())
	if err != nil {
		return Session{}, fmt.Errorf("start session: %w", err)
	}
	return sess, nil
}

// Append records e at the end of the session and returns its sequence
// number. The session must exist.
func (s *Store) Append(ctx context.Context, sessionID string, e op.Event) (int64, error) {
	body, err := marshalPayload(e)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}

	var seq int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO events (session_id, seq, type, operation_id, category, occurred_at, payload)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?
		FROM events WHERE session_id = ?
		RETURNING seq
	`,
		sessionID,
		string(e.Type),
		int64(e.ID),
		string(e.Category),
		e.Time.UnixNano(),
		body,
		sessionID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return seq, nil
}

// ReadSession returns every event of a session ordered by sequence.
//
// Returns an empty slice (not nil) for a session with no events and
// ErrSessionNotFound for an unknown session.
func (s *Store) ReadSession(ctx context.Context, sessionID string) ([]Entry, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("read session %q: %w", sessionID, ErrSessionNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, type, operation_id, category, occurred_at, payload
		FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Session: sessionID, Event: e})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

// Sessions lists every session, oldest first, with its event count.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.label, s.started_at, COUNT(e.seq)
		FROM sessions s
		LEFT JOIN events e ON e.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at ASC, s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			sess    Session
			started int64
		)
		if err := rows.Scan(&sess.ID, &sess.Label, &started, &sess.Events); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StartedAt = time.Unix(0, started)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func scanEvent(rows *sql.Rows) (op.Event, error) {
	var (
		e        op.Event
		typ      string
		id       int64
		category string
		occurred int64
		body     string
	)
	if err := rows.Scan(&e.Seq, &typ, &id, &category, &occurred, &body); err != nil {
		return op.Event{}, fmt.Errorf("scan event: %w", err)
	}

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return op.Event{}, fmt.Errorf("unmarshal event %d payload: %w", e.Seq, err)
	}

	e.Type = op.EventType(typ)
	e.ID = op.OperationID(id)
	e.Category = op.Category(category)
	e.Time = time.Unix(0, occurred)
	e.Description = p.Description
	e.Duration = time.Duration(p.DurationNS)
	e.Progress = p.Progress
	e.Message = p.Message
	e.Phase = p.Phase
	e.Reason = p.Reason
	e.ObsoletedBy = p.ObsoletedBy
	e.OperationCount = p.OperationCount
	e.Operations = p.Operations
	e.BatchID = p.BatchID
	e.SkipTriggers = p.SkipTriggers
	if p.Error != "" {
		e.Err = errors.New(p.Error)
	}
	return e, nil
}

// marshalPayload encodes with HTML escaping disabled so descriptions and
// error text are stored as written.
func marshalPayload(e op.Event) (string, error) {
	p := payload{
		Description:    e.Description,
		DurationNS:     int64(e.Duration),
		Progress:       e.Progress,
		Message:        e.Message,
		Phase:          e.Phase,
		Reason:         e.Reason,
		ObsoletedBy:    e.ObsoletedBy,
		OperationCount: e.OperationCount,
		Operations:     e.Operations,
		BatchID:        e.BatchID,
		Error:          e.ErrorMessage(),
		SkipTriggers:   e.SkipTriggers,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
