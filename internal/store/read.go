package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// ReadSession returns one session.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, pipeline, started_seq FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Pipeline, &sess.StartedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("read session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

// Sessions returns every session, oldest first.
// Returns an empty slice (not nil) for an empty database.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pipeline, started_seq
		FROM sessions
		ORDER BY started_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Pipeline, &sess.StartedSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, pipeline, started_seq
		FROM sessions
		ORDER BY started_seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&sess.ID, &sess.Pipeline, &sess.StartedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("latest session: %w", ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("latest session: %w", err)
	}
	return sess, nil
}

// ReadDeliveries returns all deliveries of a session in seq order.
// Returns an empty slice (not nil) if none exist.
func (s *Store) ReadDeliveries(ctx context.Context, sessionID string) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, cycle, output, value_json, seq
		FROM deliveries
		WHERE session_id = ?
		ORDER BY seq ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return deliveries, nil
}

func scanDelivery(rows *sql.Rows) (Delivery, error) {
	var (
		d         Delivery
		valueJSON string
	)
	if err := rows.Scan(&d.ID, &d.SessionID, &d.Cycle, &d.Output, &valueJSON, &d.Seq); err != nil {
		return Delivery{}, fmt.Errorf("scan delivery: %w", err)
	}
	v, err := unmarshalValue(valueJSON)
	if err != nil {
		return Delivery{}, fmt.Errorf("delivery %d: %w", d.ID, err)
	}
	d.Value = v
	return d, nil
}

// Summary describes a recorded session.
type Summary struct {
	Session    Session
	Cycles     int64
	Deliveries int64
	Outputs    []string
	LastSeq    int64
}

// Summarize aggregates a session's deliveries.
func (s *Store) Summarize(ctx context.Context, sessionID string) (Summary, error) {
	sess, err := s.ReadSession(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Session: sess, LastSeq: sess.StartedSeq}

	var lastSeq sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT cycle), COUNT(*), MAX(seq)
		FROM deliveries
		WHERE session_id = ?
	`, sessionID).Scan(&sum.Cycles, &sum.Deliveries, &lastSeq)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", sessionID, err)
	}
	if lastSeq.Valid {
		sum.LastSeq = lastSeq.Int64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT output FROM deliveries
		WHERE session_id = ?
		ORDER BY output COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", sessionID, err)
	}
	defer rows.Close()

	sum.Outputs = []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Summary{}, fmt.Errorf("scan output: %w", err)
		}
		sum.Outputs = append(sum.Outputs, name)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate outputs: %w", err)
	}
	return sum, nil
}
