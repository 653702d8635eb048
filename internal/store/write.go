package store

import (
	"context"
	"fmt"
)

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING, so re-registering a session is a no-op.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, pipeline, started_seq)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.Pipeline, sess.StartedSeq)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteDelivery inserts a delivery record and returns whether a row was
// written. A second delivery for the same (session, cycle, output) is
// silently ignored.
//
// Note: the session referenced by SessionID must exist (foreign key constraint).
func (s *Store) WriteDelivery(ctx context.Context, d Delivery) (inserted bool, err error) {
	valueJSON, err := marshalValue(d.Value)
	if err != nil {
		return false, fmt.Errorf("write delivery: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (session_id, cycle, output, value_json, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, cycle, output) DO NOTHING
	`, d.SessionID, d.Cycle, d.Output, valueJSON, d.Seq)
	if err != nil {
		return false, fmt.Errorf("write delivery: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write delivery: %w", err)
	}
	return n > 0, nil
}
