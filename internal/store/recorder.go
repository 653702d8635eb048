package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/kabuki/internal/value"
)

// SessionIDGenerator produces session ids.
type SessionIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 session ids, so sessions
// sort by creation time even across databases.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7, falling back to a random UUID if the
// clock sequence cannot be read.
func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Recorder writes the deliveries of one session.
//
// A Recorder is also a poll input: registered with the controller, its Poll
// advances the cycle number so every output of a cycle shares it. It must
// be registered before outputs are delivered, and like the rest of the
// loop it is used from one goroutine.
type Recorder struct {
	ctx     context.Context
	store   *Store
	clock   *Clock
	session Session
	cycle   int64
}

// NewRecorder starts a session for pipeline. A nil clock resumes after the
// store's LastSeq.
func (s *Store) NewRecorder(ctx context.Context, pipeline string, gen SessionIDGenerator, clock *Clock) (*Recorder, error) {
	if gen == nil {
		gen = UUIDv7Generator{}
	}
	if clock == nil {
		last, err := s.LastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("new recorder: %w", err)
		}
		clock = NewClockAt(last)
	}

	sess := Session{
		ID:         gen.Generate(),
		Pipeline:   pipeline,
		StartedSeq: clock.Next(),
	}
	if err := s.WriteSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}
	return &Recorder{ctx: ctx, store: s, clock: clock, session: sess}, nil
}

// Session returns the recorded session.
func (r *Recorder) Session() Session {
	return r.session
}

// Cycle returns the current cycle number, starting at 1 after the first Poll.
func (r *Recorder) Cycle() int64 {
	return r.cycle
}

// Poll implements controller.Poller.
func (r *Recorder) Poll() error {
	r.cycle++
	return nil
}

// Output returns a consumer recording deliveries under name.
func (r *Recorder) Output(name string) *OutputRecorder {
	return &OutputRecorder{rec: r, name: name}
}

// OutputRecorder records one output's deliveries.
type OutputRecorder struct {
	rec  *Recorder
	name string
}

// Consume implements controller.Consumer.
func (o *OutputRecorder) Consume(v value.Value) error {
	r := o.rec
	_, err := r.store.WriteDelivery(r.ctx, Delivery{
		SessionID: r.session.ID,
		Cycle:     r.cycle,
		Output:    o.name,
		Value:     v,
		Seq:       r.clock.Next(),
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", o.name, err)
	}
	return nil
}
