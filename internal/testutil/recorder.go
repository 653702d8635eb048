package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/kabuki/internal/value"
)

// EventLog records the order in which stubs were called.
type EventLog struct {
	mu     sync.Mutex
	events []string
}

// Add appends an event.
func (l *EventLog) Add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

// Events returns a copy of the recorded events.
func (l *EventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// RecordingPoller logs "poll:<name>" and runs OnPoll, if set.
type RecordingPoller struct {
	Name   string
	Log    *EventLog
	OnPoll func()
	Err    error
	Polls  int
}

// Poll implements the poll capability.
func (p *RecordingPoller) Poll() error {
	p.Polls++
	if p.Log != nil {
		p.Log.Add("poll:" + p.Name)
	}
	if p.OnPoll != nil {
		p.OnPoll()
	}
	return p.Err
}

// RecordingConsumer logs "consume:<name>=<value>" and keeps every value.
type RecordingConsumer struct {
	Name   string
	Log    *EventLog
	Values []value.Value
	Err    error
}

// Consume implements the consume capability.
func (c *RecordingConsumer) Consume(v value.Value) error {
	c.Values = append(c.Values, v)
	if c.Log != nil {
		c.Log.Add(fmt.Sprintf("consume:%s=%s", c.Name, value.Format(v)))
	}
	return c.Err
}

// Last returns the most recent value, or nil if none was consumed.
func (c *RecordingConsumer) Last() value.Value {
	if len(c.Values) == 0 {
		return nil
	}
	return c.Values[len(c.Values)-1]
}
