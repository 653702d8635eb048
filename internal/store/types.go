package store

import "github.com/roach88/kabuki/internal/value"

// Session is one loaded graph. A hot reload starts a new session.
type Session struct {
	ID         string
	Pipeline   string
	StartedSeq int64
}

// Delivery is one value delivered to one output in one cycle.
type Delivery struct {
	ID        int64
	SessionID string
	Cycle     int64
	Output    string
	Value     value.Value
	Seq       int64
}
