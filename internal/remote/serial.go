// Package remote implements the remote-control channel protocol.
//
// A remote peer (the slider client) tunes a running graph through a shared
// key/value dictionary. Each registered channel is a dict_source operator
// reading one key of that dictionary.
//
// PROTOCOL (newline-delimited, UTF-8):
//
//	peer -> kabuki   "?"                 request channel definitions
//	kabuki -> peer   [{"M":1,"k":"0","l":"Throttle","m":0,"v":0.5}, ...]
//	peer -> kabuki   {"0": 0.62}         merge values into the dictionary
//
// Malformed JSON lines are logged and ignored. Lines are queued by transport
// goroutines and applied by Poll on the controller loop, so the dictionary
// and the graph are only ever touched by the loop goroutine.
package remote

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/kabuki/internal/graph"
	"github.com/roach88/kabuki/internal/value"
)

// DefaultInboxSize is the number of lines buffered between transports and Poll.
const DefaultInboxSize = 256

// LineWriter sends one line back to the peer that submitted a request.
type LineWriter interface {
	WriteLine(line string) error
}

// Definition describes one remote channel.
type Definition struct {
	Key     string
	Label   string
	Min     float64
	Max     float64
	Default value.Value
}

type message struct {
	line string
	from LineWriter
}

// Serial owns the shared dictionary and the channel registry, and applies
// remote lines to them when polled.
//
// Thread-safety model:
//   - Submit: safe from any goroutine
//   - Channel, Begin, Registration methods, Poll, Definitions, Dict: loop
//     goroutine only
type Serial struct {
	dict   value.Object
	defs   []Definition
	inbox  chan message
	logger *slog.Logger
}

// Option configures a Serial.
type Option func(*Serial)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Serial) {
		s.logger = l
	}
}

// WithInboxSize sets how many lines may be queued between polls.
func WithInboxSize(n int) Option {
	return func(s *Serial) {
		s.inbox = make(chan message, n)
	}
}

// NewSerial creates a registry with an empty dictionary.
func NewSerial(opts ...Option) *Serial {
	s := &Serial{
		dict:   value.Object{},
		inbox:  make(chan message, DefaultInboxSize),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channel registers a remotely adjustable value and returns the node
// reading it. Keys are assigned in registration order: "0", "1", ...
// The label is NFC-normalized.
func (s *Serial) Channel(label string, def any, min, max float64) (*graph.Operator, error) {
	op, d, err := s.newChannel(len(s.defs), label, def, min, max)
	if err != nil {
		return nil, err
	}
	s.defs = append(s.defs, d)
	return op, nil
}

func (s *Serial) newChannel(index int, label string, def any, min, max float64) (*graph.Operator, Definition, error) {
	key := strconv.Itoa(index)
	op, err := graph.NewDictSource(key, s.dict, def)
	if err != nil {
		return nil, Definition{}, fmt.Errorf("channel %q: %w", label, err)
	}
	dv, err := value.FromAny(def)
	if err != nil {
		return nil, Definition{}, fmt.Errorf("channel %q: %w", label, err)
	}
	return op, Definition{
		Key:     key,
		Label:   norm.NFC.String(label),
		Min:     min,
		Max:     max,
		Default: dv,
	}, nil
}

// Registration collects the channels of a graph that is still being built.
// They replace the registered channels only on Commit, so a build that fails
// halfway leaves the running graph's channels in place.
type Registration struct {
	s    *Serial
	defs []Definition
}

// Begin starts registering the channels of a new graph. Keys restart at "0".
// The dictionary is shared: a graph rebuilt with the same channels gets the
// same keys and keeps the values clients already sent.
func (s *Serial) Begin() *Registration {
	return &Registration{s: s}
}

// Channel is Serial.Channel for the graph being built.
func (r *Registration) Channel(label string, def any, min, max float64) (*graph.Operator, error) {
	op, d, err := r.s.newChannel(len(r.defs), label, def, min, max)
	if err != nil {
		return nil, err
	}
	r.defs = append(r.defs, d)
	return op, nil
}

// Commit makes the collected channels the registered ones.
func (r *Registration) Commit() {
	r.s.defs = r.defs
}

// Definitions returns the registered channels in key order.
func (s *Serial) Definitions() []Definition {
	return append([]Definition(nil), s.defs...)
}

// Dict returns the shared dictionary.
func (s *Serial) Dict() value.Object {
	return s.dict
}

// Submit queues a line received by a transport. It never blocks; when the
// inbox is full the line is dropped and false is returned.
func (s *Serial) Submit(line string, from LineWriter) bool {
	select {
	case s.inbox <- message{line: line, from: from}:
		return true
	default:
		s.logger.Warn("remote inbox full, dropping line", "line", line)
		return false
	}
}

// Poll applies every queued line. It implements controller.Poller.
func (s *Serial) Poll() error {
	for {
		select {
		case m := <-s.inbox:
			s.handle(m)
		default:
			return nil
		}
	}
}

func (s *Serial) handle(m message) {
	line := strings.TrimSpace(m.line)
	if line == "" {
		return
	}

	if strings.HasPrefix(line, "?") {
		if m.from == nil {
			return
		}
		desc, err := s.describe()
		if err != nil {
			s.logger.Error("describe channels failed", "error", err)
			return
		}
		if err := m.from.WriteLine(desc); err != nil {
			s.logger.Warn("send channel definitions failed", "error", err)
		}
		return
	}

	update, err := value.ParseObject([]byte(line))
	if err != nil {
		s.logger.Warn("ignoring bad JSON", "line", line, "error", err)
		return
	}
	s.dict.Merge(update)
	s.logger.Debug("remote values applied", "keys", len(update))
}

// describe renders the channel definitions with current values as one
// JSON line.
func (s *Serial) describe() (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, d := range s.defs {
		if i > 0 {
			buf.WriteByte(',')
		}
		current, ok := s.dict[d.Key]
		if !ok {
			current = value.Null{}
		}
		b, err := value.MarshalCanonical(value.Object{
			"k": value.String(d.Key),
			"l": value.String(d.Label),
			"m": value.Number(d.Min),
			"M": value.Number(d.Max),
			"v": current,
		})
		if err != nil {
			return "", fmt.Errorf("channel %s: %w", d.Key, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.String(), nil
}
