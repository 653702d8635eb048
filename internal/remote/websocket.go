package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsWriter sends lines as text frames. gorilla/websocket allows one
// concurrent writer per connection.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// Handler upgrades HTTP requests to websocket connections speaking the
// line protocol. Each text frame may carry one or more newline-separated
// lines; replies are sent as one frame per line.
func Handler(s *Serial) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer conn.Close()

		peer := uuid.NewString()
		s.logger.Info("remote client connected", "peer", peer, "addr", r.RemoteAddr)
		writer := &wsWriter{conn: conn}

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				s.logger.Info("remote client disconnected", "peer", peer, "error", err.Error())
				return
			}
			if kind != websocket.TextMessage {
				s.logger.Debug("ignoring non-text frame", "peer", peer, "type", kind)
				continue
			}
			for _, line := range strings.Split(string(data), "\n") {
				s.Submit(line, writer)
			}
		}
	})
}

// Client is the peer side of the websocket protocol, used by tooling that
// inspects or tunes a running pipeline.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to a kabuki remote endpoint such as ws://host:port/remote.
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Send writes one line.
func (c *Client) Send(line string) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// Receive reads the next line, waiting at most timeout.
func (c *Client) Receive(timeout time.Duration) (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LiveChannel is a channel definition as reported by a running pipeline.
type LiveChannel struct {
	Key   string   `json:"k"`
	Label string   `json:"l"`
	Min   float64  `json:"m"`
	Max   float64  `json:"M"`
	Value *float64 `json:"v"`
}

// Channels requests the channel definitions and their current values.
func (c *Client) Channels(timeout time.Duration) ([]LiveChannel, error) {
	if err := c.Send("?"); err != nil {
		return nil, fmt.Errorf("request definitions: %w", err)
	}
	line, err := c.Receive(timeout)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	var defs []LiveChannel
	if err := json.Unmarshal([]byte(line), &defs); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	return defs, nil
}

// Set sends a single key/value update.
func (c *Client) Set(key string, v float64) error {
	b, err := json.Marshal(map[string]float64{key: v})
	if err != nil {
		return err
	}
	return c.Send(string(b))
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
