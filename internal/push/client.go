package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/delivery-broadcast/internal/observability"
)

// Handler consumes the raw data payload of one push event.
type Handler func(data []byte)

// frame is the wire shape of one server-to-client event.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type handlerEntry struct {
	id int
	fn Handler
}

// Client holds one websocket connection per authenticated session and
// dispatches named events to registered handlers. It is constructed and
// owned explicitly by the session owner; there is no package-level
// singleton. Events are not replayed after a reconnect: consumers
// re-derive state from the next poll.
type Client struct {
	wsURL  string
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	handlers  map[string][]handlerEntry
	nextID    int

	userID string
	role   string
	cancel context.CancelFunc
	done   chan struct{}

	minBackoff   time.Duration
	maxBackoff   time.Duration
	healthyAfter time.Duration
}

func NewClient(wsURL string, logger *slog.Logger) *Client {
	return &Client{
		wsURL:        wsURL,
		logger:       logger,
		handlers:     make(map[string][]handlerEntry),
		minBackoff:   time.Second,
		maxBackoff:   30 * time.Second,
		healthyAfter: 30 * time.Second,
	}
}

// Connect starts the connection loop for the given identity. Calling it
// again while a loop is running for the same identity is a no-op.
func (c *Client) Connect(ctx context.Context, userID, role string) error {
	c.mu.Lock()
	if c.cancel != nil {
		same := c.userID == userID && c.role == role
		c.mu.Unlock()
		if same {
			return nil
		}
		return fmt.Errorf("push client already connected as %s", c.userID)
	}
	c.userID = userID
	c.role = role
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// run dials, reads frames, and redials with exponential backoff until the
// context is canceled. The backoff applies after any teardown, whether the
// dial failed or an established connection dropped, so a server that
// accepts and immediately closes cannot induce a reconnect storm. Only a
// connection that stayed up past the healthy threshold resets the backoff.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	backoff := c.minBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("push dial failed", "error", err, "backoff", backoff.String())
		} else {
			c.setConnected(true)
			c.logger.Info("push channel connected", "user_id", c.userID)
			start := time.Now()
			c.readLoop(ctx, conn)
			c.setConnected(false)
			if ctx.Err() != nil {
				return
			}
			if time.Since(start) >= c.healthyAfter {
				backoff = c.minBackoff
			}
			c.logger.Warn("push channel disconnected", "backoff", backoff.String())
		}

		observability.PushReconnects.Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("userId", c.userID)
	q.Set("role", c.role)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// The watcher unblocks the read on cancellation and exits with this
	// connection, not with the session.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("push read error", "error", err)
			}
			return
		}
		if f.Event == "" {
			continue
		}
		observability.PushEventsTotal.WithLabelValues(f.Event).Inc()
		c.dispatch(f.Event, f.Data)
	}
}

func (c *Client) dispatch(event string, data []byte) {
	c.mu.Lock()
	entries := append([]handlerEntry(nil), c.handlers[event]...)
	c.mu.Unlock()
	for _, e := range entries {
		e.fn(data)
	}
}

// On registers a handler for the named event and returns a registration
// id usable with Off.
func (c *Client) On(event string, h Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: c.nextID, fn: h})
	return c.nextID
}

// Off removes the identified registrations for the event, or every
// handler for the event when no ids are given. Re-registering after an
// Off never leaves a duplicate behind.
func (c *Client) Off(event string, ids ...int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		delete(c.handlers, event)
		return
	}
	kept := c.handlers[event][:0]
	for _, e := range c.handlers[event] {
		drop := false
		for _, id := range ids {
			if e.id == id {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(c.handlers, event)
		return
	}
	c.handlers[event] = kept
}

// IsConnected reports current liveness. It never errors; callers treat a
// false as "poll instead".
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close tears the connection down and stops the reconnect loop. The
// client is done after Close; build a new one for a new session.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Client) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}
