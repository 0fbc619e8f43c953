package hub

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/facegate/realtime-gateway/internal/auth"
	"github.com/facegate/realtime-gateway/internal/events"
)

// State tracks a connection through its lifecycle. Closed is terminal;
// a reconnecting client always gets a fresh Connection with a new id.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrQueueFull is returned when a connection's outbound queue is full;
	// the frame is dropped rather than blocking the broadcast loop.
	ErrQueueFull = errors.New("outbound queue full")
	// ErrConnectionClosed is returned when enqueueing to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Transport is the narrow surface the hub needs from the underlying
// WebSocket session.
type Transport interface {
	WriteMessage(data []byte) error
	Close() error
}

// sendQueueSize bounds the per-connection outbound buffer. A client that
// falls this far behind starts losing frames instead of stalling delivery
// to everyone else.
const sendQueueSize = 64

// Connection is one authenticated transport session. It is owned by the
// Registry; other components reach it only through registry operations.
// Each connection runs a single writer goroutine draining its outbound
// queue, so no lock is ever held across a transport write.
type Connection struct {
	ID          string
	ConnectedAt time.Time

	transport Transport
	logger    *slog.Logger

	mu           sync.Mutex
	state        State
	userID       string
	email        string
	role         string
	lastActivity time.Time
	subs         map[events.EventType]struct{}

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection wraps a freshly upgraded transport. The connection starts
// in Connecting and receives no events until it authenticates; its writer
// goroutine starts immediately so pre-auth replies can still be sent.
func NewConnection(id string, transport Transport, logger *slog.Logger) *Connection {
	now := time.Now()
	c := &Connection{
		ID:           id,
		ConnectedAt:  now,
		transport:    transport,
		logger:       logger,
		state:        StateConnecting,
		lastActivity: now,
		subs:         make(map[events.EventType]struct{}),
		send:         make(chan []byte, sendQueueSize),
		done:         make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *Connection) writePump() {
	for {
		select {
		case data := <-c.send:
			if err := c.transport.WriteMessage(data); err != nil {
				c.logger.Debug("transport write failed", "client_id", c.ID, "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Authenticate transitions Connecting -> Authenticated and attaches the
// verified identity. Calling it on a closed connection is an error.
func (c *Connection) Authenticate(id auth.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrConnectionClosed
	}
	c.state = StateAuthenticated
	c.userID = id.UserID
	c.email = id.Email
	c.role = id.Role
	c.lastActivity = time.Now()
	return nil
}

// Enqueue queues a frame for the writer goroutine. Never blocks: a full
// queue drops the frame and reports ErrQueueFull.
func (c *Connection) Enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close transitions to the terminal Closed state, stops the writer, and
// closes the transport. Safe to call more than once and from any goroutine.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)
		c.transport.Close()
	})
}

// Closed reports whether the connection reached its terminal state.
func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) Email() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email
}

func (c *Connection) Role() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// LastActivity is exposed for an external idle reaper; the hub itself
// never evicts on idleness.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// setSubscriptions replaces the full subscription set.
func (c *Connection) setSubscriptions(types []events.EventType) {
	subs := make(map[events.EventType]struct{}, len(types))
	for _, t := range types {
		subs[t] = struct{}{}
	}
	c.mu.Lock()
	c.subs = subs
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// removeSubscriptions drops the given types from the set. An empty
// ("receive all") set stays empty: it never becomes "all except".
func (c *Connection) removeSubscriptions(types []events.EventType) {
	c.mu.Lock()
	for _, t := range types {
		delete(c.subs, t)
	}
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Subscriptions returns a copy of the current subscription set.
func (c *Connection) Subscriptions() []events.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.EventType, 0, len(c.subs))
	for t := range c.subs {
		out = append(out, t)
	}
	return out
}

// Matches reports whether this connection should receive events of type t.
// An empty subscription set means "receive everything".
func (c *Connection) Matches(t events.EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[t]
	return ok
}
