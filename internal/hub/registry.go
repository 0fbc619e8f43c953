package hub

import (
	"log/slog"
	"sync"
)

// Registry is the shared table of live, authenticated connections. It is
// process-scoped, handed to every component that needs it, and holds the
// only references to Connection values. Enumeration is snapshot-then-
// iterate so broadcasts are safe against concurrent add/remove.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		logger: logger,
	}
}

// Add registers an authenticated connection. It is an idempotent upsert:
// if another connection is already registered under the same id, the
// displaced transport is closed so a remove racing a stale add can never
// leave a dead transport registered as live.
func (r *Registry) Add(c *Connection) error {
	if c.State() != StateAuthenticated {
		return ErrConnectionClosed
	}

	r.mu.Lock()
	prev, ok := r.conns[c.ID]
	r.conns[c.ID] = c
	r.mu.Unlock()

	if ok && prev != c {
		r.logger.Warn("displacing registered connection", "client_id", c.ID)
		prev.Close()
	}
	r.logger.Debug("connection registered", "client_id", c.ID, "user_id", c.UserID())
	return nil
}

// Remove drops the connection from the table. Correctness is keyed off the
// connection instance, not the id: if the slot now holds a different (newer)
// connection, it is left alone. No-op when absent.
func (r *Registry) Remove(c *Connection) {
	r.mu.Lock()
	cur, ok := r.conns[c.ID]
	if ok && cur == c {
		delete(r.conns, c.ID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("connection removed", "client_id", c.ID, "user_id", c.UserID())
	}
}

// Get returns the connection registered under id, or nil.
func (r *Registry) Get(id string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// ListAll returns a snapshot of every registered connection.
func (r *Registry) ListAll() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// ListByUser returns a snapshot of the user's connections (a user may hold
// several sessions at once).
func (r *Registry) ListByUser(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Connection
	for _, c := range r.conns {
		if c.UserID() == userID {
			out = append(out, c)
		}
	}
	return out
}

// ListByRole returns a snapshot of connections whose identity carries role.
func (r *Registry) ListByRole(role string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Connection
	for _, c := range r.conns {
		if c.Role() == role {
			out = append(out, c)
		}
	}
	return out
}

// Touch updates the connection's last-activity timestamp. No-op if absent.
func (r *Registry) Touch(id string) {
	if c := r.Get(id); c != nil {
		c.touch()
	}
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
