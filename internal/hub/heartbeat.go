package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// heartbeatFrame is the liveness message pushed to every connection. It
// bypasses subscription filtering: clients rely on it to detect a dead
// link regardless of what they subscribed to.
type heartbeatFrame struct {
	Type             string    `json:"type"`
	Timestamp        time.Time `json:"timestamp"`
	ClientID         string    `json:"clientId"`
	ServerTime       time.Time `json:"serverTime"`
	UptimeSeconds    int64     `json:"uptime"`
	ConnectedClients int       `json:"connectedClients"`
}

type pongFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat broadcasts liveness frames on a fixed interval and answers
// explicit client heartbeat/ping messages. It never evicts idle
// connections; that policy belongs to an external reaper reading
// Connection.LastActivity.
type Heartbeat struct {
	registry *Registry
	interval time.Duration
	started  time.Time
	logger   *slog.Logger
	cancel   context.CancelFunc
}

func NewHeartbeat(registry *Registry, interval time.Duration, logger *slog.Logger) *Heartbeat {
	return &Heartbeat{
		registry: registry,
		interval: interval,
		started:  time.Now(),
		logger:   logger,
	}
}

// Start launches the ticker goroutine. Stop (or ctx cancellation) ends it.
func (h *Heartbeat) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.tick()
			}
		}
	}()
}

// Stop cancels the ticker goroutine.
func (h *Heartbeat) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Heartbeat) tick() {
	conns := h.registry.ListAll()
	for _, c := range conns {
		h.sendHeartbeat(c, len(conns))
	}
}

func (h *Heartbeat) frame(c *Connection, connected int) heartbeatFrame {
	now := time.Now().UTC()
	return heartbeatFrame{
		Type:             "heartbeat",
		Timestamp:        now,
		ClientID:         c.ID,
		ServerTime:       now,
		UptimeSeconds:    int64(time.Since(h.started).Seconds()),
		ConnectedClients: connected,
	}
}

func (h *Heartbeat) sendHeartbeat(c *Connection, connected int) {
	data, err := json.Marshal(h.frame(c, connected))
	if err != nil {
		h.logger.Error("failed to marshal heartbeat", "error", err)
		return
	}
	if err := c.Enqueue(data); err != nil {
		h.logger.Debug("heartbeat delivery failed", "client_id", c.ID, "error", err)
	}
}

// HandleClientHeartbeat answers an explicit heartbeat message: the reply is
// immediate and the connection's activity timestamp advances.
func (h *Heartbeat) HandleClientHeartbeat(c *Connection) {
	h.registry.Touch(c.ID)
	h.sendHeartbeat(c, h.registry.Count())
}

// HandlePing answers a ping message with a pong and touches the connection.
func (h *Heartbeat) HandlePing(c *Connection) {
	h.registry.Touch(c.ID)
	data, err := json.Marshal(pongFrame{Type: "pong", Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := c.Enqueue(data); err != nil {
		h.logger.Debug("pong delivery failed", "client_id", c.ID, "error", err)
	}
}

// Uptime reports how long this scheduler (in practice, the process) has
// been running.
func (h *Heartbeat) Uptime() time.Duration {
	return time.Since(h.started)
}
