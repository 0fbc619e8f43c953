package hub

import (
	"encoding/json"
	"log/slog"

	"github.com/facegate/realtime-gateway/internal/events"
)

// RelayPublisher forwards envelopes to sibling gateway instances. Publish
// failures are the publisher's to log; local delivery never waits on it.
type RelayPublisher interface {
	Publish(env events.Envelope) error
}

// Broadcaster resolves a target set against the registry, filters through
// subscriptions, and fans an envelope out to the selected connections.
// Delivery is per-connection fire-and-forget: one dead or slow client never
// aborts delivery to the rest.
type Broadcaster struct {
	registry *Registry
	subs     *Subscriptions
	relay    RelayPublisher
	logger   *slog.Logger
}

// NewBroadcaster wires the local delivery path. relay may be nil when the
// gateway runs as a single instance.
func NewBroadcaster(registry *Registry, subs *Subscriptions, relay RelayPublisher, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		subs:     subs,
		relay:    relay,
		logger:   logger,
	}
}

// SetRelay attaches the backplane publisher. Called once during wiring,
// after the backplane (which itself needs the local delivery path) exists.
func (b *Broadcaster) SetRelay(relay RelayPublisher) {
	b.relay = relay
}

// Broadcast builds an envelope for the payload and dispatches it locally
// and across the backplane.
func (b *Broadcaster) Broadcast(t events.EventType, payload any, target Target) error {
	env, err := events.NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	b.Dispatch(env, target)
	return nil
}

// Dispatch delivers an already-built envelope locally and then hands it to
// the backplane for sibling instances. Backplane failure is logged and does
// not undo local delivery.
func (b *Broadcaster) Dispatch(env events.Envelope, target Target) {
	b.DeliverLocal(env, target)
	if b.relay == nil {
		return
	}
	if err := b.relay.Publish(env); err != nil {
		b.logger.Error("backplane publish failed", "type", env.Type, "message_id", env.MessageID, "error", err)
	}
}

// DeliverLocal fans the envelope out to matching local connections only.
// This is the entry point the backplane uses for inbound envelopes, so
// nothing on this path ever re-publishes — that would echo between
// instances forever.
func (b *Broadcaster) DeliverLocal(env events.Envelope, target Target) {
	frame, err := json.Marshal(env)
	if err != nil {
		b.logger.Error("failed to marshal envelope", "type", env.Type, "error", err)
		return
	}

	delivered := 0
	for _, c := range b.registry.ListAll() {
		if c.State() != StateAuthenticated {
			continue
		}
		if !target.Selects(c) || !b.subs.Matches(c, env.Type) {
			continue
		}
		if err := c.Enqueue(frame); err != nil {
			b.logger.Warn("delivery failed", "client_id", c.ID, "type", env.Type, "error", err)
			continue
		}
		delivered++
	}

	b.logger.Debug("event delivered", "type", env.Type, "message_id", env.MessageID, "connections", delivered)
}
