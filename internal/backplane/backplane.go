// Package backplane relays broadcast envelopes between horizontally scaled
// gateway instances over NATS. Delivery across the backplane is
// at-least-once and unordered; anything stronger belongs to a different
// design.
package backplane

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/facegate/realtime-gateway/internal/events"
)

// DeliverFunc is the narrow local-delivery hook the backplane calls for
// inbound envelopes. Handing it in at construction (instead of the full
// broadcaster) keeps the dependency one-way: inbound envelopes are
// delivered locally only and never re-published.
type DeliverFunc func(env events.Envelope)

// frame is the wire shape on the backplane subject. Origin carries the
// publishing instance id so a process can drop its own frames — it already
// delivered them locally before publishing.
type frame struct {
	Origin   string          `json:"origin"`
	Envelope events.Envelope `json:"envelope"`
}

// Backplane holds the single NATS connection a gateway process uses for
// cross-instance fan-out: one publisher handle, one subscription, opened at
// startup and closed at shutdown.
type Backplane struct {
	nc         *nats.Conn
	sub        *nats.Subscription
	subject    string
	instanceID string
	deliver    DeliverFunc
	logger     *slog.Logger
}

// Connect dials NATS with aggressive reconnects; the gateway keeps serving
// local clients while the backplane is down, it just loses cross-instance
// delivery for the duration.
func Connect(natsURL, subject, instanceID string, deliver DeliverFunc, logger *slog.Logger) (*Backplane, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("backplane disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("backplane reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Backplane{
		nc:         nc,
		subject:    subject,
		instanceID: instanceID,
		deliver:    deliver,
		logger:     logger,
	}, nil
}

// Start subscribes to the backplane subject. Inbound frames run on the NATS
// delivery goroutine and only ever touch the local-delivery path.
func (b *Backplane) Start() error {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		b.handleInbound(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	b.sub = sub
	b.logger.Info("backplane subscribed", "subject", b.subject, "instance_id", b.instanceID)
	return nil
}

// Publish relays an envelope to sibling instances. Failures are the
// caller's to log; they never affect local delivery.
func (b *Backplane) Publish(env events.Envelope) error {
	data, err := json.Marshal(frame{Origin: b.instanceID, Envelope: env})
	if err != nil {
		return fmt.Errorf("marshal backplane frame: %w", err)
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", b.subject, err)
	}
	return nil
}

// handleInbound decodes one backplane frame. Malformed input and echoes of
// our own publishes are dropped and logged; this loop must never crash.
func (b *Backplane) handleInbound(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		b.logger.Warn("dropping malformed backplane frame", "error", err)
		return
	}
	if f.Origin == b.instanceID {
		return
	}
	if !f.Envelope.Type.Valid() {
		b.logger.Warn("dropping backplane frame with unknown event type", "type", f.Envelope.Type, "origin", f.Origin)
		return
	}
	b.logger.Debug("backplane frame received", "type", f.Envelope.Type, "message_id", f.Envelope.MessageID, "origin", f.Origin)
	b.deliver(f.Envelope)
}

// Close drains the subscription and connection. Best effort: in-flight
// messages that miss the drain window are lost.
func (b *Backplane) Close() {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.Debug("backplane unsubscribe failed", "error", err)
		}
	}
	if b.nc != nil {
		if err := b.nc.Drain(); err != nil {
			b.nc.Close()
		}
	}
}
