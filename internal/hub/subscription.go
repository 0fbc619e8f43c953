package hub

import (
	"errors"
	"fmt"

	"github.com/facegate/realtime-gateway/internal/events"
)

// ErrUnknownConnection is returned when a subscription operation names a
// connection id that is not registered.
var ErrUnknownConnection = errors.New("unknown connection")

// Subscriptions applies per-connection event-type filters through the
// registry. Validation happens before any mutation: a request containing an
// unknown event type leaves the prior set unchanged.
type Subscriptions struct {
	registry *Registry
}

func NewSubscriptions(registry *Registry) *Subscriptions {
	return &Subscriptions{registry: registry}
}

func validateTypes(types []events.EventType) error {
	for _, t := range types {
		if !t.Valid() {
			return fmt.Errorf("unknown event type %q", t)
		}
	}
	return nil
}

// Set replaces the connection's full subscription set. An empty set means
// "receive everything".
func (s *Subscriptions) Set(id string, types []events.EventType) error {
	if err := validateTypes(types); err != nil {
		return err
	}
	c := s.registry.Get(id)
	if c == nil {
		return ErrUnknownConnection
	}
	c.setSubscriptions(types)
	return nil
}

// Remove computes the set difference, dropping the given types from the
// connection's subscriptions. Removing from an empty ("receive all") set is
// a no-op: the connection keeps receiving everything. The original design
// left this ambiguous; the alternative — expanding to "all except" — would
// silently change the semantics of every client that never subscribed.
func (s *Subscriptions) Remove(id string, types []events.EventType) error {
	if err := validateTypes(types); err != nil {
		return err
	}
	c := s.registry.Get(id)
	if c == nil {
		return ErrUnknownConnection
	}
	c.removeSubscriptions(types)
	return nil
}

// Matches reports whether the connection should receive events of type t.
func (s *Subscriptions) Matches(c *Connection, t events.EventType) bool {
	return c.Matches(t)
}

// CountByType returns, for each event type, how many connections would
// receive it. Feeds the gateway stats endpoint.
func (s *Subscriptions) CountByType() map[events.EventType]int {
	counts := make(map[events.EventType]int, len(events.AllTypes))
	conns := s.registry.ListAll()
	for _, t := range events.AllTypes {
		for _, c := range conns {
			if c.Matches(t) {
				counts[t]++
			}
		}
	}
	return counts
}
