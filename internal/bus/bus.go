// Package bus provides the optional horizontal-scaling hook (§9a): a
// publish-only NATS-backed implementation of core.ClusterBus. A single
// pairserver instance runs correctly with no bus configured at all — the
// engine defaults to core.NoopBus — but when NATS_URL is set, match and
// disconnect events are published for other instances (or external
// observers) to consume. pairserver itself never subscribes back; matching
// decisions are never gated on cluster round-trips (§5 "Timeouts").
package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects this instance publishes to. Adapted from messaging.SubjectMatch*,
// trimmed to the two events core.ClusterBus actually emits.
const (
	SubjectMatchCreated     = "pair.match.created"
	SubjectPeerDisconnected = "pair.peer.disconnected"
)

// NATSBus implements core.ClusterBus over a NATS connection.
type NATSBus struct {
	conn *nats.Conn
}

// Config mirrors messaging.NATSConfig, trimmed to what a publish-only
// client needs.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults for an infinitely-reconnecting
// publisher.
func DefaultConfig(url string) Config {
	return Config{
		URL:           url,
		Name:          "pairserver",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSBus connects to NATS and returns a ready ClusterBus. Connection
// failures are returned rather than retried in-process — the caller
// decides whether a cluster bus is required for startup to succeed (it
// never is, per §9a).
func NewNATSBus(config Config) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("bus: nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("bus: nats reconnected to %s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: nats connect: %w", err)
	}
	log.Printf("bus: connected to %s", nc.ConnectedUrl())
	return &NATSBus{conn: nc}, nil
}

// Close closes the underlying connection without draining it first.
func (b *NATSBus) Close() {
	b.conn.Close()
}

type matchCreatedEvent struct {
	RoomID string `json:"roomId"`
	UserA  string `json:"userA"`
	UserB  string `json:"userB"`
}

type peerDisconnectedEvent struct {
	UserID    string `json:"userId"`
	PartnerID string `json:"partnerId"`
}

// PublishMatchCreated implements core.ClusterBus. Publish errors are logged
// and swallowed — a cluster event is an optional observability signal, not
// something a match can fail over.
func (b *NATSBus) PublishMatchCreated(roomID, userA, userB string) {
	data, err := json.Marshal(matchCreatedEvent{RoomID: roomID, UserA: userA, UserB: userB})
	if err != nil {
		log.Printf("bus: marshal match-created: %v", err)
		return
	}
	if err := b.conn.Publish(SubjectMatchCreated, data); err != nil {
		log.Printf("bus: publish match-created: %v", err)
	}
}

// PublishPeerDisconnected implements core.ClusterBus.
func (b *NATSBus) PublishPeerDisconnected(userID, partnerID string) {
	data, err := json.Marshal(peerDisconnectedEvent{UserID: userID, PartnerID: partnerID})
	if err != nil {
		log.Printf("bus: marshal peer-disconnected: %v", err)
		return
	}
	if err := b.conn.Publish(SubjectPeerDisconnected, data); err != nil {
		log.Printf("bus: publish peer-disconnected: %v", err)
	}
}
