// Package relay implements the SignalingRelay and SessionRelay: per-pair
// forwarding of opaque negotiation blobs and typed application messages
// (§4.4, §4.5).
package relay

import "errors"

// Sentinel errors for the relay error taxonomy (§7).
var (
	ErrProtocolViolation   = errors.New("relay: protocol violation")
	ErrStateInconsistency  = errors.New("relay: state inconsistency")
	ErrCapacityExceeded    = errors.New("relay: capacity exceeded")
)

// Sender delivers a raw outbound payload to a specific user's transport
// connection. It is implemented by the Transport Adapter.
type Sender interface {
	Send(userID string, data []byte) error
}

// RateLimiter reports whether an action identified by key still has budget.
// Implemented by internal/supervisor.RateLimiter.
type RateLimiter interface {
	Allow(key string) bool
}
