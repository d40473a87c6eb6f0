package relay

import (
	"fmt"
	"log"

	"github.com/duskline/pairserver/internal/core"
	"github.com/duskline/pairserver/internal/protocol"
)

// SignalingRelay forwards opaque negotiation blobs between matched peers
// (§4.4). It never parses the blob contents.
type SignalingRelay struct {
	engine  *core.Engine
	sender  Sender
	limiter RateLimiter
}

// NewSignalingRelay constructs a SignalingRelay. limiter may be nil, in
// which case signaling is never rate-limited.
func NewSignalingRelay(engine *core.Engine, sender Sender, limiter RateLimiter) *SignalingRelay {
	return &SignalingRelay{engine: engine, sender: sender, limiter: limiter}
}

// Relay implements the §4.4 contract. Every failure emits connection-error
// to the sender. A sender that is not matched is put back to waiting; an
// asymmetric pair also gets connection-error sent to the partner, and both
// are put back to waiting via the engine. A missing roomId or an exhausted
// rate limit only sends the error and leaves both users' state unchanged.
func (r *SignalingRelay) Relay(fromID string, msg protocol.SignalMsg) error {
	if msg.RoomID == "" {
		r.sendError(fromID, "missing roomId")
		return fmt.Errorf("signaling %s: %w", fromID, ErrProtocolViolation)
	}

	snap := r.engine.Snapshot()
	from, ok := snap.Lookup(fromID)
	if !ok || from.State != core.StateMatched {
		r.sendError(fromID, "not currently matched")
		r.resetToWaiting(fromID)
		return fmt.Errorf("signaling %s: %w", fromID, ErrStateInconsistency)
	}

	partnerID := from.MatchedWith
	if !snap.CheckPair(fromID, partnerID) {
		log.Printf("relay: signaling asymmetry from=%s partner=%s", fromID, partnerID)
		r.sendError(fromID, "partner is no longer connected")
		r.sendError(partnerID, "partner is no longer connected")
		r.resetToWaiting(fromID)
		r.resetToWaiting(partnerID)
		return fmt.Errorf("signaling %s<->%s: %w", fromID, partnerID, ErrStateInconsistency)
	}

	if r.limiter != nil && !r.limiter.Allow("signal:"+fromID) {
		r.sendError(fromID, "rate limit exceeded")
		return fmt.Errorf("signaling %s: %w", fromID, ErrCapacityExceeded)
	}

	r.engine.TouchRoom(msg.RoomID)

	out := protocol.ServerSignalMsg{
		RoomID:      msg.RoomID,
		Description: msg.Description,
		Candidate:   msg.Candidate,
	}
	data, err := protocol.NewServerMessage(protocol.TypeSignalOut, out)
	if err != nil {
		return fmt.Errorf("signaling: marshal: %w", err)
	}
	return r.sender.Send(partnerID, data)
}

func (r *SignalingRelay) resetToWaiting(userID string) {
	if _, ok := r.engine.GetUser(userID); !ok {
		return
	}
	_ = r.engine.StartSearch(userID)
}

func (r *SignalingRelay) sendError(userID, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeConnectionError, protocol.ConnectionErrorMsg{Message: message})
	if err != nil {
		log.Printf("relay: failed to build connection-error: %v", err)
		return
	}
	if err := r.sender.Send(userID, data); err != nil {
		log.Printf("relay: failed to send connection-error to %s: %v", userID, err)
	}
}
