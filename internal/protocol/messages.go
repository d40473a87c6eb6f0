// Package protocol defines the WebSocket message types and structures used
// for communication between the client and server. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> Server message types.
const (
	TypeStartSearch   = "start-search"
	TypeSkip          = "skip"
	TypeStopSearch    = "stop-search"
	TypeSignal        = "signal"
	TypeMatchReady    = "match-ready"
	TypeJoinChat      = "join-chat"
	TypeChatMessage   = "chat-message"
	TypeTypingStart   = "typing-start"
	TypeTypingStop    = "typing-stop"
	TypeGameInvite    = "game-invite"
	TypeGameResponse  = "game-response"
	TypeGameAction    = "game-action"
	TypeDebugState    = "debug-state"
	TypeReport        = "report"
	TypePing          = "ping"
)

// Server -> Client message types.
const (
	TypeWaitingForPeer  = "waiting-for-peer"
	TypeMatchReadyOut   = "match-ready"
	TypePeerDisconnected = "peer-disconnected"
	TypePeerSkipped     = "peer-skipped"
	TypeConnectionError = "connection-error"
	TypeSignalOut       = "signal"
	TypeChatJoined      = "chat-joined"
	TypeChatMessageOut  = "chat-message"
	TypeChatUserLeft    = "chat-user-left"
	TypeTypingStartOut  = "typing-start"
	TypeTypingStopOut   = "typing-stop"
	TypeGameInviteOut   = "game-invite"
	TypeGameResponseOut = "game-response"
	TypeGameActionOut   = "game-action"
	TypeGameStarted     = "game-started"
	TypeGameMove        = "game-move"
	TypeGameEnded       = "game-ended"
	TypeGameExpired     = "game-expired"
	TypeDebugInfo       = "debug-info"
	TypeBanned          = "banned"
	TypePong            = "pong"
)

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler. It captures the full raw bytes
// and extracts only the "type" field so that the rest of the payload can be
// decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// StartSearchMsg is sent by the client to enter the waiting queue.
type StartSearchMsg struct {
	Type string `json:"type"`
}

// SkipMsg is sent by the client to end the current match and re-enter the queue.
type SkipMsg struct {
	Type string `json:"type"`
}

// StopSearchMsg is sent by the client to leave the queue or end a match
// without re-entering the queue.
type StopSearchMsg struct {
	Type string `json:"type"`
}

// SignalMsg carries an opaque negotiation blob to be relayed to the partner.
type SignalMsg struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"roomId"`
	Description json.RawMessage `json:"description,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

// MatchReadyAckMsg acknowledges a match-ready event. It has no server effect.
type MatchReadyAckMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId"`
}

// JoinChatMsg requests to join the chat channel for a room.
type JoinChatMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ChatMessageMsg is a text message sent by the client within a room.
type ChatMessageMsg struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// TypingMsg indicates a typing-start or typing-stop event for a room.
type TypingMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// GameInviteMsg proposes a game to the partner.
type GameInviteMsg struct {
	Type     string          `json:"type"`
	Game     string          `json:"game"`
	Settings json.RawMessage `json:"settings,omitempty"`
	RoomID   string          `json:"roomId,omitempty"`
}

// GameResponseMsg accepts or declines a game invite.
type GameResponseMsg struct {
	Type     string `json:"type"`
	Game     string `json:"game"`
	Accepted bool   `json:"accepted"`
	RoomID   string `json:"roomId,omitempty"`
}

// GameActionMsg carries a move or other in-game action.
type GameActionMsg struct {
	Type   string          `json:"type"`
	Game   string          `json:"game"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
	RoomID string          `json:"roomId,omitempty"`
}

// DebugStateMsg requests a debug-info snapshot.
type DebugStateMsg struct {
	Type string `json:"type"`
}

// ReportMsg reports the current partner for abuse.
type ReportMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// WaitingForPeerMsg confirms the client has entered the waiting queue.
type WaitingForPeerMsg struct {
	Type string `json:"type"`
}

// MatchReadyMsg announces a new match.
type MatchReadyMsg struct {
	Type        string `json:"type"`
	RoomID      string `json:"roomId"`
	IsInitiator bool   `json:"isInitiator"`
	PeerID      string `json:"peerId"`
}

// PeerDisconnectedMsg informs the client its partner disconnected.
type PeerDisconnectedMsg struct {
	Type string `json:"type"`
}

// PeerSkippedMsg informs the client its partner skipped.
type PeerSkippedMsg struct {
	Type string `json:"type"`
}

// ConnectionErrorMsg communicates an error condition to the client.
type ConnectionErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServerSignalMsg relays a negotiation blob from the partner.
type ServerSignalMsg struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"roomId"`
	Description json.RawMessage `json:"description,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

// ChatJoinedMsg confirms the client has joined the room's chat channel.
type ChatJoinedMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ServerChatMessageMsg relays a chat message from the partner, or a system
// announcement when IsSystem is true.
type ServerChatMessageMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	From     string `json:"from,omitempty"`
	Message  string `json:"message"`
	IsSystem bool   `json:"isSystem,omitempty"`
	Ts       int64  `json:"ts"`
}

// ChatUserLeftMsg is sent when the partner has left the chat.
type ChatUserLeftMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ServerTypingMsg relays the partner's typing indicator.
type ServerTypingMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ServerGameInviteMsg relays a game invite from the partner.
type ServerGameInviteMsg struct {
	Type     string          `json:"type"`
	Game     string          `json:"game"`
	Settings json.RawMessage `json:"settings,omitempty"`
	RoomID   string          `json:"roomId"`
}

// ServerGameResponseMsg relays the partner's accept/decline.
type ServerGameResponseMsg struct {
	Type     string `json:"type"`
	Game     string `json:"game"`
	Accepted bool   `json:"accepted"`
	RoomID   string `json:"roomId"`
}

// ServerGameActionMsg relays a non-refereed game action verbatim.
type ServerGameActionMsg struct {
	Type   string          `json:"type"`
	Game   string          `json:"game"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
	RoomID string          `json:"roomId"`
}

// GameStartedMsg announces a refereed game has begun.
type GameStartedMsg struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId"`
	Symbol     string `json:"symbol"`
	FirstMove  bool   `json:"firstMove"`
}

// GameMoveMsg is broadcast to both players after a validated move.
type GameMoveMsg struct {
	Type        string `json:"type"`
	RoomID      string `json:"roomId"`
	Board       [9]string `json:"board"`
	CurrentTurn string `json:"currentTurn"`
}

// GameEndedMsg announces the outcome of a refereed game.
type GameEndedMsg struct {
	Type    string    `json:"type"`
	RoomID  string    `json:"roomId"`
	Board   [9]string `json:"board"`
	Winner  string    `json:"winner,omitempty"`
	IsDraw  bool      `json:"isDraw,omitempty"`
}

// GameExpiredMsg announces a game was reaped for inactivity.
type GameExpiredMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// DebugInfoMsg is the response to a debug-state request.
type DebugInfoMsg struct {
	Type          string `json:"type"`
	State         string `json:"state"`
	RoomID        string `json:"roomId,omitempty"`
	QueueSize     int    `json:"queueSize"`
	ActiveRooms   int    `json:"activeRooms"`
}

// BannedMsg informs the client it has been temporarily banned.
type BannedMsg struct {
	Type     string `json:"type"`
	Duration int    `json:"duration"`
	Reason   string `json:"reason"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeStartSearch:
		var m StartSearchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSkip:
		var m SkipMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStopSearch:
		var m StopSearchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSignal:
		var m SignalMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMatchReady:
		var m MatchReadyAckMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinChat:
		var m JoinChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStart, TypeTypingStop:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGameInvite:
		var m GameInviteMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGameResponse:
		var m GameResponseMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGameAction:
		var m GameActionMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDebugState:
		var m DebugStateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
