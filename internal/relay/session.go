package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/duskline/pairserver/internal/core"
	"github.com/duskline/pairserver/internal/protocol"
)

// ContentFilter screens outgoing chat text for abuse (§4.5a). Implemented by
// internal/abuse.Filter; may be nil to disable screening.
type ContentFilter interface {
	Check(text string) (blocked bool, reason string)
}

// SessionRelay forwards chat and game messages scoped to a room (§4.5),
// joining participants to a room-scoped chat channel and refereeing
// tic-tac-toe via GameReferee. All other games are forwarded verbatim.
type SessionRelay struct {
	engine  *core.Engine
	sender  Sender
	limiter RateLimiter
	filter  ContentFilter
	referee *GameReferee

	mu     sync.Mutex
	joined map[string]map[string]bool // roomID -> set of joined userIDs
}

// NewSessionRelay constructs a SessionRelay. filter and limiter may be nil.
func NewSessionRelay(engine *core.Engine, sender Sender, limiter RateLimiter, filter ContentFilter) *SessionRelay {
	return &SessionRelay{
		engine:  engine,
		sender:  sender,
		limiter: limiter,
		filter:  filter,
		referee: NewGameReferee(),
		joined:  make(map[string]map[string]bool),
	}
}

// partnerOf checks the caller is a live participant of roomID and returns
// the other participant id.
func (r *SessionRelay) partnerOf(userID, roomID string) (string, error) {
	a, b, ok := r.engine.RoomParticipants(roomID)
	if !ok {
		return "", fmt.Errorf("session %s: %w: unknown room %s", userID, ErrStateInconsistency, roomID)
	}
	var partner string
	switch userID {
	case a:
		partner = b
	case b:
		partner = a
	default:
		return "", fmt.Errorf("session %s: %w: not a participant of %s", userID, ErrStateInconsistency, roomID)
	}

	snap := r.engine.Snapshot()
	if !snap.CheckPair(userID, partner) {
		return "", fmt.Errorf("session %s<->%s: %w", userID, partner, ErrStateInconsistency)
	}
	return partner, nil
}

func (r *SessionRelay) send(userID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("relay: session: failed to build %s: %v", msgType, err)
		return
	}
	if err := r.sender.Send(userID, data); err != nil {
		log.Printf("relay: session: failed to send %s to %s: %v", msgType, userID, err)
	}
}

// JoinChat implements room-scoped chat join, idempotent per (user, room). On
// the second participant joining, both receive a system announcement.
func (r *SessionRelay) JoinChat(userID, roomID string) error {
	if _, err := r.partnerOf(userID, roomID); err != nil {
		return err
	}

	r.mu.Lock()
	set, ok := r.joined[roomID]
	if !ok {
		set = make(map[string]bool)
		r.joined[roomID] = set
	}
	alreadyJoined := set[userID]
	set[userID] = true
	bothJoined := len(set) == 2
	r.mu.Unlock()

	if alreadyJoined {
		return nil
	}

	r.send(userID, protocol.TypeChatJoined, protocol.ChatJoinedMsg{RoomID: roomID})

	if bothJoined {
		announcement := protocol.ServerChatMessageMsg{
			RoomID:   roomID,
			Message:  "You're connected. Say hello!",
			IsSystem: true,
			Ts:       time.Now().UnixMilli(),
		}
		a, b, _ := r.engine.RoomParticipants(roomID)
		r.send(a, protocol.TypeChatMessageOut, announcement)
		r.send(b, protocol.TypeChatMessageOut, announcement)
	}
	return nil
}

// ChatMessage validates, filters, and relays a chat message (§4.5).
func (r *SessionRelay) ChatMessage(fromID, roomID, text string) error {
	partner, err := r.partnerOf(fromID, roomID)
	if err != nil {
		return err
	}
	if err := ValidateMessage(text); err != nil {
		r.send(fromID, protocol.TypeConnectionError, protocol.ConnectionErrorMsg{Message: "invalid message"})
		return err
	}
	if r.limiter != nil && !r.limiter.Allow("chat:"+fromID) {
		r.send(fromID, protocol.TypeConnectionError, protocol.ConnectionErrorMsg{Message: "rate limit exceeded"})
		return fmt.Errorf("session %s: %w", fromID, ErrCapacityExceeded)
	}
	if r.filter != nil {
		if blocked, reason := r.filter.Check(text); blocked {
			log.Printf("relay: session: blocked message from=%s room=%s reason=%s", fromID, roomID, reason)
			r.send(fromID, protocol.TypeConnectionError, protocol.ConnectionErrorMsg{Message: "message blocked: " + reason})
			return fmt.Errorf("session %s: %w: %s", fromID, ErrProtocolViolation, reason)
		}
	}

	r.engine.TouchRoom(roomID)
	r.send(partner, protocol.TypeChatMessageOut, protocol.ServerChatMessageMsg{
		RoomID:  roomID,
		From:    fromID,
		Message: text,
		Ts:      time.Now().UnixMilli(),
	})
	return nil
}

// Typing relays a typing indicator to the partner.
func (r *SessionRelay) Typing(fromID, roomID string, start bool) error {
	partner, err := r.partnerOf(fromID, roomID)
	if err != nil {
		return err
	}
	msgType := protocol.TypeTypingStopOut
	if start {
		msgType = protocol.TypeTypingStartOut
	}
	r.send(partner, msgType, protocol.ServerTypingMsg{RoomID: roomID})
	return nil
}

// LeaveRoom clears chat-join bookkeeping, notifies the remaining
// participant with chat-user-left (§4.5), and ends any active referee game;
// called by the Transport Adapter on disconnect and by the Supervisor's
// abandoned-room sweep.
func (r *SessionRelay) LeaveRoom(userID, roomID string) {
	r.mu.Lock()
	set, ok := r.joined[roomID]
	if ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(r.joined, roomID)
		}
	}
	r.mu.Unlock()

	if a, b, ok := r.engine.RoomParticipants(roomID); ok {
		partner := a
		if userID == a {
			partner = b
		}
		if partner != "" && partner != userID {
			r.send(partner, protocol.TypeChatUserLeft, protocol.ChatUserLeftMsg{RoomID: roomID})
		}
	}

	if game := r.referee.End(roomID); game != nil {
		log.Printf("relay: ended tic-tac-toe in room=%s due to %s leaving", roomID, userID)
	}
}

// GameInvite forwards a game proposal to the partner (§4.5).
func (r *SessionRelay) GameInvite(fromID, roomID, game string, settings json.RawMessage) error {
	partner, err := r.partnerOf(fromID, roomID)
	if err != nil {
		return err
	}
	r.send(partner, protocol.TypeGameInviteOut, protocol.ServerGameInviteMsg{Game: game, Settings: settings, RoomID: roomID})
	return nil
}

// GameResponse forwards an accept/decline to the partner, and for
// tic-tac-toe starts the referee on acceptance.
func (r *SessionRelay) GameResponse(fromID, roomID, game string, accepted bool) error {
	partner, err := r.partnerOf(fromID, roomID)
	if err != nil {
		return err
	}
	r.send(partner, protocol.TypeGameResponseOut, protocol.ServerGameResponseMsg{Game: game, Accepted: accepted, RoomID: roomID})

	if accepted && game == "tictactoe" {
		gameState := r.referee.Start(roomID, fromID, partner)
		for _, uid := range [2]string{fromID, partner} {
			symbol, firstMove := gameState.symbolFor(uid)
			r.send(uid, protocol.TypeGameStarted, protocol.GameStartedMsg{
				RoomID:    roomID,
				Symbol:    symbol,
				FirstMove: firstMove,
			})
		}
	}
	return nil
}

// gameActionData is the expected payload shape for a tic-tac-toe move.
type gameActionData struct {
	Position int `json:"position"`
}

// GameAction forwards a game action. For tic-tac-toe "move" actions it is
// refereed (§4.5); all other games and actions are forwarded verbatim.
func (r *SessionRelay) GameAction(fromID, roomID, game, action string, data json.RawMessage) error {
	partner, err := r.partnerOf(fromID, roomID)
	if err != nil {
		return err
	}

	if game == "tictactoe" && action == "move" {
		var move gameActionData
		if err := json.Unmarshal(data, &move); err != nil {
			r.send(fromID, protocol.TypeConnectionError, protocol.ConnectionErrorMsg{Message: "invalid move"})
			return fmt.Errorf("session %s: %w: invalid move payload", fromID, ErrProtocolViolation)
		}
		gameState := r.referee.Move(roomID, fromID, move.Position)
		if gameState == nil {
			// Invalid or out-of-turn move: silently ignored per §7, the
			// sender is not disconnected.
			return nil
		}
		r.engine.TouchRoom(roomID)

		if gameState.status == "completed" {
			ended := protocol.GameEndedMsg{RoomID: roomID, Board: gameState.board, Winner: gameState.winner, IsDraw: gameState.isDraw}
			r.send(fromID, protocol.TypeGameEnded, ended)
			r.send(partner, protocol.TypeGameEnded, ended)
			r.referee.End(roomID)
			return nil
		}

		moveMsg := protocol.GameMoveMsg{RoomID: roomID, Board: gameState.board, CurrentTurn: gameState.currentTurn}
		r.send(fromID, protocol.TypeGameMove, moveMsg)
		r.send(partner, protocol.TypeGameMove, moveMsg)
		return nil
	}

	r.send(partner, protocol.TypeGameActionOut, protocol.ServerGameActionMsg{
		Game:   game,
		Action: action,
		Data:   data,
		RoomID: roomID,
	})
	return nil
}

// ReapIdleGames drops tic-tac-toe games inactive past cutoff and notifies
// both participants (§4.6 "idle game reap").
func (r *SessionRelay) ReapIdleGames(cutoff time.Time) {
	for _, roomID := range r.referee.ReapIdle(cutoff) {
		a, b, ok := r.engine.RoomParticipants(roomID)
		if !ok {
			continue
		}
		expired := protocol.GameExpiredMsg{RoomID: roomID}
		r.send(a, protocol.TypeGameExpired, expired)
		r.send(b, protocol.TypeGameExpired, expired)
	}
}
