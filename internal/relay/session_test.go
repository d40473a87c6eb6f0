package relay

import (
	"encoding/json"
	"testing"

	"github.com/duskline/pairserver/internal/protocol"
)

func newTestSessionRelay(t *testing.T) (*SessionRelay, *fakeSender, string, string, string) {
	t.Helper()
	e, roomID, alice, bob := newMatchedPair(t)
	sender := newFakeSender()
	r := NewSessionRelay(e, sender, alwaysAllow{}, nil)
	return r, sender, roomID, alice, bob
}

func TestSessionRelayJoinChatAnnouncesOnSecondJoin(t *testing.T) {
	r, sender, roomID, alice, bob := newTestSessionRelay(t)

	if err := r.JoinChat(alice, roomID); err != nil {
		t.Fatalf("JoinChat(alice): %v", err)
	}
	if msg := sender.last(alice); msg == nil || msg["type"] != protocol.TypeChatJoined {
		t.Fatalf("expected alice to get chat-joined, got %v", msg)
	}
	if sender.count(bob) != 0 {
		t.Fatal("bob should not be notified until both have joined")
	}

	if err := r.JoinChat(bob, roomID); err != nil {
		t.Fatalf("JoinChat(bob): %v", err)
	}
	aliceMsg := sender.last(alice)
	bobMsg := sender.last(bob)
	if aliceMsg["type"] != protocol.TypeChatMessageOut || bobMsg["type"] != protocol.TypeChatMessageOut {
		t.Fatalf("expected both to receive the system announcement, got alice=%v bob=%v", aliceMsg, bobMsg)
	}
}

func TestSessionRelayJoinChatIdempotent(t *testing.T) {
	r, sender, roomID, alice, _ := newTestSessionRelay(t)

	if err := r.JoinChat(alice, roomID); err != nil {
		t.Fatalf("JoinChat: %v", err)
	}
	if err := r.JoinChat(alice, roomID); err != nil {
		t.Fatalf("second JoinChat: %v", err)
	}
	if sender.count(alice) != 1 {
		t.Fatalf("expected exactly one chat-joined message, got %d", sender.count(alice))
	}
}

func TestSessionRelayChatMessageForwardsToPartner(t *testing.T) {
	r, sender, roomID, alice, bob := newTestSessionRelay(t)

	if err := r.ChatMessage(alice, roomID, "hello there"); err != nil {
		t.Fatalf("ChatMessage: %v", err)
	}
	msg := sender.last(bob)
	if msg == nil || msg["type"] != protocol.TypeChatMessageOut {
		t.Fatalf("expected bob to receive the chat message, got %v", msg)
	}
	if msg["message"] != "hello there" {
		t.Errorf("message = %v, want %q", msg["message"], "hello there")
	}
	if sender.count(alice) != 0 {
		t.Error("sender should not receive its own chat message back")
	}
}

func TestSessionRelayChatMessageBlockedByFilter(t *testing.T) {
	e, roomID, alice, _ := newMatchedPair(t)
	sender := newFakeSender()
	r := NewSessionRelay(e, sender, alwaysAllow{}, blockingFilter{})

	if err := r.ChatMessage(alice, roomID, "anything"); err == nil {
		t.Fatal("expected the content filter to reject the message")
	}
	msg := sender.last(alice)
	if msg == nil || msg["type"] != protocol.TypeConnectionError {
		t.Fatalf("expected a connection-error reply to the sender, got %v", msg)
	}
}

func TestSessionRelayChatMessageRejectsStrangers(t *testing.T) {
	r, _, roomID, _, _ := newTestSessionRelay(t)
	if err := r.ChatMessage("mallory", roomID, "hi"); err == nil {
		t.Fatal("expected an error for a non-participant")
	}
}

func TestSessionRelayTypingForwardsToPartner(t *testing.T) {
	r, sender, roomID, alice, bob := newTestSessionRelay(t)

	if err := r.Typing(alice, roomID, true); err != nil {
		t.Fatalf("Typing: %v", err)
	}
	if msg := sender.last(bob); msg == nil || msg["type"] != protocol.TypeTypingStartOut {
		t.Fatalf("expected bob to get typing-start, got %v", msg)
	}

	if err := r.Typing(alice, roomID, false); err != nil {
		t.Fatalf("Typing(stop): %v", err)
	}
	if msg := sender.last(bob); msg == nil || msg["type"] != protocol.TypeTypingStopOut {
		t.Fatalf("expected bob to get typing-stop, got %v", msg)
	}
}

func TestSessionRelayGameInviteAndResponseStartsReferee(t *testing.T) {
	r, sender, roomID, alice, bob := newTestSessionRelay(t)

	if err := r.GameInvite(alice, roomID, "tictactoe", nil); err != nil {
		t.Fatalf("GameInvite: %v", err)
	}
	if msg := sender.last(bob); msg == nil || msg["type"] != protocol.TypeGameInviteOut {
		t.Fatalf("expected bob to get the invite, got %v", msg)
	}

	if err := r.GameResponse(bob, roomID, "tictactoe", true); err != nil {
		t.Fatalf("GameResponse: %v", err)
	}
	aliceStart := sender.last(alice)
	if aliceStart == nil || aliceStart["type"] != protocol.TypeGameStarted {
		t.Fatalf("expected alice to get game-started, got %v", aliceStart)
	}
}

func TestSessionRelayGameActionMoveAndWin(t *testing.T) {
	r, sender, roomID, alice, bob := newTestSessionRelay(t)
	r.GameResponse(bob, roomID, "tictactoe", false) // no-op, no active game yet

	started := r.referee.Start(roomID, alice, bob)
	x, o := alice, bob
	if started.symbols[bob] == "X" {
		x, o = bob, alice
	}

	moves := []struct {
		user string
		pos  int
	}{{x, 0}, {o, 3}, {x, 1}, {o, 4}, {x, 2}}

	for i, m := range moves {
		data, _ := json.Marshal(gameActionData{Position: m.pos})
		if err := r.GameAction(m.user, roomID, "tictactoe", "move", data); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
	}

	msg := sender.last(x)
	if msg == nil || msg["type"] != protocol.TypeGameEnded {
		t.Fatalf("expected a game-ended message, got %v", msg)
	}
	if msg["winner"] != "X" {
		t.Errorf("winner = %v, want X", msg["winner"])
	}
}

func TestSessionRelayGameActionForwardsOtherGamesVerbatim(t *testing.T) {
	r, sender, roomID, alice, bob := newTestSessionRelay(t)
	data := json.RawMessage(`{"x":1,"y":2}`)

	if err := r.GameAction(alice, roomID, "connect4", "drop", data); err != nil {
		t.Fatalf("GameAction: %v", err)
	}
	msg := sender.last(bob)
	if msg == nil || msg["type"] != protocol.TypeGameActionOut {
		t.Fatalf("expected bob to get a forwarded game action, got %v", msg)
	}
}

func TestSessionRelayLeaveRoomEndsGame(t *testing.T) {
	r, _, roomID, alice, bob := newTestSessionRelay(t)
	r.referee.Start(roomID, alice, bob)

	r.LeaveRoom(alice, roomID)

	if r.referee.End(roomID) != nil {
		t.Fatal("expected LeaveRoom to have already ended the referee game")
	}
}

func TestSessionRelayLeaveRoomNotifiesPartner(t *testing.T) {
	r, sender, roomID, alice, bob := newTestSessionRelay(t)

	r.LeaveRoom(alice, roomID)

	msg := sender.last(bob)
	if msg == nil || msg["type"] != protocol.TypeChatUserLeft {
		t.Fatalf("expected bob to receive chat-user-left, got %v", msg)
	}
	if sender.count(alice) != 0 {
		t.Error("the leaving user should not receive its own chat-user-left")
	}
}

// blockingFilter always blocks, for testing the content-filter rejection path.
type blockingFilter struct{}

func (blockingFilter) Check(string) (bool, string) { return true, "test-block" }
