package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessage_Signal(t *testing.T) {
	input := []byte(`{"type":"signal","roomId":"room_1","description":{"sdp":"v=0"}}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSignal {
		t.Fatalf("expected type %q, got %q", TypeSignal, msgType)
	}

	sm, ok := msg.(SignalMsg)
	if !ok {
		t.Fatalf("expected SignalMsg, got %T", msg)
	}
	if sm.RoomID != "room_1" {
		t.Errorf("expected roomId %q, got %q", "room_1", sm.RoomID)
	}
}

func TestParseClientMessage_ChatMessage(t *testing.T) {
	input := []byte(`{"type":"chat-message","roomId":"room_1","message":"hello"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeChatMessage {
		t.Fatalf("expected type %q, got %q", TypeChatMessage, msgType)
	}

	cm, ok := msg.(ChatMessageMsg)
	if !ok {
		t.Fatalf("expected ChatMessageMsg, got %T", msg)
	}
	if cm.Message != "hello" {
		t.Errorf("expected message %q, got %q", "hello", cm.Message)
	}
}

func TestNewServerMessage_MatchReady(t *testing.T) {
	payload := MatchReadyMsg{
		RoomID:      "room_1",
		IsInitiator: true,
		PeerID:      "peer-2",
	}

	data, err := NewServerMessage(TypeMatchReadyOut, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeMatchReadyOut {
		t.Errorf("expected type %q, got %v", TypeMatchReadyOut, result["type"])
	}
	if result["roomId"] != "room_1" {
		t.Errorf("expected roomId %q, got %v", "room_1", result["roomId"])
	}
	if result["isInitiator"] != true {
		t.Errorf("expected isInitiator true, got %v", result["isInitiator"])
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

func TestRoundTrip_StartSearch(t *testing.T) {
	original := StartSearchMsg{Type: TypeStartSearch}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeStartSearch {
		t.Fatalf("expected type %q, got %q", TypeStartSearch, msgType)
	}
	if _, ok := msg.(StartSearchMsg); !ok {
		t.Fatalf("expected StartSearchMsg, got %T", msg)
	}
}

func TestRoundTrip_GameEnded(t *testing.T) {
	original := GameEndedMsg{
		RoomID: "room_1",
		Board:  [9]string{"X", "X", "X", "O", "O", "", "", "", ""},
		Winner: "X",
	}

	data, err := NewServerMessage(TypeGameEnded, original)
	if err != nil {
		t.Fatalf("failed to create server message: %v", err)
	}

	var decoded GameEndedMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Winner != "X" {
		t.Errorf("winner mismatch: expected %q, got %q", "X", decoded.Winner)
	}
	if decoded.Board != original.Board {
		t.Errorf("board mismatch: expected %v, got %v", original.Board, decoded.Board)
	}
}

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"start-search", `{"type":"start-search"}`, TypeStartSearch},
		{"skip", `{"type":"skip"}`, TypeSkip},
		{"stop-search", `{"type":"stop-search"}`, TypeStopSearch},
		{"signal", `{"type":"signal","roomId":"r1"}`, TypeSignal},
		{"match-ready", `{"type":"match-ready","matchId":"m1"}`, TypeMatchReady},
		{"join-chat", `{"type":"join-chat","roomId":"r1"}`, TypeJoinChat},
		{"chat-message", `{"type":"chat-message","roomId":"r1","message":"hi"}`, TypeChatMessage},
		{"typing-start", `{"type":"typing-start","roomId":"r1"}`, TypeTypingStart},
		{"typing-stop", `{"type":"typing-stop","roomId":"r1"}`, TypeTypingStop},
		{"game-invite", `{"type":"game-invite","game":"tictactoe"}`, TypeGameInvite},
		{"game-response", `{"type":"game-response","game":"tictactoe","accepted":true}`, TypeGameResponse},
		{"game-action", `{"type":"game-action","game":"tictactoe","action":"move"}`, TypeGameAction},
		{"debug-state", `{"type":"debug-state"}`, TypeDebugState},
		{"report", `{"type":"report","roomId":"r1","reason":"spam"}`, TypeReport},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
