package transport

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/duskline/pairserver/internal/abuse"
	"github.com/duskline/pairserver/internal/core"
	"github.com/duskline/pairserver/internal/protocol"
	"github.com/duskline/pairserver/internal/relay"
)

// Adapter translates transport events into core/relay commands and core
// events into outbound transport messages (§4.7). It owns no state beyond
// the registration of handlers on the dispatcher and the Server reference
// used to send replies — the connection id to User id mapping is the
// identity mapping described in §4.7.
type Adapter struct {
	engine    *core.Engine
	signaling *relay.SignalingRelay
	session   *relay.SessionRelay
	server    *Server
	bans      *abuse.BanStore    // optional; nil disables ban recording on report (bans are not checked at connect time)
	reports   *abuse.ReportStore // optional; nil disables report persistence
}

// NewAdapter wires a MessageDispatcher's handlers to engine/signaling/session,
// and registers onDisconnect with server. bans and reports may be nil.
func NewAdapter(engine *core.Engine, signaling *relay.SignalingRelay, session *relay.SessionRelay, server *Server, dispatcher *MessageDispatcher, bans *abuse.BanStore, reports *abuse.ReportStore) *Adapter {
	a := &Adapter{engine: engine, signaling: signaling, session: session, server: server, bans: bans, reports: reports}

	dispatcher.Register(protocol.TypeStartSearch, a.handleStartSearch)
	dispatcher.Register(protocol.TypeSkip, a.handleSkip)
	dispatcher.Register(protocol.TypeStopSearch, a.handleStopSearch)
	dispatcher.Register(protocol.TypeSignal, a.handleSignal)
	dispatcher.Register(protocol.TypeMatchReady, a.handleMatchReadyAck)
	dispatcher.Register(protocol.TypeJoinChat, a.handleJoinChat)
	dispatcher.Register(protocol.TypeChatMessage, a.handleChatMessage)
	dispatcher.Register(protocol.TypeTypingStart, a.handleTypingStart)
	dispatcher.Register(protocol.TypeTypingStop, a.handleTypingStop)
	dispatcher.Register(protocol.TypeGameInvite, a.handleGameInvite)
	dispatcher.Register(protocol.TypeGameResponse, a.handleGameResponse)
	dispatcher.Register(protocol.TypeGameAction, a.handleGameAction)
	dispatcher.Register(protocol.TypeDebugState, a.handleDebugState)
	dispatcher.Register(protocol.TypeReport, a.handleReport)

	server.SetOnDisconnect(a.handleDisconnect)
	return a
}

// OnConnect registers a newly-upgraded connection as a core user. Wired as
// the Server's onConnect callback.
func (a *Adapter) OnConnect(conn *Connection) {
	if err := a.engine.AddUser(conn.ID); err != nil {
		log.Printf("transport: adapter: AddUser failed for %s: %v", conn.ID, err)
	}
}

// OnEvent translates core.Engine lifecycle events into outbound transport
// messages. Wired as the Engine's onEvent callback at construction time;
// invoked synchronously from within the engine's mutex, so it must not
// block (§5) — sending is fire-and-forget through the Server.
func (a *Adapter) OnEvent(ev core.Event) {
	switch e := ev.(type) {
	case core.MatchCreated:
		a.send(e.UserA, protocol.TypeMatchReadyOut, protocol.MatchReadyMsg{
			RoomID: e.RoomID, IsInitiator: e.InitiatorA, PeerID: e.UserB,
		})
		a.send(e.UserB, protocol.TypeMatchReadyOut, protocol.MatchReadyMsg{
			RoomID: e.RoomID, IsInitiator: !e.InitiatorA, PeerID: e.UserA,
		})
	case core.PeerDisconnected:
		a.send(e.UserID, protocol.TypePeerDisconnected, protocol.PeerDisconnectedMsg{})
	case core.PeerSkipped:
		a.send(e.UserID, protocol.TypePeerSkipped, protocol.PeerSkippedMsg{})
	case core.WaitingForPeer:
		a.send(e.UserID, protocol.TypeWaitingForPeer, protocol.WaitingForPeerMsg{})
	}
}

// handleDisconnect tears down a user's core/relay state on transport
// disconnect (read error, heartbeat timeout, or graceful close).
func (a *Adapter) handleDisconnect(connID string) {
	if roomID, ok := a.engine.RoomIDFor(connID); ok {
		a.session.LeaveRoom(connID, roomID)
	}
	a.engine.RemoveUser(connID)
}

func (a *Adapter) send(connID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("transport: adapter: failed to build %s: %v", msgType, err)
		return
	}
	if err := a.server.SendMessage(connID, data); err != nil {
		log.Printf("transport: adapter: failed to send %s to %s: %v", msgType, connID, err)
	}
}

func (a *Adapter) handleStartSearch(conn *Connection, _ interface{}) {
	if err := a.engine.StartSearch(conn.ID); err != nil {
		log.Printf("transport: adapter: start-search failed for %s: %v", conn.ID, err)
	}
}

func (a *Adapter) handleSkip(conn *Connection, _ interface{}) {
	if err := a.engine.Skip(conn.ID); err != nil && !errors.Is(err, core.ErrNotMatched) {
		log.Printf("transport: adapter: skip failed for %s: %v", conn.ID, err)
	}
}

func (a *Adapter) handleStopSearch(conn *Connection, _ interface{}) {
	if err := a.engine.StopSearch(conn.ID); err != nil {
		log.Printf("transport: adapter: stop-search failed for %s: %v", conn.ID, err)
	}
}

func (a *Adapter) handleSignal(conn *Connection, msg interface{}) {
	m, ok := msg.(protocol.SignalMsg)
	if !ok {
		return
	}
	if err := a.signaling.Relay(conn.ID, m); err != nil {
		log.Printf("transport: adapter: signal relay failed for %s: %v", conn.ID, err)
	}
}

// handleMatchReadyAck is a client acknowledgement of match-ready; it has no
// server-side effect (§4.7).
func (a *Adapter) handleMatchReadyAck(conn *Connection, _ interface{}) {}

func (a *Adapter) handleJoinChat(conn *Connection, msg interface{}) {
	m, ok := msg.(protocol.JoinChatMsg)
	if !ok {
		return
	}
	if err := a.session.JoinChat(conn.ID, m.RoomID); err != nil {
		log.Printf("transport: adapter: join-chat failed for %s: %v", conn.ID, err)
	}
}

func (a *Adapter) handleChatMessage(conn *Connection, msg interface{}) {
	m, ok := msg.(protocol.ChatMessageMsg)
	if !ok {
		return
	}
	if err := a.session.ChatMessage(conn.ID, m.RoomID, m.Message); err != nil {
		log.Printf("transport: adapter: chat-message failed for %s: %v", conn.ID, err)
	}
}

func (a *Adapter) handleTypingStart(conn *Connection, msg interface{}) {
	m, ok := msg.(protocol.TypingMsg)
	if !ok {
		return
	}
	_ = a.session.Typing(conn.ID, m.RoomID, true)
}

func (a *Adapter) handleTypingStop(conn *Connection, msg interface{}) {
	m, ok := msg.(protocol.TypingMsg)
	if !ok {
		return
	}
	_ = a.session.Typing(conn.ID, m.RoomID, false)
}

func (a *Adapter) handleGameInvite(conn *Connection, msg interface{}) {
	m, ok := msg.(protocol.GameInviteMsg)
	if !ok {
		return
	}
	if err := a.session.GameInvite(conn.ID, m.RoomID, m.Game, m.Settings); err != nil {
		log.Printf("transport: adapter: game-invite failed for %s: %v", conn.ID, err)
	}
}

func (a *Adapter) handleGameResponse(conn *Connection, msg interface{}) {
	m, ok := msg.(protocol.GameResponseMsg)
	if !ok {
		return
	}
	if err := a.session.GameResponse(conn.ID, m.RoomID, m.Game, m.Accepted); err != nil {
		log.Printf("transport: adapter: game-response failed for %s: %v", conn.ID, err)
	}
}

func (a *Adapter) handleGameAction(conn *Connection, msg interface{}) {
	m, ok := msg.(protocol.GameActionMsg)
	if !ok {
		return
	}
	if err := a.session.GameAction(conn.ID, m.RoomID, m.Game, m.Action, m.Data); err != nil {
		log.Printf("transport: adapter: game-action failed for %s: %v", conn.ID, err)
	}
}

func (a *Adapter) handleDebugState(conn *Connection, _ interface{}) {
	view, ok := a.engine.GetUser(conn.ID)
	state := "unknown"
	roomID := ""
	if ok {
		state = view.State.String()
		if id, found := a.engine.RoomIDFor(conn.ID); found {
			roomID = id
		}
	}
	a.send(conn.ID, protocol.TypeDebugInfo, protocol.DebugInfoMsg{
		State:       state,
		RoomID:      roomID,
		QueueSize:   a.engine.QueueSize(),
		ActiveRooms: a.engine.RoomCount(),
	})
}

func (a *Adapter) handleReport(conn *Connection, msg interface{}) {
	m, ok := msg.(protocol.ReportMsg)
	if !ok {
		return
	}
	view, exists := a.engine.GetUser(conn.ID)
	if !exists || view.MatchedWith == "" {
		return
	}
	roomID, _ := a.engine.RoomIDFor(conn.ID)

	if a.reports != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := a.reports.Create(ctx, abuse.Report{
			ReporterUserID: conn.ID,
			ReportedUserID: view.MatchedWith,
			RoomID:         roomID,
			Reason:         m.Reason,
		})
		cancel()
		if err != nil {
			log.Printf("transport: adapter: report persistence failed from=%s against=%s: %v", conn.ID, view.MatchedWith, err)
		}
	}

	if a.bans == nil {
		log.Printf("transport: adapter: report from=%s against=%s reason=%q (no ban store configured)", conn.ID, view.MatchedWith, m.Reason)
		return
	}
	// Reports key the ban escalation by the reported party's own connection
	// id, not the reporter's — there is no authenticated identity, so the
	// "fingerprint" is simply the victim-of-the-ban's current opaque id.
	a.bans.RecordReport(view.MatchedWith, m.Reason)
}
