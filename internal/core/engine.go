package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the engine's error taxonomy (§7 "State inconsistency"
// / caller-misuse class). Transport/relay callers use errors.Is to decide
// how to respond to the client.
var (
	ErrUnknownUser = errors.New("core: unknown user")
	ErrNotMatched  = errors.New("core: user is not matched")
)

// EngineConfig holds the matchmaking timing constants from SPEC_FULL.md §6.3.
type EngineConfig struct {
	SkipCooldown time.Duration // §4.3.1, default 60s
	IdleAgeOff   time.Duration // age off previousMatches after this much inactivity, default 30s
}

// DefaultEngineConfig returns the spec's default timing constants.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SkipCooldown: 60 * time.Second,
		IdleAgeOff:   30 * time.Second,
	}
}

// Room is a live pairing's transport-room bookkeeping (§3.1). Membership
// itself is implied by the two participants' MatchedWith fields; Room only
// tracks activity for the abandoned-room sweep (§4.6).
type Room struct {
	ID              string
	ParticipantA    string
	ParticipantB    string
	CreatedAt       time.Time
	LastActivityAt  time.Time
}

// ClusterBus is the optional horizontal-scaling hook (§9a). NoopBus is the
// default; an implementation backed by NATS may be substituted when
// NATS_URL is configured. The engine only ever publishes through it — it
// never consumes cluster events back into its own state.
type ClusterBus interface {
	PublishMatchCreated(roomID, userA, userB string)
	PublishPeerDisconnected(userID, partnerID string)
}

// NoopBus is the default ClusterBus: it discards every event.
type NoopBus struct{}

func (NoopBus) PublishMatchCreated(string, string, string) {}
func (NoopBus) PublishPeerDisconnected(string, string)     {}

// Engine owns UserRegistry, WaitingQueue, and the room index behind a single
// mutex, serializing every mutating matchmaking operation as required by
// SPEC_FULL.md §5. Relay fast-path reads go through Snapshot() instead of
// this mutex.
type Engine struct {
	cfg EngineConfig
	bus ClusterBus

	mu       sync.Mutex
	users    map[string]*User
	queue    *WaitingQueue
	rooms    map[string]*Room
	roomSeq  uint64

	onEvent func(Event)

	snapshot atomic.Pointer[EngineSnapshot]
}

// NewEngine constructs an Engine. onEvent is invoked synchronously from
// within the mutating call that produced the event — callers must not block
// for long inside it (the Transport Adapter just marshals and sends).
func NewEngine(cfg EngineConfig, bus ClusterBus, onEvent func(Event)) *Engine {
	if bus == nil {
		bus = NoopBus{}
	}
	e := &Engine{
		cfg:     cfg,
		bus:     bus,
		users:   make(map[string]*User),
		queue:   newWaitingQueue(),
		rooms:   make(map[string]*Room),
		onEvent: onEvent,
	}
	e.publishSnapshot()
	return e
}

func (e *Engine) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

// Snapshot returns the current lock-free read snapshot for the relay fast
// path (§5).
func (e *Engine) Snapshot() *EngineSnapshot {
	return e.snapshot.Load()
}

// publishSnapshot must be called while holding e.mu; it copies the minimal
// per-user view and swaps it in atomically.
func (e *Engine) publishSnapshot() {
	users := make(map[string]UserSnapshot, len(e.users))
	for id, u := range e.users {
		users[id] = UserSnapshot{State: u.State, MatchedWith: u.MatchedWith}
	}
	e.snapshot.Store(&EngineSnapshot{users: users})
}

// AddUser registers a newly-connected user in StateIdle (§4.1).
func (e *Engine) AddUser(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.users[id]; ok {
		return fmt.Errorf("core: user %q already registered", id)
	}
	e.users[id] = newUser(id, time.Now())
	e.publishSnapshot()
	return nil
}

// RemoveUser destroys a user on transport disconnect. If the user was
// matched, the partner is returned to waiting and a PeerDisconnected event
// is emitted for it; if the user was waiting, it is removed from the queue.
func (e *Engine) RemoveUser(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, ok := e.users[id]
	if !ok {
		return
	}
	delete(e.users, id)
	e.queue.removeByID(id)

	if u.State == StateMatched && u.MatchedWith != "" {
		e.disconnectPartner(u.MatchedWith, id)
	}
	e.publishSnapshot()
	e.runQueueProcessing()
}

// disconnectPartner moves partnerID back to waiting and emits
// PeerDisconnected. Must be called while holding e.mu.
func (e *Engine) disconnectPartner(partnerID, leavingID string) {
	partner, ok := e.users[partnerID]
	if !ok {
		return
	}
	partner.MatchedWith = ""
	e.setState(partner, StateWaiting)
	e.bus.PublishPeerDisconnected(partnerID, leavingID)
	e.emit(PeerDisconnected{UserID: partnerID, PartnerID: leavingID})
}

// setState applies a state transition's side effects (§4.1). Must be called
// while holding e.mu.
func (e *Engine) setState(u *User, newState State) {
	if u.State == StateWaiting && newState != StateWaiting {
		e.queue.removeByID(u.ID)
	}
	u.State = newState
	if newState == StateWaiting {
		u.JoinedAt = time.Now()
		e.queue.pushTail(u.ID)
	}
	u.lastActiveAt = time.Now()
}

// StartSearch implements §4.3.7: promotes the user to waiting, computing the
// reconnection shield, and triggers queue processing.
func (e *Engine) StartSearch(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, ok := e.users[id]
	if !ok {
		return fmt.Errorf("core: start-search %q: %w", id, ErrUnknownUser)
	}

	if u.State == StateMatched {
		e.skipLocked(u)
	}

	e.ageOffPreviousMatches(u)
	e.computeBlockedUsers(u)

	e.setState(u, StateWaiting)
	e.publishSnapshot()
	e.runQueueProcessing()
	return nil
}

// ageOffPreviousMatches retains only the most recent entries once the user
// has been inactive past the configured window (§4.3.7).
func (e *Engine) ageOffPreviousMatches(u *User) {
	if time.Since(u.lastActiveAt) <= e.cfg.IdleAgeOff {
		return
	}
	if len(u.previousMatches) > maxPreviousMatches {
		u.previousMatches = u.previousMatches[len(u.previousMatches)-maxPreviousMatches:]
	}
}

// computeBlockedUsers implements the reconnection shield (§4.3.7): scans all
// currently matched users and blocks this user from any of them (or their
// partners) that appear in its previousMatches.
//
// TODO: blockedUsers is never cleared for the lifetime of the connection;
// SPEC_FULL.md §9 leaves the expiry policy as an open question, so this
// accumulates for long-lived connections by design.
func (e *Engine) computeBlockedUsers(u *User) {
	for otherID, other := range e.users {
		if otherID == u.ID || other.State != StateMatched {
			continue
		}
		if u.hasPreviousMatch(otherID) {
			u.blockedUsers[otherID] = struct{}{}
		}
		if other.MatchedWith != "" && u.hasPreviousMatch(other.MatchedWith) {
			u.blockedUsers[otherID] = struct{}{}
		}
	}
}

// Skip implements §4.3.5.
func (e *Engine) Skip(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, ok := e.users[id]
	if !ok {
		return fmt.Errorf("core: skip %q: %w", id, ErrUnknownUser)
	}
	if u.State != StateMatched {
		return fmt.Errorf("core: skip %q: %w", id, ErrNotMatched)
	}
	e.skipLocked(u)
	e.setState(u, StateWaiting)
	e.publishSnapshot()
	e.runQueueProcessing()
	return nil
}

// skipLocked tears down the current match for u, recording the cooldown and
// notifying the partner. Must be called while holding e.mu.
func (e *Engine) skipLocked(u *User) {
	partnerID := u.MatchedWith
	if partnerID == "" {
		return
	}
	now := time.Now()
	u.recentSkips[partnerID] = now
	u.MatchedWith = ""
	e.closeRoomFor(u.ID, partnerID)

	if partner, ok := e.users[partnerID]; ok {
		partner.recentSkips[u.ID] = now
		partner.MatchedWith = ""
		e.setState(partner, StateWaiting)
		e.emit(PeerSkipped{UserID: partnerID, PartnerID: u.ID})
	}
}

// StopSearch implements §4.3.6: returns the user to idle without requeueing,
// and notifies any partner as a disconnect (not a skip).
func (e *Engine) StopSearch(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, ok := e.users[id]
	if !ok {
		return fmt.Errorf("core: stop-search %q: %w", id, ErrUnknownUser)
	}

	if u.State == StateMatched {
		partnerID := u.MatchedWith
		u.MatchedWith = ""
		e.closeRoomFor(u.ID, partnerID)
		e.disconnectPartner(partnerID, u.ID)
	}
	e.setState(u, StateIdle)
	e.publishSnapshot()
	e.runQueueProcessing()
	return nil
}

func (e *Engine) closeRoomFor(a, b string) {
	for id, r := range e.rooms {
		if (r.ParticipantA == a && r.ParticipantB == b) || (r.ParticipantA == b && r.ParticipantB == a) {
			delete(e.rooms, id)
			return
		}
	}
}

// TouchRoom updates a room's last-activity timestamp; called by the relay
// layer on every signaling/session message so the Supervisor's sweep (§4.6)
// doesn't reap active rooms.
func (e *Engine) TouchRoom(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rooms[roomID]; ok {
		r.LastActivityAt = time.Now()
	}
}

// AbandonedRooms returns rooms with fewer than two still-matched participants
// or with no activity since before cutoff, for the Supervisor's sweep.
func (e *Engine) AbandonedRooms(cutoff time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stale []string
	for id, r := range e.rooms {
		aOK := e.isLiveParticipant(r.ParticipantA, r.ParticipantB)
		bOK := e.isLiveParticipant(r.ParticipantB, r.ParticipantA)
		if !aOK || !bOK || r.LastActivityAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

func (e *Engine) isLiveParticipant(id, partner string) bool {
	u, ok := e.users[id]
	return ok && u.State == StateMatched && u.MatchedWith == partner
}

// RoomCensus classifies every tracked room for the Supervisor's periodic
// stats emission (§4.6): "paired" rooms have both participants still
// matched to each other; "user-self-rooms" have exactly one live
// participant but are still within the sweep grace period (cutoff);
// "abandoned" rooms have fewer than two live participants and have sat
// idle since before cutoff; "other" covers the rare room with zero live
// participants that hasn't aged past cutoff yet.
func (e *Engine) RoomCensus(cutoff time.Time) map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	census := map[string]int{"paired": 0, "user-self-rooms": 0, "abandoned": 0, "other": 0}
	for _, r := range e.rooms {
		aOK := e.isLiveParticipant(r.ParticipantA, r.ParticipantB)
		bOK := e.isLiveParticipant(r.ParticipantB, r.ParticipantA)

		switch {
		case aOK && bOK:
			census["paired"]++
		case r.LastActivityAt.Before(cutoff):
			census["abandoned"]++
		case aOK != bOK:
			census["user-self-rooms"]++
		default:
			census["other"]++
		}
	}
	return census
}

// RoomIDFor returns the room id a user currently participates in, or false
// if the user is not in any tracked room. Used by disconnect/leave paths,
// which are not on the relay hot path, so a linear scan is acceptable.
func (e *Engine) RoomIDFor(userID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, r := range e.rooms {
		if r.ParticipantA == userID || r.ParticipantB == userID {
			return id, true
		}
	}
	return "", false
}

// RoomParticipants returns the two participant ids for roomID, or false if
// the room is unknown.
func (e *Engine) RoomParticipants(roomID string) (a, b string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, found := e.rooms[roomID]
	if !found {
		return "", "", false
	}
	return r.ParticipantA, r.ParticipantB, true
}

// DropRoom force-removes a room record (used by the Supervisor after a sweep
// decision); it does not itself change any user's state.
func (e *Engine) DropRoom(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rooms, roomID)
}

// RoomCount reports the number of tracked rooms, for stats emission (§4.6).
func (e *Engine) RoomCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rooms)
}

// QueueSize reports the number of waiting users, for stats emission (§4.6).
func (e *Engine) QueueSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.size()
}

// ---------------------------------------------------------------------------
// Matchmaker: eligibility, selection, atomic match creation (§4.3)
// ---------------------------------------------------------------------------

// eligible implements §4.3.1. Must be called while holding e.mu.
func (e *Engine) eligible(a, b *User) bool {
	if a.State != StateWaiting || b.State != StateWaiting {
		return false
	}
	if t, ok := a.recentSkips[b.ID]; ok && time.Since(t) < e.cfg.SkipCooldown {
		return false
	}
	if t, ok := b.recentSkips[a.ID]; ok && time.Since(t) < e.cfg.SkipCooldown {
		return false
	}
	if a.isBlocked(b.ID) || b.isBlocked(a.ID) {
		return false
	}
	// Interception guard: no third user may already be matched with either.
	for _, c := range e.users {
		if c.ID == a.ID || c.ID == b.ID {
			continue
		}
		if c.State == StateMatched && (c.MatchedWith == a.ID || c.MatchedWith == b.ID) {
			return false
		}
	}
	return true
}

// selectCandidate implements the §4.3.2 priority: never-matched-either-way,
// then novel-to-a, then oldest-waiting eligible fallback. Must be called
// while holding e.mu.
func (e *Engine) selectCandidate(a *User, ignoreNovelty bool) *User {
	queued := e.queue.snapshot()

	var tier1, tier2, tier3 []*User
	for _, id := range queued {
		if id == a.ID {
			continue
		}
		b, ok := e.users[id]
		if !ok || !e.eligible(a, b) {
			continue
		}
		switch {
		case !ignoreNovelty && !a.hasPreviousMatch(b.ID) && !b.hasPreviousMatch(a.ID):
			tier1 = append(tier1, b)
		case !ignoreNovelty && !a.hasPreviousMatch(b.ID):
			tier2 = append(tier2, b)
		default:
			tier3 = append(tier3, b)
		}
	}

	byOldest := func(us []*User) *User {
		if len(us) == 0 {
			return nil
		}
		sort.Slice(us, func(i, j int) bool { return us[i].JoinedAt.Before(us[j].JoinedAt) })
		return us[0]
	}

	if ignoreNovelty {
		return byOldest(tier3)
	}
	if c := byOldest(tier1); c != nil {
		return c
	}
	if c := byOldest(tier2); c != nil {
		return c
	}
	return byOldest(tier3)
}

// createMatch implements §4.3.3's seven atomic steps. Must be called while
// holding e.mu.
func (e *Engine) createMatch(a, b *User) {
	if !e.eligible(a, b) {
		return
	}

	roomID := e.nextRoomID()

	initiatorIsA := a.JoinedAt.Before(b.JoinedAt) || (a.JoinedAt.Equal(b.JoinedAt) && a.ID < b.ID)

	a.MatchedWith = b.ID
	b.MatchedWith = a.ID
	a.recordMatch(b.ID)
	b.recordMatch(a.ID)

	e.setState(a, StateMatched)
	e.setState(b, StateMatched)

	now := time.Now()
	e.rooms[roomID] = &Room{
		ID:             roomID,
		ParticipantA:   a.ID,
		ParticipantB:   b.ID,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	e.bus.PublishMatchCreated(roomID, a.ID, b.ID)
	e.emit(MatchCreated{RoomID: roomID, UserA: a.ID, UserB: b.ID, InitiatorA: initiatorIsA})
}

func (e *Engine) nextRoomID() string {
	e.roomSeq++
	return fmt.Sprintf("room_%d_%s", e.roomSeq, uuid.New().String()[:8])
}

// runQueueProcessing implements §4.3.4. Must be called while holding e.mu.
func (e *Engine) runQueueProcessing() {
	// Step 2: evict invalid entries.
	for _, id := range e.queue.snapshot() {
		u, ok := e.users[id]
		if !ok || u.State != StateWaiting || u.MatchedWith != "" {
			e.queue.removeByID(id)
		}
	}

	// Step 3: FIFO pass with full novelty priority.
	for _, id := range e.queue.snapshot() {
		a, ok := e.users[id]
		if !ok || a.State != StateWaiting {
			continue
		}
		if b := e.selectCandidate(a, false); b != nil {
			e.createMatch(a, b)
		} else {
			e.emit(WaitingForPeer{UserID: id})
		}
	}

	// Step 4: relaxed pass among the two oldest remaining waiters, ignoring
	// novelty preference, to prevent starvation in the two-user steady state.
	remaining := e.queue.snapshot()
	if len(remaining) >= 2 {
		a, okA := e.users[remaining[0]]
		b, okB := e.users[remaining[1]]
		if okA && okB && a.State == StateWaiting && b.State == StateWaiting {
			e.createMatch(a, b)
		}
	}
}

// Tick re-runs queue processing without any preceding state change. It
// implements the §4.3.4 step-5 reschedule: callers should invoke this on a
// short timer (~500ms) whenever QueueSize stays at 2 or more, to absorb
// churn between the on-event passes.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runQueueProcessing()
}

// UserView is a read-only copy of a User's public fields, returned to
// callers outside the engine (e.g. the Transport Adapter, for debug-state).
type UserView struct {
	ID          string
	State       State
	MatchedWith string
}

// GetUser returns a snapshot view of a user, or false if unknown.
func (e *Engine) GetUser(id string) (UserView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.users[id]
	if !ok {
		return UserView{}, false
	}
	return UserView{ID: u.ID, State: u.State, MatchedWith: u.MatchedWith}, true
}
