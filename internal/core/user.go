// Package core implements the in-memory matching engine: the UserRegistry,
// WaitingQueue, and Matchmaker described by the service's pairing model.
// All mutating state lives behind Engine's single mutex; there is no
// external store.
package core

import "time"

// State is the lifecycle state of a User.
type State int

const (
	// StateIdle is a connected user who is not searching and not matched.
	StateIdle State = iota
	// StateWaiting is a user present in the WaitingQueue.
	StateWaiting
	// StateMatched is a user currently paired with a partner.
	StateMatched
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateMatched:
		return "matched"
	default:
		return "unknown"
	}
}

// maxPreviousMatches bounds the novelty history retained per user (§4.3.7).
const maxPreviousMatches = 3

// User is one connected client. All fields are owned by Engine and must only
// be mutated while holding Engine.mu.
type User struct {
	ID          string
	State       State
	JoinedAt    time.Time
	MatchedWith string

	// previousMatches records, oldest first, every partner this user has
	// been paired with during this connection. Kept unbounded while active;
	// trimmed to maxPreviousMatches only after the user ages off (see
	// ageOffPreviousMatches).
	previousMatches []string

	// recentSkips maps partner id to the time of the most recent skip
	// involving that pair, in either direction.
	recentSkips map[string]time.Time

	// blockedUsers is the reconnection shield (§4.3.7): ids this user must
	// not be rematched with. Entries are added at each start-search and are
	// never removed for the lifetime of the connection.
	blockedUsers map[string]struct{}

	// lastActiveAt tracks the last state-changing action, used for the
	// previousMatches age-off rule.
	lastActiveAt time.Time
}

func newUser(id string, now time.Time) *User {
	return &User{
		ID:           id,
		State:        StateIdle,
		JoinedAt:     now,
		recentSkips:  make(map[string]time.Time),
		blockedUsers: make(map[string]struct{}),
		lastActiveAt: now,
	}
}

func (u *User) hasPreviousMatch(otherID string) bool {
	for _, id := range u.previousMatches {
		if id == otherID {
			return true
		}
	}
	return false
}

// recordMatch appends otherID to the full novelty history. Per §3.1/§4.3.7
// the history is kept in full for the life of the connection and only
// trimmed to maxPreviousMatches by ageOffPreviousMatches, once the user has
// been inactive past the configured window — a live connection must not let
// a 4th-onward rematch evade the novelty tiers just because an earlier
// partner aged out of a fixed-size window.
func (u *User) recordMatch(otherID string) {
	if u.hasPreviousMatch(otherID) {
		return
	}
	u.previousMatches = append(u.previousMatches, otherID)
}

func (u *User) isBlocked(otherID string) bool {
	_, ok := u.blockedUsers[otherID]
	return ok
}
