package core

import (
	"testing"
	"time"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(EngineConfig{SkipCooldown: 60 * time.Second, IdleAgeOff: 30 * time.Second}, nil, nil)
	return e
}

func mustAdd(t *testing.T, e *Engine, id string) {
	t.Helper()
	if err := e.AddUser(id); err != nil {
		t.Fatalf("AddUser(%q): %v", id, err)
	}
}

func TestStartSearch_TwoUsersMatch(t *testing.T) {
	e := newTestEngine(t)
	mustAdd(t, e, "a")
	mustAdd(t, e, "b")

	var events []Event
	e.onEvent = func(ev Event) { events = append(events, ev) }

	if err := e.StartSearch("a"); err != nil {
		t.Fatalf("StartSearch(a): %v", err)
	}
	if err := e.StartSearch("b"); err != nil {
		t.Fatalf("StartSearch(b): %v", err)
	}

	var created *MatchCreated
	for _, ev := range events {
		if mc, ok := ev.(MatchCreated); ok {
			created = &mc
		}
	}
	if created == nil {
		t.Fatalf("expected a MatchCreated event, got %#v", events)
	}
	if created.UserA != "a" && created.UserB != "a" {
		t.Errorf("expected match to involve user a, got %+v", created)
	}

	ua, _ := e.GetUser("a")
	ub, _ := e.GetUser("b")
	if ua.State != StateMatched || ub.State != StateMatched {
		t.Fatalf("expected both users matched, got a=%v b=%v", ua.State, ub.State)
	}
	if ua.MatchedWith != "b" || ub.MatchedWith != "a" {
		t.Fatalf("expected mutual MatchedWith, got a->%s b->%s", ua.MatchedWith, ub.MatchedWith)
	}
}

func TestSkip_EnforcesCooldown(t *testing.T) {
	e := newTestEngine(t)
	mustAdd(t, e, "a")
	mustAdd(t, e, "b")
	e.StartSearch("a")
	e.StartSearch("b")

	ua, _ := e.GetUser("a")
	if ua.State != StateMatched {
		t.Fatalf("expected a matched before skip test, got %v", ua.State)
	}

	if err := e.Skip("a"); err != nil {
		t.Fatalf("Skip(a): %v", err)
	}

	ua, _ = e.GetUser("a")
	ub, _ := e.GetUser("b")
	if ua.State != StateWaiting || ub.State != StateWaiting {
		t.Fatalf("expected both waiting after skip, got a=%v b=%v", ua.State, ub.State)
	}

	// Re-entering search immediately must not rematch them (60s cooldown).
	e.StartSearch("a")
	ua, _ = e.GetUser("a")
	if ua.State == StateMatched {
		t.Fatalf("expected a to remain waiting under cooldown, got matched with %s", ua.MatchedWith)
	}
}

func TestInterceptionGuard_PreventsStealingMatchedUser(t *testing.T) {
	e := newTestEngine(t)
	mustAdd(t, e, "a")
	mustAdd(t, e, "b")
	mustAdd(t, e, "c")

	e.StartSearch("a")
	e.StartSearch("b")

	ua, _ := e.GetUser("a")
	if ua.State != StateMatched {
		t.Fatalf("expected a and b matched before c joins")
	}

	e.StartSearch("c")
	uc, _ := e.GetUser("c")
	if uc.State == StateMatched {
		t.Fatalf("expected c to remain waiting since a and b are both taken, got matched with %s", uc.MatchedWith)
	}
	ua, _ = e.GetUser("a")
	if ua.MatchedWith != "b" {
		t.Fatalf("expected a to remain matched with b, got %s", ua.MatchedWith)
	}
}

func TestStopSearch_DoesNotRequeueCaller(t *testing.T) {
	e := newTestEngine(t)
	mustAdd(t, e, "a")
	mustAdd(t, e, "b")
	e.StartSearch("a")
	e.StartSearch("b")

	if err := e.StopSearch("a"); err != nil {
		t.Fatalf("StopSearch(a): %v", err)
	}

	ua, _ := e.GetUser("a")
	ub, _ := e.GetUser("b")
	if ua.State != StateIdle {
		t.Fatalf("expected a idle after stop-search, got %v", ua.State)
	}
	if ub.State != StateWaiting {
		t.Fatalf("expected b back to waiting after partner's stop-search, got %v", ub.State)
	}
}

func TestRemoveUser_NotifiesPartner(t *testing.T) {
	e := newTestEngine(t)
	mustAdd(t, e, "a")
	mustAdd(t, e, "b")
	e.StartSearch("a")
	e.StartSearch("b")

	var disconnected *PeerDisconnected
	e.onEvent = func(ev Event) {
		if d, ok := ev.(PeerDisconnected); ok {
			disconnected = &d
		}
	}

	e.RemoveUser("a")

	if disconnected == nil {
		t.Fatalf("expected a PeerDisconnected event for b")
	}
	if disconnected.UserID != "b" || disconnected.PartnerID != "a" {
		t.Fatalf("unexpected disconnect event: %+v", disconnected)
	}

	ub, _ := e.GetUser("b")
	if ub.State != StateWaiting {
		t.Fatalf("expected b back to waiting, got %v", ub.State)
	}
	if _, ok := e.GetUser("a"); ok {
		t.Fatalf("expected a to be removed from the registry")
	}
}

func TestQueueFIFOOrdering(t *testing.T) {
	q := newWaitingQueue()
	q.pushTail("a")
	q.pushTail("b")
	q.pushTail("c")
	q.removeByID("b")

	got := q.snapshot()
	want := []string{"a", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
