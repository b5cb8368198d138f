package game

import (
	"sync"
	"testing"
	"time"

	"tapdash/internal/config"
)

type fakeRecorder struct {
	mu      sync.Mutex
	results []MatchResult
}

func (r *fakeRecorder) Record(result MatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *fakeRecorder) snapshot() []MatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MatchResult, len(r.results))
	copy(out, r.results)
	return out
}

func newTestEngine(sender *fakeSender) (*Engine, *fakeRecorder) {
	cfg := raceConfig()
	cfg.ChallengeTTL = time.Minute
	rec := &fakeRecorder{}
	return NewEngine(cfg, sender, rec), rec
}

func connect(e *Engine, ids ...uint) {
	for _, id := range ids {
		e.HandleConnect(testIdentity(id))
	}
}

// challengeIDFor digs the pending challenge id out of the target's inbox.
func challengeIDFor(t *testing.T, sender *fakeSender, userID uint) string {
	t.Helper()
	for _, e := range sender.eventsFor(userID) {
		if evt, ok := e.(ChallengeReceived); ok {
			return evt.ChallengeID
		}
	}
	t.Fatal("no challenge_received event delivered")
	return ""
}

func TestJoinQueuePairsTwoPlayers(t *testing.T) {
	sender := newFakeSender()
	e, _ := newTestEngine(sender)
	connect(e, 1, 2)

	if err := e.JoinQueue(1); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if e.QueueLen() != 1 || e.ActiveMatches() != 0 {
		t.Fatalf("after one join: queue %d, matches %d, want 1 and 0", e.QueueLen(), e.ActiveMatches())
	}

	if err := e.JoinQueue(2); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if e.QueueLen() != 0 || e.ActiveMatches() != 1 {
		t.Fatalf("after pairing: queue %d, matches %d, want 0 and 1", e.QueueLen(), e.ActiveMatches())
	}
	for _, id := range []uint{1, 2} {
		if n := sender.countType(id, TypeMatchStart); n != 1 {
			t.Errorf("user %d received %d match_start events, want 1", id, n)
		}
	}
}

func TestJoinQueueRejections(t *testing.T) {
	sender := newFakeSender()
	e, _ := newTestEngine(sender)
	connect(e, 1, 2, 3)
	if err := e.JoinQueue(1); err != nil {
		t.Fatalf("seed join: %v", err)
	}
	if err := e.SendChallenge(2, 3); err != nil {
		t.Fatalf("seed challenge: %v", err)
	}

	tests := []struct {
		name     string
		userID   uint
		wantCode Code
	}{
		{"unknown identity", 99, CodeNotFound},
		{"already queued", 1, CodeAlreadyQueued},
		{"challenger in pending challenge", 2, CodeAlreadyInChallenge},
		{"target in pending challenge", 3, CodeAlreadyInChallenge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.JoinQueue(tt.userID)
			ge, ok := AsGameError(err)
			if !ok || ge.Code != tt.wantCode {
				t.Errorf("error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestLeaveQueueIdempotent(t *testing.T) {
	sender := newFakeSender()
	e, _ := newTestEngine(sender)
	connect(e, 1)

	if err := e.JoinQueue(1); err != nil {
		t.Fatalf("join: %v", err)
	}
	e.LeaveQueue(1)
	e.LeaveQueue(1)

	if e.QueueLen() != 0 {
		t.Errorf("queue length = %d, want 0", e.QueueLen())
	}
	if n := sender.countType(1, TypeQueueLeft); n != 1 {
		t.Errorf("user received %d queue_left events, want 1", n)
	}
}

func TestSendChallengeRejections(t *testing.T) {
	sender := newFakeSender()
	e, _ := newTestEngine(sender)
	connect(e, 1, 2, 3, 4)
	if err := e.JoinQueue(3); err != nil {
		t.Fatalf("seed join: %v", err)
	}
	sender.setOffline(4, true)

	tests := []struct {
		name       string
		challenger uint
		target     uint
		wantCode   Code
	}{
		{"never-connected target", 1, 99, CodeTargetOffline},
		{"target without a live socket", 1, 4, CodeTargetOffline},
		{"queued target", 1, 3, CodeTargetBusy},
		{"queued challenger", 3, 1, CodeAlreadyQueued},
		{"unknown challenger", 99, 1, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.SendChallenge(tt.challenger, tt.target)
			ge, ok := AsGameError(err)
			if !ok || ge.Code != tt.wantCode {
				t.Errorf("error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestChallengeAcceptCreatesMatch(t *testing.T) {
	sender := newFakeSender()
	e, _ := newTestEngine(sender)
	connect(e, 1, 2)

	if err := e.SendChallenge(1, 2); err != nil {
		t.Fatalf("send: %v", err)
	}
	chID := challengeIDFor(t, sender, 2)

	if err := e.AcceptChallenge(2, chID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if e.ActiveMatches() != 1 {
		t.Fatalf("matches = %d, want 1", e.ActiveMatches())
	}
	for _, id := range []uint{1, 2} {
		if n := sender.countType(id, TypeChallengeResolved); n != 1 {
			t.Errorf("user %d received %d challenge_resolved events, want 1", id, n)
		}
		if n := sender.countType(id, TypeMatchStart); n != 1 {
			t.Errorf("user %d received %d match_start events, want 1", id, n)
		}
	}
}

func TestChallengeDeclineLeavesNoMatch(t *testing.T) {
	sender := newFakeSender()
	e, _ := newTestEngine(sender)
	connect(e, 1, 2)

	if err := e.SendChallenge(1, 2); err != nil {
		t.Fatalf("send: %v", err)
	}
	chID := challengeIDFor(t, sender, 2)

	if err := e.DeclineChallenge(2, chID); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if e.ActiveMatches() != 0 {
		t.Errorf("matches = %d after decline, want 0", e.ActiveMatches())
	}
	// Both parties are free again.
	if err := e.JoinQueue(1); err != nil {
		t.Errorf("challenger should be free to queue: %v", err)
	}
	if err := e.JoinQueue(2); err != nil {
		t.Errorf("target should be free to queue: %v", err)
	}
}

func TestDisconnectClearsQueueAndIdentity(t *testing.T) {
	sender := newFakeSender()
	e, _ := newTestEngine(sender)
	connect(e, 1)
	if err := e.JoinQueue(1); err != nil {
		t.Fatalf("join: %v", err)
	}

	e.HandleDisconnect(1)

	if e.QueueLen() != 0 {
		t.Errorf("queue length = %d after disconnect, want 0", e.QueueLen())
	}
	err := e.JoinQueue(1)
	ge, ok := AsGameError(err)
	if !ok || ge.Code != CodeNotFound {
		t.Errorf("join after disconnect = %v, want code %s (identity dropped)", err, CodeNotFound)
	}
}

func TestDisconnectCancelsChallenge(t *testing.T) {
	sender := newFakeSender()
	e, _ := newTestEngine(sender)
	connect(e, 1, 2)
	if err := e.SendChallenge(1, 2); err != nil {
		t.Fatalf("send: %v", err)
	}

	e.HandleDisconnect(1)

	if n := sender.countType(2, TypeChallengeResolved); n != 1 {
		t.Errorf("counterparty received %d challenge_resolved events, want 1", n)
	}
	if n := sender.countType(2, TypeDisconnectNotice); n != 1 {
		t.Errorf("counterparty received %d disconnect notices, want 1", n)
	}
	if err := e.JoinQueue(2); err != nil {
		t.Errorf("counterparty should be free to queue: %v", err)
	}
}

func TestExpireChallengesNotifiesBothParties(t *testing.T) {
	sender := newFakeSender()
	e, _ := newTestEngine(sender)
	connect(e, 1, 2)
	if err := e.SendChallenge(1, 2); err != nil {
		t.Fatalf("send: %v", err)
	}

	e.expireChallenges(time.Now().Add(2 * time.Minute))

	for _, id := range []uint{1, 2} {
		found := false
		for _, evt := range sender.eventsFor(id) {
			if resolved, ok := evt.(ChallengeResolved); ok && resolved.Outcome == string(ChallengeExpired) {
				found = true
			}
		}
		if !found {
			t.Errorf("user %d did not receive an expired challenge_resolved event", id)
		}
	}
	if err := e.JoinQueue(1); err != nil {
		t.Errorf("challenger should be free after expiry: %v", err)
	}
}

func TestTapGuards(t *testing.T) {
	sender := newFakeSender()
	e, _ := newTestEngine(sender)
	connect(e, 1, 2, 3)

	err := e.Tap(1, "", time.Now().UnixMilli())
	ge, ok := AsGameError(err)
	if !ok || ge.Code != CodeNotFound {
		t.Fatalf("tap outside a match = %v, want code %s", err, CodeNotFound)
	}

	if err := e.JoinQueue(1); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := e.JoinQueue(2); err != nil {
		t.Fatalf("join: %v", err)
	}

	err = e.Tap(1, "some-other-match", time.Now().UnixMilli())
	ge, ok = AsGameError(err)
	if !ok || ge.Code != CodeForbidden {
		t.Errorf("tap naming a foreign match = %v, want code %s", err, CodeForbidden)
	}
}

func TestFullRaceSettlement(t *testing.T) {
	cfg := config.GameConfig{
		Countdown:      20 * time.Millisecond,
		TickInterval:   10 * time.Millisecond,
		FinishDistance: 20,
		TapDistance:    10,
		MinTapInterval: 0,
		GraceWindow:    time.Hour,
		ChallengeTTL:   time.Minute,
		EloK:           32,
	}
	sender := newFakeSender()
	rec := &fakeRecorder{}
	e := NewEngine(cfg, sender, rec)
	connect(e, 1, 2)

	if err := e.JoinQueue(1); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := e.JoinQueue(2); err != nil {
		t.Fatalf("join: %v", err)
	}

	engineTapUntilRacing(t, e, 1)
	for _, step := range []uint{1, 2, 2} {
		if err := e.Tap(step, "", time.Now().UnixMilli()); err != nil {
			t.Fatalf("tap for %d: %v", step, err)
		}
	}

	results := waitForResults(t, rec, 1)
	result := results[0]
	if result.Cancelled {
		t.Fatal("a completed race must not be cancelled")
	}
	deltas := map[uint]int{}
	ranks := map[uint]int{}
	for _, s := range result.Standings {
		deltas[s.Identity.ID] = s.RatingDelta
		ranks[s.Identity.ID] = s.Rank
	}
	if ranks[1] != 1 || ranks[2] != 2 {
		t.Errorf("ranks = %v, want user 1 first and user 2 second", ranks)
	}
	if deltas[1] != 16 || deltas[2] != -16 {
		t.Errorf("deltas = %v, want +16/-16 for equally rated players", deltas)
	}

	// Engagements released: both can queue again.
	if e.ActiveMatches() != 0 {
		t.Errorf("matches = %d after finish, want 0", e.ActiveMatches())
	}
	if err := e.JoinQueue(1); err != nil {
		t.Errorf("winner should be free to requeue: %v", err)
	}
}

func engineTapUntilRacing(t *testing.T, e *Engine, userID uint) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		err := e.Tap(userID, "", time.Now().UnixMilli())
		if err == nil {
			return
		}
		if ge, ok := AsGameError(err); ok && ge.Code == CodeNotRacingYet {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		t.Fatalf("tap: %v", err)
	}
	t.Fatal("race never left countdown")
}

func waitForResults(t *testing.T, rec *fakeRecorder, n int) []MatchResult {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if results := rec.snapshot(); len(results) >= n {
			return results
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("recorder never received %d results", n)
	return nil
}
