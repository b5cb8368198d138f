package game

import (
	"context"
	"log"
	"sync"
	"time"

	"tapdash/internal/config"

	"github.com/google/uuid"
)

// SettlementRecorder receives one finished-match result for asynchronous
// persistence. It must never block the caller.
type SettlementRecorder interface {
	Record(result MatchResult)
}

// Engine is the session core: it owns the matchmaking queue, the challenge
// registry, the set of live matches and the per-identity engagement state.
//
// One lobby lock guards queue + challenges + engagements together, which
// makes pairing and the "an identity sits in at most one pending structure"
// invariant atomic. Matches run on their own goroutines and are only
// looked up under the lock, never driven under it.
type Engine struct {
	cfg      config.GameConfig
	sender   Sender
	recorder SettlementRecorder

	lobby      lobbyState
	sweepEvery time.Duration
}

type lobbyState struct {
	mu         sync.Mutex
	queue      *Queue
	challenges *ChallengeRegistry
	matches    map[string]*Match
	racing     map[uint]string // identity -> match id
	identities map[uint]Identity
}

// NewEngine creates the session core. The recorder may be nil in tests.
func NewEngine(cfg config.GameConfig, sender Sender, recorder SettlementRecorder) *Engine {
	e := &Engine{
		cfg:        cfg,
		sender:     sender,
		recorder:   recorder,
		sweepEvery: cfg.ChallengeTTL / 4,
	}
	e.lobby = lobbyState{
		queue:      NewQueue(),
		challenges: NewChallengeRegistry(),
		matches:    make(map[string]*Match),
		racing:     make(map[uint]string),
		identities: make(map[uint]Identity),
	}
	if e.sweepEvery <= 0 {
		e.sweepEvery = 15 * time.Second
	}
	return e
}

func (e *Engine) lock()   { e.lobby.mu.Lock() }
func (e *Engine) unlock() { e.lobby.mu.Unlock() }

// Run drives the challenge expiry sweep until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.expireChallenges(time.Now())
		}
	}
}

// HandleConnect caches the authenticated identity and, if it belongs to an
// active match, forwards a reconnect so the race resumes.
func (e *Engine) HandleConnect(id Identity) {
	e.lock()
	e.lobby.identities[id.ID] = id
	var m *Match
	if matchID, ok := e.lobby.racing[id.ID]; ok {
		m = e.lobby.matches[matchID]
	}
	e.unlock()

	if m != nil {
		m.NotifyReconnect(id.ID)
	}
}

// HandleDisconnect is the disconnection coordinator: called exactly once
// per genuine disconnect by the connection registry. Each step is
// idempotent and independent of the others.
func (e *Engine) HandleDisconnect(userID uint) {
	e.lock()
	e.lobby.queue.Remove(userID)
	dropped := e.lobby.challenges.RemoveForUser(userID)

	var m *Match
	if matchID, ok := e.lobby.racing[userID]; ok {
		m = e.lobby.matches[matchID]
	} else {
		delete(e.lobby.identities, userID)
	}
	e.unlock()

	for _, ch := range dropped {
		other, gone := ch.Challenger, ch.Target
		if ch.Challenger.ID == userID {
			other, gone = ch.Target, ch.Challenger
		}
		e.sender.Send(other.ID, ChallengeResolved{
			Type:        TypeChallengeResolved,
			ChallengeID: ch.ID,
			Outcome:     string(ChallengeCancelled),
		})
		e.sender.Send(other.ID, DisconnectNotice{
			Type:       TypeDisconnectNotice,
			PeerID:     gone.ID,
			PeerHandle: gone.Handle,
			Reason:     "challenge party disconnected",
		})
	}

	if m != nil {
		m.NotifyDisconnect(userID)
	}
}

// JoinQueue puts an identity in the matchmaking line and immediately
// attempts pairing.
func (e *Engine) JoinQueue(userID uint) error {
	e.lock()
	id, ok := e.lobby.identities[userID]
	if !ok {
		e.unlock()
		return newError(CodeNotFound, "unknown identity")
	}
	if _, racing := e.lobby.racing[userID]; racing {
		e.unlock()
		return newError(CodeAlreadyInMatch, "finish your current race first")
	}
	if e.lobby.challenges.HasUser(userID) {
		e.unlock()
		return newError(CodeAlreadyInChallenge, "resolve your pending challenge first")
	}
	if err := e.lobby.queue.Push(id, time.Now()); err != nil {
		e.unlock()
		return err
	}
	position := e.lobby.queue.Len()
	started := e.pairLocked()
	e.unlock()

	e.sender.Send(userID, QueueJoined{Type: TypeQueueJoined, Position: position})
	e.launch(started)
	return nil
}

// LeaveQueue removes an identity from the line. Idempotent.
func (e *Engine) LeaveQueue(userID uint) {
	e.lock()
	removed := e.lobby.queue.Remove(userID)
	e.unlock()

	if removed {
		e.sender.Send(userID, QueueLeft{Type: TypeQueueLeft})
	}
}

// SendChallenge creates a pending challenge and notifies the target.
func (e *Engine) SendChallenge(challengerID, targetID uint) error {
	e.lock()
	challenger, ok := e.lobby.identities[challengerID]
	if !ok {
		e.unlock()
		return newError(CodeNotFound, "unknown identity")
	}
	if _, racing := e.lobby.racing[challengerID]; racing {
		e.unlock()
		return newError(CodeAlreadyInMatch, "finish your current race first")
	}
	if e.lobby.queue.Contains(challengerID) {
		e.unlock()
		return newError(CodeAlreadyQueued, "leave the queue before challenging")
	}
	target, online := e.lobby.identities[targetID]
	if !online || !e.sender.IsOnline(targetID) {
		e.unlock()
		return newError(CodeTargetOffline, "that player is not online")
	}
	if _, racing := e.lobby.racing[targetID]; racing || e.lobby.queue.Contains(targetID) {
		e.unlock()
		return newError(CodeTargetBusy, "that player is busy")
	}

	ch, err := e.lobby.challenges.Create(challenger, target, time.Now())
	if err != nil {
		e.unlock()
		return err
	}
	e.unlock()

	e.sender.Send(targetID, ChallengeReceived{
		Type:             TypeChallengeReceived,
		ChallengeID:      ch.ID,
		ChallengerID:     challenger.ID,
		ChallengerHandle: challenger.Handle,
		ChallengerRating: challenger.Rating,
		ExpiresAt:        ch.CreatedAt.Add(e.cfg.ChallengeTTL).UnixMilli(),
	})
	return nil
}

// AcceptChallenge resolves a challenge into a match.
func (e *Engine) AcceptChallenge(userID uint, challengeID string) error {
	e.lock()
	ch, err := e.lobby.challenges.Accept(challengeID, userID)
	if err != nil {
		e.unlock()
		return err
	}
	started := e.createMatchLocked([]Identity{ch.Challenger, ch.Target})
	e.unlock()

	e.notifyResolved(ch)
	e.launch(started)
	return nil
}

// DeclineChallenge resolves a challenge negatively.
func (e *Engine) DeclineChallenge(userID uint, challengeID string) error {
	e.lock()
	ch, err := e.lobby.challenges.Decline(challengeID, userID)
	e.unlock()
	if err != nil {
		return err
	}
	e.notifyResolved(ch)
	return nil
}

// CancelChallenge withdraws a challenge the caller sent.
func (e *Engine) CancelChallenge(userID uint, challengeID string) error {
	e.lock()
	ch, err := e.lobby.challenges.Cancel(challengeID, userID)
	e.unlock()
	if err != nil {
		return err
	}
	e.notifyResolved(ch)
	return nil
}

// Tap routes a tap to the caller's own participant record. A payload
// naming a match the caller is not racing in is rejected.
func (e *Engine) Tap(userID uint, matchID string, clientTS int64) error {
	e.lock()
	current, racing := e.lobby.racing[userID]
	var m *Match
	if racing {
		m = e.lobby.matches[current]
	}
	e.unlock()

	if !racing {
		return newError(CodeNotFound, "you are not in a match")
	}
	if matchID != "" && matchID != current {
		return newError(CodeForbidden, "that is not your match")
	}
	if m == nil {
		return newError(CodeNotFound, "match already over")
	}
	return m.Tap(userID, clientTS)
}

// QueueLen reports the current queue depth.
func (e *Engine) QueueLen() int {
	e.lock()
	defer e.unlock()
	return e.lobby.queue.Len()
}

// ActiveMatches reports the number of live matches.
func (e *Engine) ActiveMatches() int {
	e.lock()
	defer e.unlock()
	return len(e.lobby.matches)
}

// pairLocked drains the queue two at a time. Caller holds the lobby lock.
func (e *Engine) pairLocked() []*Match {
	var started []*Match
	for {
		a, b, ok := e.lobby.queue.PopPair()
		if !ok {
			return started
		}
		started = append(started, e.createMatchLocked([]Identity{a.Identity, b.Identity})...)
	}
}

// createMatchLocked registers a match for the given identities. Caller
// holds the lobby lock. An identity already racing is a broken invariant:
// the old match is forcibly terminated and the new one is not created.
func (e *Engine) createMatchLocked(ids []Identity) []*Match {
	for _, id := range ids {
		if matchID, racing := e.lobby.racing[id.ID]; racing {
			log.Printf("🛑 INVARIANT VIOLATION: user %d already in match %s, terminating it", id.ID, matchID)
			if old := e.lobby.matches[matchID]; old != nil {
				old.Stop()
			}
			return nil
		}
	}

	m := NewMatch(uuid.NewString(), ids, e.cfg, e.sender, e.finishMatch)
	e.lobby.matches[m.ID] = m
	for _, id := range ids {
		e.lobby.racing[id.ID] = m.ID
	}
	return []*Match{m}
}

// launch starts match loops and sends the start frames. Called outside the
// lobby lock.
func (e *Engine) launch(matches []*Match) {
	for _, m := range matches {
		evt := m.startEvent()
		for _, opp := range evt.Opponents {
			e.sender.Send(opp.UserID, evt)
		}
		go m.Run()
		log.Printf("🏁 Match %s created (%d players)", m.ID, len(evt.Opponents))
	}
}

// finishMatch is the match loop's finish hook: release engagements, fold
// rating deltas into the identity cache, hand the result to persistence.
func (e *Engine) finishMatch(result MatchResult) {
	e.lock()
	delete(e.lobby.matches, result.MatchID)
	for _, s := range result.Standings {
		delete(e.lobby.racing, s.Identity.ID)
		if cached, ok := e.lobby.identities[s.Identity.ID]; ok {
			cached.Rating += s.RatingDelta
			e.lobby.identities[s.Identity.ID] = cached
		}
		if !e.sender.IsOnline(s.Identity.ID) {
			delete(e.lobby.identities, s.Identity.ID)
		}
	}
	e.unlock()

	if result.Cancelled {
		log.Printf("🏁 Match %s cancelled, no settlement", result.MatchID)
		return
	}
	if e.recorder != nil {
		e.recorder.Record(result)
	}
	log.Printf("🏁 Match %s finished and settled", result.MatchID)
}

func (e *Engine) notifyResolved(ch *Challenge) {
	evt := ChallengeResolved{
		Type:        TypeChallengeResolved,
		ChallengeID: ch.ID,
		Outcome:     string(ch.Status),
	}
	e.sender.Send(ch.Challenger.ID, evt)
	e.sender.Send(ch.Target.ID, evt)
}

// expireChallenges removes stale challenges and notifies both parties,
// treated as a declined outcome.
func (e *Engine) expireChallenges(now time.Time) {
	e.lock()
	expired := e.lobby.challenges.Expire(now, e.cfg.ChallengeTTL)
	e.unlock()

	for _, ch := range expired {
		e.notifyResolved(ch)
		log.Printf("⏰ Challenge %s expired (%s → %s)", ch.ID, ch.Challenger.Handle, ch.Target.Handle)
	}
}
