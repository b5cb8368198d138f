package game

import (
	"log"
	"sort"
	"time"

	"tapdash/internal/config"
)

// MatchStatus is the lifecycle state of a race.
type MatchStatus string

const (
	StatusCountdown MatchStatus = "countdown"
	StatusRacing    MatchStatus = "racing"
	StatusFinished  MatchStatus = "finished"
)

// Sender delivers outbound events to a user's current connection.
// Delivery is best-effort: offline users are silently skipped. The
// websocket registry implements this; the core never touches a socket.
type Sender interface {
	Send(userID uint, event interface{})
	IsOnline(userID uint) bool
}

// Participant is one identity's role within a match. Mutated only by the
// owning match loop.
type Participant struct {
	Identity  Identity
	Distance  int
	Taps      int
	Rank      int // 0 until finished
	DNF       bool
	Connected bool
	FinishedAt time.Time
	lastTapAt  time.Time

	graceGen   int
	graceTimer *time.Timer
}

// Standing is one participant's final line in a MatchResult.
type Standing struct {
	Identity    Identity
	Distance    int
	Taps        int
	Rank        int
	DNF         bool
	RatingDelta int
}

// MatchResult is handed to the engine's finish hook exactly once per match.
type MatchResult struct {
	MatchID    string
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt time.Time
	Standings  []Standing
}

type cmdKind int

const (
	cmdTap cmdKind = iota
	cmdDisconnect
	cmdReconnect
	cmdGraceExpired
	cmdStop
)

type matchCommand struct {
	kind     cmdKind
	userID   uint
	clientTS int64
	gen      int
	reply    chan error
}

// Match owns one race from countdown to finish. All participant mutation is
// serialized through the command channel consumed by Run; other matches
// never contend with this one.
type Match struct {
	ID  string
	cfg config.GameConfig

	sender   Sender
	onFinish func(MatchResult)

	participants []*Participant
	status       MatchStatus
	createdAt    time.Time
	startedAt    time.Time
	tickSeq      uint64
	nextRank     int
	bottomRank   int

	commands chan matchCommand
	done     chan struct{}
}

// NewMatch builds a match in countdown state. Call Run to start its loop.
func NewMatch(id string, ids []Identity, cfg config.GameConfig, sender Sender, onFinish func(MatchResult)) *Match {
	m := &Match{
		ID:         id,
		cfg:        cfg,
		sender:     sender,
		onFinish:   onFinish,
		status:     StatusCountdown,
		createdAt:  time.Now(),
		nextRank:   1,
		bottomRank: len(ids),
		commands:   make(chan matchCommand, 64),
		done:       make(chan struct{}),
	}
	for _, id := range ids {
		m.participants = append(m.participants, &Participant{
			Identity:  id,
			Connected: true,
		})
	}
	return m
}

// Run is the match loop. It owns the countdown timer and the tick ticker;
// both die with the loop.
func (m *Match) Run() {
	countdown := time.NewTimer(m.cfg.Countdown)
	defer countdown.Stop()

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-countdown.C:
			m.beginRacing(time.Now())

		case <-ticker.C:
			if m.status == StatusRacing {
				m.broadcastTick()
			}

		case cmd := <-m.commands:
			m.handle(cmd, time.Now())
		}

		if m.status == StatusFinished {
			close(m.done)
			return
		}
	}
}

// Done is closed when the match reaches its terminal state.
func (m *Match) Done() <-chan struct{} {
	return m.done
}

// Tap submits a tap for the given user and waits for the verdict.
func (m *Match) Tap(userID uint, clientTS int64) error {
	reply := make(chan error, 1)
	select {
	case m.commands <- matchCommand{kind: cmdTap, userID: userID, clientTS: clientTS, reply: reply}:
	case <-m.done:
		return newError(CodeNotFound, "match already over")
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return nil
	}
}

// NotifyDisconnect tells the match a participant's connection dropped.
func (m *Match) NotifyDisconnect(userID uint) {
	m.enqueue(matchCommand{kind: cmdDisconnect, userID: userID})
}

// NotifyReconnect tells the match a participant came back within the
// grace window.
func (m *Match) NotifyReconnect(userID uint) {
	m.enqueue(matchCommand{kind: cmdReconnect, userID: userID})
}

// Stop forcibly terminates the match without settlement. Used when an
// internal invariant is found broken; leaving the match running in an
// inconsistent state would be worse.
func (m *Match) Stop() {
	m.enqueue(matchCommand{kind: cmdStop})
}

func (m *Match) enqueue(cmd matchCommand) {
	select {
	case m.commands <- cmd:
	case <-m.done:
	}
}

func (m *Match) handle(cmd matchCommand, now time.Time) {
	switch cmd.kind {
	case cmdTap:
		err := m.applyTap(cmd.userID, now)
		if cmd.reply != nil {
			cmd.reply <- err
		}
	case cmdDisconnect:
		m.applyDisconnect(cmd.userID, now)
	case cmdReconnect:
		m.applyReconnect(cmd.userID)
	case cmdGraceExpired:
		m.applyGraceExpired(cmd.userID, cmd.gen)
	case cmdStop:
		log.Printf("⚠️ Match %s forcibly terminated", m.ID)
		m.finish(now, true)
	}
}

// beginRacing transitions countdown → racing and broadcasts the opening tick.
func (m *Match) beginRacing(now time.Time) {
	if m.status != StatusCountdown {
		return
	}
	m.status = StatusRacing
	m.startedAt = now
	m.broadcastTick()
}

// applyTap scores one tap. Taps before racing are rejected; taps from an
// already-finished participant are accepted but ignored.
func (m *Match) applyTap(userID uint, now time.Time) error {
	p := m.participant(userID)
	if p == nil {
		return newError(CodeForbidden, "you are not part of this match")
	}
	if m.status == StatusCountdown {
		return newError(CodeNotRacingYet, "the race has not started yet")
	}
	if p.Rank > 0 || p.DNF {
		return nil
	}

	gain := m.cfg.TapDistance
	if !p.lastTapAt.IsZero() && now.Sub(p.lastTapAt) < m.cfg.MinTapInterval {
		// Rate shaping: flooding still counts taps but earns half distance.
		gain /= 2
	}
	p.Taps++
	p.Distance += gain
	p.lastTapAt = now

	if p.Distance >= m.cfg.FinishDistance {
		m.assignFinishRank(p, now)
		m.sweepFinish(now)
	}
	return nil
}

// applyDisconnect marks the participant offline and arms the grace timer.
// When every participant is gone the match is cancelled outright.
func (m *Match) applyDisconnect(userID uint, now time.Time) {
	p := m.participant(userID)
	if p == nil || !p.Connected {
		return
	}
	p.Connected = false

	for _, other := range m.participants {
		if other.Identity.ID != userID && other.Connected {
			m.sender.Send(other.Identity.ID, DisconnectNotice{
				Type:       TypeDisconnectNotice,
				PeerID:     p.Identity.ID,
				PeerHandle: p.Identity.Handle,
				Reason:     "connection lost",
			})
		}
	}

	if m.allDisconnected() {
		log.Printf("🛑 Match %s: all participants disconnected, cancelling", m.ID)
		m.finish(now, true)
		return
	}

	if p.Rank == 0 && !p.DNF {
		m.armGraceTimer(p)
	}
	m.sweepFinish(now)
}

// applyReconnect restores a participant inside the grace window. Distance
// is preserved; the stale grace timer is invalidated by the generation bump.
func (m *Match) applyReconnect(userID uint) {
	p := m.participant(userID)
	if p == nil || p.Connected {
		return
	}
	p.Connected = true
	p.graceGen++
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}

	// Resend the match frame so a fresh client process can resume.
	m.sender.Send(userID, m.startEvent())
	m.sender.Send(userID, m.snapshotEvent())
}

// applyGraceExpired assigns a DNF once the reconnect window closes. A stale
// expiry (participant reconnected meanwhile) is identified by its generation
// and ignored.
func (m *Match) applyGraceExpired(userID uint, gen int) {
	p := m.participant(userID)
	if p == nil || p.Connected || gen != p.graceGen {
		return
	}
	if p.Rank > 0 || p.DNF {
		return
	}
	m.assignDNFRank(p)
	m.sweepFinish(time.Now())
}

func (m *Match) armGraceTimer(p *Participant) {
	p.graceGen++
	gen := p.graceGen
	userID := p.Identity.ID
	p.graceTimer = time.AfterFunc(m.cfg.GraceWindow, func() {
		m.enqueue(matchCommand{kind: cmdGraceExpired, userID: userID, gen: gen})
	})
}

// assignFinishRank gives the next unused top rank to a finisher.
func (m *Match) assignFinishRank(p *Participant, now time.Time) {
	p.Rank = m.nextRank
	m.nextRank++
	p.FinishedAt = now
}

// assignDNFRank gives the lowest still-available rank to a permanently
// disconnected participant.
func (m *Match) assignDNFRank(p *Participant) {
	p.DNF = true
	p.Rank = m.bottomRank
	m.bottomRank--
}

// sweepFinish checks the two finish conditions: every participant ranked,
// or every still-connected participant ranked (remaining offline racers
// are then DNF'd without waiting out their grace windows).
func (m *Match) sweepFinish(now time.Time) {
	if m.status != StatusRacing && m.status != StatusCountdown {
		return
	}

	connectedRemaining := false
	for _, p := range m.participants {
		if p.Rank == 0 && p.Connected {
			connectedRemaining = true
			break
		}
	}
	if connectedRemaining {
		return
	}

	// Everyone still unranked is offline. Rank them by progress: greater
	// distance first, earlier last tap breaking ties.
	var remaining []*Participant
	for _, p := range m.participants {
		if p.Rank == 0 {
			remaining = append(remaining, p)
		}
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		if remaining[i].Distance != remaining[j].Distance {
			return remaining[i].Distance > remaining[j].Distance
		}
		return remaining[i].lastTapAt.Before(remaining[j].lastTapAt)
	})
	for _, p := range remaining {
		p.DNF = true
		p.Rank = m.nextRank
		m.nextRank++
	}

	m.finish(now, false)
}

// finish is the single entry into the terminal state. Settlement deltas are
// computed here; persistence is the engine's job via the finish hook.
func (m *Match) finish(now time.Time, cancelled bool) {
	if m.status == StatusFinished {
		return
	}
	m.status = StatusFinished

	for _, p := range m.participants {
		if p.graceTimer != nil {
			p.graceTimer.Stop()
			p.graceTimer = nil
		}
	}

	result := MatchResult{
		MatchID:    m.ID,
		Cancelled:  cancelled,
		StartedAt:  m.startedAt,
		FinishedAt: now,
	}
	for _, p := range m.participants {
		result.Standings = append(result.Standings, Standing{
			Identity: p.Identity,
			Distance: p.Distance,
			Taps:     p.Taps,
			Rank:     p.Rank,
			DNF:      p.DNF,
		})
	}

	if !cancelled {
		m.settle(&result)
	}

	m.broadcastEnd(result)

	if m.onFinish != nil {
		m.onFinish(result)
	}
}

// settle fills in rating deltas. Head-to-head is the supported case; larger
// fields race but settle nothing.
func (m *Match) settle(result *MatchResult) {
	if len(result.Standings) != 2 {
		if len(result.Standings) > 2 {
			log.Printf("⚠️ Match %s has %d participants, skipping settlement", m.ID, len(result.Standings))
		}
		return
	}
	a, b := &result.Standings[0], &result.Standings[1]

	outcome := OutcomeDraw
	switch {
	case a.Rank < b.Rank:
		outcome = OutcomeFirstWins
	case b.Rank < a.Rank:
		outcome = OutcomeSecondWins
	}
	a.RatingDelta, b.RatingDelta = SettleRatings(a.Identity.Rating, b.Identity.Rating, outcome, m.cfg.EloK)
}

// broadcastTick sends the current snapshot to every connected participant.
func (m *Match) broadcastTick() {
	m.tickSeq++
	evt := m.snapshotEvent()
	for _, p := range m.participants {
		if p.Connected {
			m.sender.Send(p.Identity.ID, evt)
		}
	}
}

func (m *Match) broadcastEnd(result MatchResult) {
	evt := MatchEnd{
		Type:      TypeMatchEnd,
		MatchID:   m.ID,
		Cancelled: result.Cancelled,
	}
	for _, s := range result.Standings {
		evt.Standings = append(evt.Standings, ParticipantSnapshot{
			UserID:      s.Identity.ID,
			Distance:    s.Distance,
			Taps:        s.Taps,
			Rank:        s.Rank,
			DNF:         s.DNF,
			Connected:   m.isConnected(s.Identity.ID),
			RatingDelta: s.RatingDelta,
		})
	}
	for _, p := range m.participants {
		m.sender.Send(p.Identity.ID, evt)
	}
}

// startEvent builds the match_start frame for this match.
func (m *Match) startEvent() MatchStart {
	evt := MatchStart{
		Type:           TypeMatchStart,
		MatchID:        m.ID,
		FinishDistance: m.cfg.FinishDistance,
		RaceBeginsAt:   m.createdAt.Add(m.cfg.Countdown).UnixMilli(),
	}
	for _, p := range m.participants {
		evt.Opponents = append(evt.Opponents, OpponentSummary{
			UserID: p.Identity.ID,
			Handle: p.Identity.Handle,
			Rating: p.Identity.Rating,
		})
	}
	return evt
}

func (m *Match) snapshotEvent() RaceUpdate {
	evt := RaceUpdate{
		Type:    TypeRaceUpdate,
		MatchID: m.ID,
		TickSeq: m.tickSeq,
	}
	for _, p := range m.participants {
		evt.Participants = append(evt.Participants, ParticipantSnapshot{
			UserID:    p.Identity.ID,
			Distance:  p.Distance,
			Taps:      p.Taps,
			Rank:      p.Rank,
			DNF:       p.DNF,
			Connected: p.Connected,
		})
	}
	return evt
}

func (m *Match) participant(userID uint) *Participant {
	for _, p := range m.participants {
		if p.Identity.ID == userID {
			return p
		}
	}
	return nil
}

func (m *Match) allDisconnected() bool {
	for _, p := range m.participants {
		if p.Connected {
			return false
		}
	}
	return true
}

func (m *Match) isConnected(userID uint) bool {
	p := m.participant(userID)
	return p != nil && p.Connected
}
