package game

import "encoding/json"

// Inbound event names accepted from clients.
const (
	EvtJoinQueue        = "join_queue"
	EvtLeaveQueue       = "leave_queue"
	EvtSendChallenge    = "send_challenge"
	EvtAcceptChallenge  = "accept_challenge"
	EvtDeclineChallenge = "decline_challenge"
	EvtCancelChallenge  = "cancel_challenge"
	EvtTap              = "tap"
)

// ClientEvent is the envelope for all inbound client messages.
// Fields beyond Type are interpreted per event; validation happens
// before dispatch into the engine.
type ClientEvent struct {
	Type        string `json:"type" validate:"required"`
	TargetID    uint   `json:"target_id,omitempty"`
	ChallengeID string `json:"challenge_id,omitempty"`
	MatchID     string `json:"match_id,omitempty"`
	ClientTS    int64  `json:"client_ts,omitempty"`
}

// ParseClientEvent decodes a raw inbound frame.
func ParseClientEvent(data []byte) (*ClientEvent, error) {
	var evt ClientEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, newError(CodeBadPayload, "malformed event payload")
	}
	if evt.Type == "" {
		return nil, newError(CodeBadPayload, "missing event type")
	}
	return &evt, nil
}

// Outbound events. Every struct carries its own Type tag so frames are
// self-describing on the wire.

// QueueJoined confirms a successful join_queue.
type QueueJoined struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
}

// QueueLeft confirms the identity is no longer queued.
type QueueLeft struct {
	Type string `json:"type"`
}

// ChallengeReceived notifies the target of a new pending challenge.
type ChallengeReceived struct {
	Type             string `json:"type"`
	ChallengeID      string `json:"challenge_id"`
	ChallengerID     uint   `json:"challenger_id"`
	ChallengerHandle string `json:"challenger_handle"`
	ChallengerRating int    `json:"challenger_rating"`
	ExpiresAt        int64  `json:"expires_at"`
}

// ChallengeResolved notifies both parties of a challenge outcome.
// Outcome is one of "accepted", "declined", "cancelled", "expired".
type ChallengeResolved struct {
	Type        string `json:"type"`
	ChallengeID string `json:"challenge_id"`
	Outcome     string `json:"outcome"`
}

// OpponentSummary describes one rival in a match_start frame.
type OpponentSummary struct {
	UserID uint   `json:"user_id"`
	Handle string `json:"handle"`
	Rating int    `json:"rating"`
}

// MatchStart announces a new match with its countdown deadline.
type MatchStart struct {
	Type           string            `json:"type"`
	MatchID        string            `json:"match_id"`
	Opponents      []OpponentSummary `json:"opponents"`
	FinishDistance int               `json:"finish_distance"`
	RaceBeginsAt   int64             `json:"race_begins_at"` // unix millis
}

// ParticipantSnapshot is one participant's progress within a race_update
// or match_end frame.
type ParticipantSnapshot struct {
	UserID      uint `json:"user_id"`
	Distance    int  `json:"distance"`
	Taps        int  `json:"taps"`
	Rank        int  `json:"rank,omitempty"` // 0 until finished
	DNF         bool `json:"dnf,omitempty"`
	Connected   bool `json:"connected"`
	RatingDelta int  `json:"rating_delta,omitempty"` // match_end only
}

// RaceUpdate is the periodic tick broadcast. Clients discard frames whose
// TickSeq is not greater than the last one they applied.
type RaceUpdate struct {
	Type         string                `json:"type"`
	MatchID      string                `json:"match_id"`
	TickSeq      uint64                `json:"tick_seq"`
	Participants []ParticipantSnapshot `json:"participants"`
}

// MatchEnd carries final standings and rating deltas.
type MatchEnd struct {
	Type      string                `json:"type"`
	MatchID   string                `json:"match_id"`
	Cancelled bool                  `json:"cancelled"`
	Standings []ParticipantSnapshot `json:"standings"`
}

// DisconnectNotice tells a client that a peer dropped.
type DisconnectNotice struct {
	Type       string `json:"type"`
	PeerID     uint   `json:"peer_id"`
	PeerHandle string `json:"peer_handle"`
	Reason     string `json:"reason"`
}

// ErrorEvent is sent only to the offending connection.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Outbound event type tags.
const (
	TypeQueueJoined       = "queue_joined"
	TypeQueueLeft         = "queue_left"
	TypeChallengeReceived = "challenge_received"
	TypeChallengeResolved = "challenge_resolved"
	TypeMatchStart        = "match_start"
	TypeRaceUpdate        = "race_update"
	TypeMatchEnd          = "match_end"
	TypeDisconnectNotice  = "disconnect_notice"
	TypeError             = "error"
)

// NewErrorEvent wraps a typed game error for the wire.
func NewErrorEvent(e *Error) ErrorEvent {
	return ErrorEvent{Type: TypeError, Code: e.Code, Message: e.Message}
}
