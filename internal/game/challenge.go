package game

import (
	"time"

	"github.com/google/uuid"
)

// ChallengeStatus is the lifecycle state of a direct challenge.
type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "pending"
	ChallengeAccepted  ChallengeStatus = "accepted"
	ChallengeDeclined  ChallengeStatus = "declined"
	ChallengeCancelled ChallengeStatus = "cancelled"
	ChallengeExpired   ChallengeStatus = "expired"
)

// Challenge is a pending one-to-one invitation.
type Challenge struct {
	ID         string
	Challenger Identity
	Target     Identity
	CreatedAt  time.Time
	Status     ChallengeStatus
}

// pairKey is an unordered identity pair.
type pairKey struct {
	lo, hi uint
}

func makePairKey(a, b uint) pairKey {
	if a < b {
		return pairKey{lo: a, hi: b}
	}
	return pairKey{lo: b, hi: a}
}

// ChallengeRegistry holds all pending challenges. Like Queue it is not
// self-locking: the engine's lobby lock serializes every mutation.
type ChallengeRegistry struct {
	byID   map[string]*Challenge
	byPair map[pairKey]string
}

// NewChallengeRegistry creates an empty registry.
func NewChallengeRegistry() *ChallengeRegistry {
	return &ChallengeRegistry{
		byID:   make(map[string]*Challenge),
		byPair: make(map[pairKey]string),
	}
}

// Create registers a new pending challenge. At most one pending challenge
// may exist for a given unordered pair.
func (r *ChallengeRegistry) Create(challenger, target Identity, now time.Time) (*Challenge, error) {
	if challenger.ID == target.ID {
		return nil, newError(CodeSelfChallenge, "cannot challenge yourself")
	}
	key := makePairKey(challenger.ID, target.ID)
	if _, ok := r.byPair[key]; ok {
		return nil, newError(CodeDuplicateChallenge, "a challenge between these players is already pending")
	}

	ch := &Challenge{
		ID:         uuid.NewString(),
		Challenger: challenger,
		Target:     target,
		CreatedAt:  now,
		Status:     ChallengePending,
	}
	r.byID[ch.ID] = ch
	r.byPair[key] = ch.ID
	return ch, nil
}

// Accept resolves a pending challenge in favor of a match. Only the target
// may accept.
func (r *ChallengeRegistry) Accept(id string, by uint) (*Challenge, error) {
	ch, ok := r.byID[id]
	if !ok {
		return nil, newError(CodeNotFound, "challenge not found")
	}
	if ch.Target.ID != by {
		return nil, newError(CodeNotTarget, "only the challenged player can accept")
	}
	r.remove(ch)
	ch.Status = ChallengeAccepted
	return ch, nil
}

// Decline resolves a pending challenge negatively. Only the target may decline.
func (r *ChallengeRegistry) Decline(id string, by uint) (*Challenge, error) {
	ch, ok := r.byID[id]
	if !ok {
		return nil, newError(CodeNotFound, "challenge not found")
	}
	if ch.Target.ID != by {
		return nil, newError(CodeNotTarget, "only the challenged player can decline")
	}
	r.remove(ch)
	ch.Status = ChallengeDeclined
	return ch, nil
}

// Cancel withdraws a pending challenge. Only the challenger may cancel.
func (r *ChallengeRegistry) Cancel(id string, by uint) (*Challenge, error) {
	ch, ok := r.byID[id]
	if !ok {
		return nil, newError(CodeNotFound, "challenge not found")
	}
	if ch.Challenger.ID != by {
		return nil, newError(CodeNotChallenger, "only the challenger can cancel")
	}
	r.remove(ch)
	ch.Status = ChallengeCancelled
	return ch, nil
}

// RemoveForUser drops every pending challenge involving the given identity,
// as challenger or target, and returns them. Used on disconnect.
func (r *ChallengeRegistry) RemoveForUser(userID uint) []*Challenge {
	var removed []*Challenge
	for _, ch := range r.byID {
		if ch.Challenger.ID == userID || ch.Target.ID == userID {
			r.remove(ch)
			ch.Status = ChallengeCancelled
			removed = append(removed, ch)
		}
	}
	return removed
}

// Expire removes and returns every challenge older than ttl.
func (r *ChallengeRegistry) Expire(now time.Time, ttl time.Duration) []*Challenge {
	var expired []*Challenge
	for _, ch := range r.byID {
		if now.Sub(ch.CreatedAt) >= ttl {
			r.remove(ch)
			ch.Status = ChallengeExpired
			expired = append(expired, ch)
		}
	}
	return expired
}

// Get looks up a pending challenge without mutating the registry.
func (r *ChallengeRegistry) Get(id string) (*Challenge, bool) {
	ch, ok := r.byID[id]
	return ch, ok
}

// HasUser reports whether the identity is party to any pending challenge.
func (r *ChallengeRegistry) HasUser(userID uint) bool {
	for _, ch := range r.byID {
		if ch.Challenger.ID == userID || ch.Target.ID == userID {
			return true
		}
	}
	return false
}

// Len returns the number of pending challenges.
func (r *ChallengeRegistry) Len() int {
	return len(r.byID)
}

func (r *ChallengeRegistry) remove(ch *Challenge) {
	delete(r.byID, ch.ID)
	delete(r.byPair, makePairKey(ch.Challenger.ID, ch.Target.ID))
}
