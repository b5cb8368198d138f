package game

import "time"

// QueueEntry is one identity waiting to be paired.
type QueueEntry struct {
	Identity   Identity
	EnqueuedAt time.Time
}

// Queue is the FIFO matchmaking line. Pairing intentionally ignores rating
// proximity: strict arrival order gives bounded wait and determinism.
//
// Queue is not safe for concurrent use on its own; the engine's lobby lock
// serializes every mutation together with the challenge registry and the
// engagement map, so pairing is atomic with respect to enqueue/dequeue.
type Queue struct {
	entries []QueueEntry
	present map[uint]struct{}
}

// NewQueue creates an empty matchmaking queue.
func NewQueue() *Queue {
	return &Queue{
		present: make(map[uint]struct{}),
	}
}

// Push appends an identity. Returns a typed error if it is already waiting.
func (q *Queue) Push(id Identity, now time.Time) error {
	if _, ok := q.present[id.ID]; ok {
		return newError(CodeAlreadyQueued, "already waiting in the matchmaking queue")
	}
	q.entries = append(q.entries, QueueEntry{Identity: id, EnqueuedAt: now})
	q.present[id.ID] = struct{}{}
	return nil
}

// Remove drops an identity from the queue. Idempotent: removing an absent
// identity reports false and changes nothing.
func (q *Queue) Remove(userID uint) bool {
	if _, ok := q.present[userID]; !ok {
		return false
	}
	delete(q.present, userID)
	for i, e := range q.entries {
		if e.Identity.ID == userID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

// PopPair removes and returns the two earliest entries. Entries are kept in
// arrival order, so the head of the slice is always the earliest; insertion
// order breaks timestamp ties.
func (q *Queue) PopPair() (a, b QueueEntry, ok bool) {
	if len(q.entries) < 2 {
		return QueueEntry{}, QueueEntry{}, false
	}
	a, b = q.entries[0], q.entries[1]
	q.entries = q.entries[2:]
	delete(q.present, a.Identity.ID)
	delete(q.present, b.Identity.ID)
	return a, b, true
}

// Contains reports whether an identity is waiting.
func (q *Queue) Contains(userID uint) bool {
	_, ok := q.present[userID]
	return ok
}

// Len returns the number of waiting identities.
func (q *Queue) Len() int {
	return len(q.entries)
}
