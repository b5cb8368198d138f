package websocket

import (
	"encoding/json"
	"log"
	"sync"
)

// Registry maps authenticated identities to their live connections.
// Invariant: at most one Client is current per identity; a new Client for
// the same identity supersedes the old one, which is closed normally and
// does NOT trigger disconnect cleanup.
type Registry struct {
	mu      sync.RWMutex
	clients map[uint]*Client

	// OnDisconnect is invoked exactly once per genuine disconnect, i.e.
	// when the closing connection was still current for its identity.
	// Wired to the engine's disconnection coordinator.
	OnDisconnect func(userID uint)
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[uint]*Client),
	}
}

// Bind registers the client as current for its identity and closes any
// prior connection. Returns whether a prior connection was superseded.
func (r *Registry) Bind(c *Client) bool {
	r.mu.Lock()
	prev, had := r.clients[c.identity.ID]
	r.clients[c.identity.ID] = c
	r.mu.Unlock()

	if had && prev != c {
		prev.closeSuperseded()
		log.Printf("🔁 User %d reconnected, previous connection superseded", c.identity.ID)
	}
	return had
}

// Unbind removes the mapping only if the closing client is still current.
// Stale closes of superseded connections are no-ops.
func (r *Registry) Unbind(c *Client) {
	r.mu.Lock()
	current, ok := r.clients[c.identity.ID]
	genuine := ok && current == c
	if genuine {
		delete(r.clients, c.identity.ID)
	}
	r.mu.Unlock()

	if genuine && r.OnDisconnect != nil {
		r.OnDisconnect(c.identity.ID)
	}
}

// Send marshals the event and delivers it to the identity's current
// connection. Offline recipients and full buffers drop silently.
func (r *Registry) Send(userID uint, event interface{}) {
	r.mu.RLock()
	c, ok := r.clients[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("❌ Failed to marshal event for user %d: %v", userID, err)
		return
	}

	select {
	case c.send <- message:
	default:
		log.Printf("⚠️ User %d send buffer full, dropping frame", userID)
	}
}

// IsOnline reports whether the identity has a live connection.
func (r *Registry) IsOnline(userID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// Count returns the number of connected identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
