package realtime

import (
	"sync"

	"github.com/samber/lo"
)

// Registry maps user ids to the sockets they hold open on this instance.
// A user connected from several devices has several entries.
type Registry struct {
	mu      sync.RWMutex
	sockets map[string][]Socket
}

func NewRegistry() *Registry {
	return &Registry{sockets: make(map[string][]Socket)}
}

// Add registers s for userID. Adding the same socket twice is a no-op.
func (r *Registry) Add(userID string, s Socket) {
	if userID == "" || s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.sockets[userID]
	if lo.ContainsBy(existing, func(o Socket) bool { return o.ID() == s.ID() }) {
		return
	}
	r.sockets[userID] = append(existing, s)
}

// Remove deregisters s. The user key is dropped with its last socket.
func (r *Registry) Remove(userID string, s Socket) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	remaining := lo.Reject(r.sockets[userID], func(o Socket, _ int) bool { return o.ID() == s.ID() })
	if len(remaining) == 0 {
		delete(r.sockets, userID)
		return
	}
	r.sockets[userID] = remaining
}

// Get returns a snapshot of userID's local sockets.
func (r *Registry) Get(userID string) []Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	found := r.sockets[userID]
	if len(found) == 0 {
		return nil
	}
	out := make([]Socket, len(found))
	copy(out, found)
	return out
}

// Count is the number of distinct users with at least one local socket.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sockets)
}
