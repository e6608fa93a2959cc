package realtime

import (
	"sync"

	"github.com/samber/lo"
)

// Rooms tracks room membership of the sockets connected to this instance.
type Rooms struct {
	mu          sync.RWMutex
	all         map[string]Socket
	members     map[string]map[string]Socket // room -> socket id -> socket
	memberships map[string]map[string]struct{} // socket id -> rooms
}

func NewRooms() *Rooms {
	return &Rooms{
		all:         make(map[string]Socket),
		members:     make(map[string]map[string]Socket),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Connect makes s reachable by broadcasts.
func (r *Rooms) Connect(s Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all[s.ID()] = s
}

// Disconnect removes s from every room it joined and from broadcasts.
func (r *Rooms) Disconnect(s Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := s.ID()
	for room := range r.memberships[id] {
		r.leaveLocked(room, id)
	}
	delete(r.memberships, id)
	delete(r.all, id)
}

// Join adds s to room and reports whether s is a member afterwards. Joining
// twice is a no-op, and a socket that is not connected is never added.
func (r *Rooms) Join(room string, s Socket) bool {
	if room == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := s.ID()
	if _, connected := r.all[id]; !connected {
		return false
	}
	if r.members[room] == nil {
		r.members[room] = make(map[string]Socket)
	}
	r.members[room][id] = s
	if r.memberships[id] == nil {
		r.memberships[id] = make(map[string]struct{})
	}
	r.memberships[id][room] = struct{}{}
	return true
}

// Leave removes s from room. Leaving a room not joined is a no-op.
func (r *Rooms) Leave(room string, s Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, s.ID())
}

func (r *Rooms) leaveLocked(room, id string) {
	if set, ok := r.members[room]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	if set, ok := r.memberships[id]; ok {
		delete(set, room)
	}
}

// Members returns a snapshot of the local sockets in room.
func (r *Rooms) Members(room string) []Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.members[room])
}

// RoomsOf lists the rooms s has joined.
func (r *Rooms) RoomsOf(s Socket) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.memberships[s.ID()])
}

// All returns a snapshot of every connected local socket.
func (r *Rooms) All() []Socket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.all)
}

// Len is the number of connected local sockets.
func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}
