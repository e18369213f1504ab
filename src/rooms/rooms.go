package rooms

import "sync"

// Tracker records which conversation rooms each connection has joined.
//
// Two indexes are kept in step: room -> members for routing and
// member -> rooms for cleanup on disconnect. Rooms are created on first join
// and dropped when their last member leaves.
type Tracker[H comparable] struct {
	mu     sync.RWMutex
	byRoom map[string]map[H]struct{}
	byConn map[H]map[string]struct{}
}

// New creates an empty tracker.
func New[H comparable]() *Tracker[H] {
	return &Tracker[H]{
		byRoom: make(map[string]map[H]struct{}),
		byConn: make(map[H]map[string]struct{}),
	}
}

// Join adds h to a room. It reports whether h was not already a member.
func (t *Tracker[H]) Join(h H, room string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	joined := t.byConn[h]
	if joined == nil {
		joined = make(map[string]struct{})
		t.byConn[h] = joined
	}
	if _, ok := joined[room]; ok {
		return false
	}
	joined[room] = struct{}{}

	members := t.byRoom[room]
	if members == nil {
		members = make(map[H]struct{})
		t.byRoom[room] = members
	}
	members[h] = struct{}{}
	return true
}

// Leave removes h from a room. It reports whether h was a member.
func (t *Tracker[H]) Leave(h H, room string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leave(h, room)
}

func (t *Tracker[H]) leave(h H, room string) bool {
	joined, ok := t.byConn[h]
	if !ok {
		return false
	}
	if _, ok := joined[room]; !ok {
		return false
	}
	delete(joined, room)
	if len(joined) == 0 {
		delete(t.byConn, h)
	}
	if members, ok := t.byRoom[room]; ok {
		delete(members, h)
		if len(members) == 0 {
			delete(t.byRoom, room)
		}
	}
	return true
}

// LeaveAll removes h from every room it joined and returns those rooms.
func (t *Tracker[H]) LeaveAll(h H) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	joined := t.byConn[h]
	left := make([]string, 0, len(joined))
	for room := range joined {
		left = append(left, room)
	}
	for _, room := range left {
		t.leave(h, room)
	}
	return left
}

// Rooms returns the rooms h has joined.
func (t *Tracker[H]) Rooms(h H) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	joined := t.byConn[h]
	out := make([]string, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	return out
}

// IsMember reports whether h has joined room.
func (t *Tracker[H]) IsMember(h H, room string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byRoom[room][h]
	return ok
}

// Members returns the handles currently in room.
func (t *Tracker[H]) Members(room string) []H {
	t.mu.RLock()
	defer t.mu.RUnlock()
	members := t.byRoom[room]
	out := make([]H, 0, len(members))
	for h := range members {
		out = append(out, h)
	}
	return out
}

// Counts returns room names with their member counts.
func (t *Tracker[H]) Counts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int, len(t.byRoom))
	for room, members := range t.byRoom {
		out[room] = len(members)
	}
	return out
}
