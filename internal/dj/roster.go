package dj

import (
	"errors"
	"slices"
	"sync"
)

// Roster errors.
var (
	// ErrDuplicate means a session for this DJ id already exists; the new
	// socket must be closed with the duplicate policy code.
	ErrDuplicate = errors.New("dj: already connected")

	// ErrUnknown means the DJ id is not in the roster.
	ErrUnknown = errors.New("dj: unknown dj id")
)

// Roster is the ordered set of admitted DJs with at most one active.
// All mutations happen under one mutex so roster membership, queue order
// and the active id always move as a unit.
type Roster struct {
	mu     sync.Mutex
	conns  map[string]*Conn
	queue  []string
	active string
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{conns: make(map[string]*Conn)}
}

// Add admits a DJ at the back of the queue. Returns [ErrDuplicate] when
// the id is already present.
func (r *Roster) Add(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID]; ok {
		return ErrDuplicate
	}
	r.conns[c.ID] = c
	r.queue = append(r.queue, c.ID)

	// First DJ in becomes active.
	if r.active == "" {
		r.active = c.ID
	}
	return nil
}

// Remove takes a DJ out of the roster. When the departing DJ was active,
// the replacement is chosen immediately under the same lock: lowest
// priority number wins, queue position breaks ties. Returns the removed
// connection (nil if absent) and whether an active hand-off happened.
func (r *Roster) Remove(id string) (removed *Conn, wasActive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	r.queue = slices.DeleteFunc(r.queue, func(q string) bool { return q == id })

	if r.active == id {
		r.active = r.pickLocked()
		return c, true
	}
	return c, false
}

// SetActive designates the active DJ. An empty id clears the active slot.
func (r *Roster) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		r.active = ""
		return nil
	}
	if _, ok := r.conns[id]; !ok {
		return ErrUnknown
	}
	r.active = id
	return nil
}

// Active returns the active connection, or nil when there is none.
func (r *Roster) Active() *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == "" {
		return nil
	}
	return r.conns[r.active]
}

// ActiveID returns the active DJ id, or "".
func (r *Roster) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Get looks up a connection by id.
func (r *Roster) Get(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// List returns the connections in queue order.
func (r *Roster) List() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Conn, 0, len(r.queue))
	for _, id := range r.queue {
		out = append(out, r.conns[id])
	}
	return out
}

// Len reports the roster size.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Reorder applies an operator-supplied queue order. Unknown ids are
// ignored; known ids missing from the request keep their relative order
// at the back.
func (r *Roster) Reorder(order []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]string, 0, len(r.queue))
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		if _, ok := r.conns[id]; ok && !seen[id] {
			next = append(next, id)
			seen[id] = true
		}
	}
	for _, id := range r.queue {
		if !seen[id] {
			next = append(next, id)
		}
	}
	r.queue = next
}

// AutoSwitch re-picks the active DJ by priority and returns the new
// active connection (nil when the roster is empty).
func (r *Roster) AutoSwitch() *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = r.pickLocked()
	if r.active == "" {
		return nil
	}
	return r.conns[r.active]
}

// pickLocked selects the best candidate: lowest priority number, queue
// position as tiebreaker. Must be called with r.mu held.
func (r *Roster) pickLocked() string {
	best := ""
	bestPrio := 0
	for _, id := range r.queue {
		c := r.conns[id]
		if best == "" || c.Priority < bestPrio {
			best = id
			bestPrio = c.Priority
		}
	}
	return best
}
