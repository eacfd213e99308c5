package dj

import (
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Verdict is an operator decision on a pending applicant.
type Verdict int

const (
	// VerdictApproved admits the applicant to the roster.
	VerdictApproved Verdict = iota

	// VerdictDenied closes the applicant's socket with the denied code.
	VerdictDenied
)

// Pending is a connect-code-authenticated applicant waiting for an
// operator decision. Its socket handler blocks on Decision while
// answering pings until the verdict arrives or the peer disconnects.
type Pending struct {
	ID           string
	Name         string
	DirectMode   bool
	Priority     int
	Code         string
	WaitingSince time.Time
	Sock         *websocket.Conn

	decision chan Verdict
}

// Decision returns the channel the applicant's handler waits on.
func (p *Pending) Decision() <-chan Verdict {
	return p.decision
}

// decide delivers the verdict exactly once; later calls are dropped.
func (p *Pending) decide(v Verdict) {
	select {
	case p.decision <- v:
	default:
	}
}

// PendingQueue holds applicants in arrival order. A dj_id can never be in
// both the pending queue and the roster; the admission path checks the
// roster before inserting here and again when approving.
type PendingQueue struct {
	mu    sync.Mutex
	m     map[string]*Pending
	order []string
}

// NewPendingQueue creates an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{m: make(map[string]*Pending)}
}

// Add inserts a new applicant and returns it. Returns [ErrDuplicate]
// when the id is already waiting.
func (q *PendingQueue) Add(id, name string, directMode bool, priority int, code string, sock *websocket.Conn) (*Pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.m[id]; ok {
		return nil, ErrDuplicate
	}
	p := &Pending{
		ID:           id,
		Name:         name,
		DirectMode:   directMode,
		Priority:     priority,
		Code:         code,
		WaitingSince: time.Now(),
		Sock:         sock,
		decision:     make(chan Verdict, 1),
	}
	q.m[id] = p
	q.order = append(q.order, id)
	return p, nil
}

// Approve removes the applicant and signals its handler to proceed.
// Returns the entry, or nil when the id is not pending.
func (q *PendingQueue) Approve(id string) *Pending {
	p := q.take(id)
	if p != nil {
		p.decide(VerdictApproved)
	}
	return p
}

// Deny removes the applicant and signals its handler to close the socket.
func (q *PendingQueue) Deny(id string) *Pending {
	p := q.take(id)
	if p != nil {
		p.decide(VerdictDenied)
	}
	return p
}

// Remove drops an applicant without a verdict (peer disconnected while
// waiting). Returns the entry, or nil when absent.
func (q *PendingQueue) Remove(id string) *Pending {
	return q.take(id)
}

// List returns the waiting applicants in arrival order.
func (q *PendingQueue) List() []*Pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Pending, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.m[id])
	}
	return out
}

// Len reports the queue size.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.m)
}

func (q *PendingQueue) take(id string) *Pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.m[id]
	if !ok {
		return nil
	}
	delete(q.m, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return p
}
