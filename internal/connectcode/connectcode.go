// Package connectcode issues and validates single-use, TTL-bounded
// connect codes for the operator-approval admission path.
//
// Codes have the shape WORD-XXXX, drawn from a small word list and an
// alphabet with the confusable characters O/0/I/1/L removed, so they can
// be read out loud over voice chat.
package connectcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"
)

// ErrInvalid is returned by ValidateAndConsume for absent, expired, or
// already-used codes. The caller must not distinguish the three cases to
// the peer.
var ErrInvalid = errors.New("connectcode: invalid connect code")

// DefaultTTL is the code lifetime when the operator does not request one.
const DefaultTTL = 30 * time.Minute

// words is the confusable-free vocabulary for the code prefix.
var words = []string{
	"BEAT", "BASS", "DROP", "WAVE", "KICK", "SYNC", "LOOP", "VIBE",
	"RAVE", "FUNK", "JAZZ", "ROCK", "FLOW", "PEAK", "PUMP", "TUNE",
	"PLAY", "SPIN", "FADE", "RISE", "BOOM", "DRUM", "HIGH", "DEEP",
}

// alphabet is the suffix character set, without O/0/I/1/L.
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Code is one issued connect code.
type Code struct {
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// Valid reports whether the code can still be consumed at time now.
func (c Code) Valid(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}

// Registry holds issued codes. Safe for concurrent use; consumption is
// atomic so two racing auth attempts can never both succeed on the same
// code.
type Registry struct {
	mu    sync.Mutex
	codes map[string]*Code
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		codes: make(map[string]*Code),
		now:   time.Now,
	}
}

// Generate issues a new code with the given TTL (DefaultTTL when ttl <= 0)
// and stores it in the registry. Randomness comes from crypto/rand.
func (r *Registry) Generate(ttl time.Duration) (Code, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	word, err := pick(len(words))
	if err != nil {
		return Code{}, fmt.Errorf("connectcode: random word: %w", err)
	}
	suffix := make([]byte, 4)
	for i := range suffix {
		idx, err := pick(len(alphabet))
		if err != nil {
			return Code{}, fmt.Errorf("connectcode: random suffix: %w", err)
		}
		suffix[i] = alphabet[idx]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	c := &Code{
		Code:      words[word] + "-" + string(suffix),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	r.codes[c.Code] = c
	return *c, nil
}

// ValidateAndConsume atomically looks up code and marks it used. It
// returns [ErrInvalid] when the code is absent, expired, or was already
// consumed.
func (r *Registry) ValidateAndConsume(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[code]
	if !ok || !c.Valid(r.now()) {
		return ErrInvalid
	}
	c.Used = true
	return nil
}

// Revoke removes a code regardless of state. Reports whether it existed.
func (r *Registry) Revoke(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.codes[code]
	delete(r.codes, code)
	return ok
}

// GC drops every code that is no longer valid.
func (r *Registry) GC() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for k, c := range r.codes {
		if !c.Valid(now) {
			delete(r.codes, k)
		}
	}
}

// List returns a snapshot of all stored codes sorted by creation time.
func (r *Registry) List() []Code {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Code, 0, len(r.codes))
	for _, c := range r.codes {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// pick returns a uniform random index in [0, n).
func pick(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
