package checklist

import (
	"sync"
	"time"
)

// Registry is the process-wide map from session identifier to [State].
//
// A State is created on the first turn of a session and lives until an
// external expiry policy calls [Registry.Evict] or [Registry.EvictIdle].
// Components never look states up implicitly; the turn path fetches the state
// here once and passes it down explicitly.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	locks    map[string]*turnLock
	now      func() time.Time
}

// turnLock serialises turns of one session. refs counts holders and waiters
// so the lock is dropped once nobody needs it.
type turnLock struct {
	mu   sync.Mutex
	refs int
}

type entry struct {
	state    *State
	lastSeen time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		locks:    make(map[string]*turnLock),
		now:      time.Now,
	}
}

// GetOrCreate returns the state for sessionID, creating it on first use.
// The second return value reports whether a new state was created.
func (r *Registry) GetOrCreate(sessionID string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sessionID]; ok {
		e.lastSeen = r.now()
		return e.state, false
	}
	st := New(sessionID)
	r.sessions[sessionID] = &entry{state: st, lastSeen: r.now()}
	return st, true
}

// Lock blocks until the caller holds the turn lock of sessionID and returns
// the function releasing it. Every path that reads a state and writes back a
// decision, such as the turn pipeline and lead submission, runs under it. The
// session need not exist yet.
func (r *Registry) Lock(sessionID string) (unlock func()) {
	r.mu.Lock()
	l, ok := r.locks[sessionID]
	if !ok {
		l = &turnLock{}
		r.locks[sessionID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			r.mu.Lock()
			if l.refs--; l.refs == 0 {
				delete(r.locks, sessionID)
			}
			r.mu.Unlock()
		})
	}
}

// Get returns the state for sessionID without creating it.
func (r *Registry) Get(sessionID string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.state, true
}

// Evict drops the state for sessionID. It reports whether a state existed.
func (r *Registry) Evict(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	delete(r.sessions, sessionID)
	return true
}

// EvictIdle drops every state that has not been touched via
// [Registry.GetOrCreate] for longer than maxIdle and returns how many were
// removed.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxIdle)
	n := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
