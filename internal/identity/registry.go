package identity

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry maps session ids to live sessions. Idle sessions are evicted by
// Sweep.
type Registry struct {
	deps *Deps
	ttl  time.Duration
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	onEvict  []func(sessionID string)
}

func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	return &Registry{
		deps:     &deps,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// OnEvict registers fn to run whenever a session is removed.
func (r *Registry) OnEvict(fn func(sessionID string)) {
	r.mu.Lock()
	r.onEvict = append(r.onEvict, fn)
	r.mu.Unlock()
}

func (r *Registry) Create() *Session {
	s := newSession(uuid.NewString(), r.deps, r.now())
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s
}

// Ephemeral returns a session that is not tracked until Keep is called.
// Anonymous requests use one so they leave nothing behind.
func (r *Registry) Ephemeral() *Session {
	return newSession(uuid.NewString(), r.deps, r.now())
}

// Keep tracks s if it is not tracked yet.
func (r *Registry) Keep(s *Session) {
	r.mu.Lock()
	if _, ok := r.sessions[s.id]; !ok {
		r.sessions[s.id] = s
	}
	r.mu.Unlock()
}

// Get returns a live session and marks it active.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

// Attach returns the session for id, recreating it empty if it is gone.
func (r *Registry) Attach(id string) *Session {
	if id == "" {
		return r.Create()
	}
	if s, ok := r.Get(id); ok {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := newSession(id, r.deps, r.now())
	r.sessions[id] = s
	return s
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	hooks := r.onEvict
	r.mu.Unlock()
	if ok {
		for _, fn := range hooks {
			fn(id)
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the TTL and reports how many
// were removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)
	var stale []string
	r.mu.RLock()
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()
	for _, id := range stale {
		r.Remove(id)
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				log.Printf("[session] evicted %d idle sessions", n)
			}
		}
	}
}
