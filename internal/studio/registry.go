package studio

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultSessionTTL is how long an idle session survives between
// requests before being evicted.
const DefaultSessionTTL = 2 * time.Hour

// Registry holds live sessions keyed by an opaque session id. Idle
// sessions expire after the TTL; images and descriptors are ephemeral
// and die with the session.
type Registry struct {
	mu       sync.Mutex
	sessions *gocache.Cache
	factory  func() *Session
}

// NewRegistry creates a registry. The factory builds a fresh session
// for ids not seen before (or seen too long ago).
func NewRegistry(ttl time.Duration, factory func() *Session) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		sessions: gocache.New(ttl, 10*time.Minute),
		factory:  factory,
	}
}

// Get returns the session for the given id, creating one if needed, and
// refreshes its TTL.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.sessions.Get(id); ok {
		session := v.(*Session)
		r.sessions.SetDefault(id, session)
		return session
	}

	session := r.factory()
	r.sessions.SetDefault(id, session)
	return session
}

// Drop removes a session, if present.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.Delete(id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.ItemCount()
}
