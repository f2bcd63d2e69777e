package ws

import "sync"

// Registry tracks authenticated sessions and how many each user holds open.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	users    map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		users:    make(map[string]int),
	}
}

func (r *Registry) add(s *Session, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.id]; ok {
		return
	}
	r.sessions[s.id] = s
	r.users[userID]++
}

// remove is idempotent.
func (r *Registry) remove(s *Session, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.id]; !ok {
		return false
	}
	delete(r.sessions, s.id)
	if r.users[userID]--; r.users[userID] <= 0 {
		delete(r.users, userID)
	}
	return true
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Connections returns how many live sessions userID holds.
func (r *Registry) Connections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.users[userID]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
