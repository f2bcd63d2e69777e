package ws

import (
	"slices"
	"sync"

	"github.com/samber/lo"

	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
)

// room holds the live state of one chat room. Every field is guarded by mu.
//
// State changes are linearized by mu. Each change that must be broadcast
// takes a ticket while still holding mu; publish then delivers tickets strictly
// in order, so a broadcast whose payload needs a storage lookup cannot overtake
// or be overtaken by the broadcasts around it.
type room struct {
	id string

	mu          sync.Mutex
	turn        *sync.Cond
	presence    map[string]int
	typing      map[string]struct{}
	subscribers map[*Session]struct{}
	issued      uint64
	served      uint64

	// refs is guarded by the hub's rooms lock, not mu.
	refs int
}

func newRoom(id string) *room {
	r := &room{
		id:          id,
		presence:    make(map[string]int),
		typing:      make(map[string]struct{}),
		subscribers: make(map[*Session]struct{}),
	}
	r.turn = sync.NewCond(&r.mu)
	return r
}

// subscribe adds s for userID. It reports false when s already subscribes,
// so a repeated join from one session never counts twice. Caller holds r.mu.
func (r *room) subscribe(s *Session, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, apperr.ErrSessionClosed
	}
	if _, ok := r.subscribers[s]; ok {
		return false, nil
	}
	r.subscribers[s] = struct{}{}
	s.rooms[r.id] = struct{}{}
	r.presence[userID]++
	return true, nil
}

// unsubscribe reverses subscribe and clears the user's typing flag. Caller holds r.mu.
func (r *room) unsubscribe(s *Session, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := r.subscribers[s]; !ok {
		return false
	}
	delete(r.subscribers, s)
	delete(s.rooms, r.id)

	if r.presence[userID]--; r.presence[userID] <= 0 {
		delete(r.presence, userID)
	}
	delete(r.typing, userID)
	return true
}

func (r *room) subscribed(s *Session) bool {
	_, ok := r.subscribers[s]
	return ok
}

// present returns the sorted ids of users with at least one live session,
// along with the principals cached on those sessions. Caller holds r.mu.
func (r *room) present() ([]string, map[string]models.Principal) {
	ids := lo.Keys(r.presence)
	slices.Sort(ids)

	cached := make(map[string]models.Principal, len(ids))
	for s := range r.subscribers {
		if p, ok := s.Principal(); ok {
			cached[p.UserId] = p
		}
	}
	return ids, cached
}

// typingUsers returns the sorted typing set. Caller holds r.mu.
func (r *room) typingUsers() []string {
	users := lo.Keys(r.typing)
	slices.Sort(users)
	return users
}

func (r *room) empty() bool {
	return len(r.subscribers) == 0 && len(r.presence) == 0 && len(r.typing) == 0
}

// ticket reserves the next broadcast slot. Caller holds r.mu.
func (r *room) ticket() uint64 {
	r.issued++
	return r.issued
}

// publish waits for ticket t's turn and hands frame to every current
// subscriber. A nil frame only advances the sequence. Every ticket must be
// published exactly once or later broadcasts in the room stall.
func (r *room) publish(t uint64, frame []byte) (delivered int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.served+1 != t {
		r.turn.Wait()
	}
	if frame != nil {
		for s := range r.subscribers {
			if s.deliver(frame) {
				delivered++
			}
		}
	}
	r.served = t
	r.turn.Broadcast()
	return delivered
}
