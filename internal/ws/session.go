package ws

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
)

// Sink receives encoded outbound frames for one session. Deliver must not
// block; it reports false when the frame was dropped.
type Sink interface {
	Deliver(frame []byte) bool
	Close()
}

// Session is one client connection as seen by the hub. Its principal is set
// once by Authenticate and never changes afterwards.
type Session struct {
	id   string
	sink Sink

	mu        sync.Mutex
	principal *models.Principal
	rooms     map[string]struct{}
	closed    bool
}

func newSession(sink Sink) *Session {
	return &Session{
		id:    uuid.NewString(),
		sink:  sink,
		rooms: make(map[string]struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Principal() (models.Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.principal == nil {
		return models.Principal{}, false
	}
	return *s.principal, true
}

// Rooms returns the subscribed room ids, sorted.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := lo.Keys(s.rooms)
	slices.Sort(rooms)
	return rooms
}

func (s *Session) deliver(frame []byte) bool {
	if frame == nil {
		return false
	}
	return s.sink.Deliver(frame)
}

func (s *Session) authenticate(p models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperr.ErrSessionClosed
	}
	if s.principal != nil {
		return apperr.ErrAlreadyAuthenticated
	}
	s.principal = &p
	return nil
}

func (s *Session) authenticated() (models.Principal, error) {
	p, ok := s.Principal()
	if !ok {
		return models.Principal{}, apperr.ErrUnauthorized
	}
	return p, nil
}

// close marks the session closed and hands back what cleanup must undo.
// Only the first call reports ok.
func (s *Session) close() (p *models.Principal, rooms []string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, false
	}
	s.closed = true
	return s.principal, lo.Keys(s.rooms), true
}
