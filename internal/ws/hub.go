package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
	"chat-realtime/internal/ratelimit"
)

// Store is the slice of persistence the hub depends on.
type Store interface {
	FindRoom(ctx context.Context, id string) (models.Room, error)
	FindMembership(ctx context.Context, userID, roomID string) (models.Membership, error)
	FindOrCreateMembership(ctx context.Context, userID, roomID string) (models.Membership, error)
	UpdateLastRead(ctx context.Context, userID, roomID string, at time.Time) error
	InsertMessage(ctx context.Context, roomID, userID, text string) (models.Message, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// Authenticator turns a bearer token into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Principal, error)
}

// Mirror receives a copy of every room broadcast for consumers outside this process.
type Mirror interface {
	PublishRoomEvent(ctx context.Context, roomId, eventType string, frame []byte) error
}

const mirrorQueueSize = 1024

type mirroredEvent struct {
	roomId    string
	eventType string
	frame     []byte
}

// Hub owns the live room state and drives every connection lifecycle transition.
type Hub struct {
	store    Store
	authn    Authenticator
	limiter  ratelimit.Limiter
	mirror   Mirror
	log      *slog.Logger
	now      func() time.Time
	validate *validator.Validate

	maxMessageLength int

	registry *Registry

	// Lock order: mu, then room.mu, then Session.mu.
	mu    sync.Mutex
	rooms map[string]*room

	mirrored chan mirroredEvent
}

type Option func(*Hub)

func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) { h.log = log }
}

func WithMirror(m Mirror) Option {
	return func(h *Hub) { h.mirror = m }
}

func WithMaxMessageLength(n int) Option {
	return func(h *Hub) { h.maxMessageLength = n }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func NewHub(store Store, authn Authenticator, limiter ratelimit.Limiter, opts ...Option) *Hub {
	h := &Hub{
		store:            store,
		authn:            authn,
		limiter:          limiter,
		log:              slog.Default(),
		now:              func() time.Time { return time.Now().UTC() },
		validate:         validator.New(),
		maxMessageLength: 500,
		registry:         NewRegistry(),
		rooms:            make(map[string]*room),
		mirrored:         make(chan mirroredEvent, mirrorQueueSize),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run forwards mirrored room events until ctx is done. Without a mirror it
// just waits for ctx.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("[HUB] Starting hub event loop", "mirror", h.mirror != nil)
	for {
		select {
		case <-ctx.Done():
			h.log.Info("[HUB] Hub event loop stopped")
			return
		case ev := <-h.mirrored:
			if err := h.mirror.PublishRoomEvent(ctx, ev.roomId, ev.eventType, ev.frame); err != nil {
				h.log.Error("[HUB] Error mirroring room event", "room", ev.roomId, "type", ev.eventType, "error", err)
			}
		}
	}
}

func (h *Hub) NewSession(sink Sink) *Session {
	return newSession(sink)
}

// Authenticate verifies token and binds the resulting principal to s.
func (h *Hub) Authenticate(ctx context.Context, s *Session, token string) (models.Principal, error) {
	p, err := h.authn.Authenticate(ctx, token)
	if err != nil {
		return models.Principal{}, err
	}
	if err := h.Attach(s, p); err != nil {
		return models.Principal{}, err
	}
	return p, nil
}

// Attach binds an already verified principal to s and registers it.
func (h *Hub) Attach(s *Session, p models.Principal) error {
	if err := s.authenticate(p); err != nil {
		return err
	}
	h.registry.add(s, p.UserId)
	h.log.Info("[HUB] Session registered", "conn", s.id, "user", p.UserId,
		"connections", h.registry.Connections(p.UserId))
	return nil
}

// Join subscribes s to roomID and broadcasts the new presence snapshot. A
// repeated join from the same session changes nothing and only sends the
// current snapshot back to the caller.
func (h *Hub) Join(ctx context.Context, s *Session, roomID string) ([]models.PresenceUser, error) {
	p, err := s.authenticated()
	if err != nil {
		return nil, err
	}

	rm, err := h.store.FindRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !rm.IsPublic {
		_, err := h.store.FindMembership(ctx, p.UserId, roomID)
		if errors.Is(err, apperr.ErrMembershipNotFound) {
			return nil, apperr.ErrAccessDenied
		}
		if err != nil {
			return nil, err
		}
	}
	if _, err := h.store.FindOrCreateMembership(ctx, p.UserId, roomID); err != nil {
		return nil, err
	}
	if err := h.store.UpdateLastRead(ctx, p.UserId, roomID, h.now()); err != nil {
		h.log.Warn("[HUB] Failed to touch last read on join", "user", p.UserId, "room", roomID, "error", err)
	}

	r := h.acquire(roomID)
	defer h.release(r)

	r.mu.Lock()
	added, err := r.subscribe(s, p.UserId)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	ids, cached := r.present()
	if !added {
		r.mu.Unlock()
		users := h.resolve(ctx, ids, cached)
		s.deliver(h.encode(models.EventRoomPresence, models.PresenceData{RoomId: roomID, UsersOnline: users}))
		return users, nil
	}
	t := r.ticket()
	r.mu.Unlock()

	h.log.Info("[HUB] Joined room", "conn", s.id, "user", p.UserId, "room", roomID, "online", len(ids))

	users := h.resolve(ctx, ids, cached)
	h.broadcast(ctx, r, t, models.EventRoomPresence, models.PresenceData{RoomId: roomID, UsersOnline: users})
	return users, nil
}

// Leave is a no-op when s is not subscribed to roomID.
func (h *Hub) Leave(ctx context.Context, s *Session, roomID string) error {
	p, err := s.authenticated()
	if err != nil {
		return err
	}
	h.leaveRoom(ctx, s, p.UserId, roomID)
	return nil
}

// leaveRoom drops the subscription and, if there was one, broadcasts the
// presence snapshot followed by the typing snapshot.
func (h *Hub) leaveRoom(ctx context.Context, s *Session, userID, roomID string) bool {
	r, ok := h.acquireExisting(roomID)
	if !ok {
		return false
	}
	defer h.release(r)

	r.mu.Lock()
	if !r.unsubscribe(s, userID) {
		r.mu.Unlock()
		return false
	}
	ids, cached := r.present()
	typing := r.typingUsers()
	presenceTurn := r.ticket()
	typingTurn := r.ticket()
	r.mu.Unlock()

	h.log.Info("[HUB] Left room", "conn", s.id, "user", userID, "room", roomID, "online", len(ids))

	users := h.resolve(ctx, ids, cached)
	h.broadcast(ctx, r, presenceTurn, models.EventRoomPresence, models.PresenceData{RoomId: roomID, UsersOnline: users})
	h.broadcast(ctx, r, typingTurn, models.EventTypingUpdate, models.TypingData{RoomId: roomID, UsersTyping: typing})
	return true
}

func (h *Hub) TypingStart(ctx context.Context, s *Session, roomID string) error {
	return h.setTyping(ctx, s, roomID, true)
}

func (h *Hub) TypingStop(ctx context.Context, s *Session, roomID string) error {
	return h.setTyping(ctx, s, roomID, false)
}

// setTyping silently ignores rooms s is not subscribed to.
func (h *Hub) setTyping(ctx context.Context, s *Session, roomID string, typing bool) error {
	p, err := s.authenticated()
	if err != nil {
		return err
	}

	r, ok := h.acquireExisting(roomID)
	if !ok {
		return nil
	}
	defer h.release(r)

	r.mu.Lock()
	if !r.subscribed(s) {
		r.mu.Unlock()
		return nil
	}
	if typing {
		r.typing[p.UserId] = struct{}{}
	} else {
		delete(r.typing, p.UserId)
	}
	users := r.typingUsers()
	t := r.ticket()
	r.mu.Unlock()

	h.broadcast(ctx, r, t, models.EventTypingUpdate, models.TypingData{RoomId: roomID, UsersTyping: users})
	return nil
}

// Disconnect removes s from every room it joined and from the registry. It
// is idempotent and always runs to completion, even if ctx is already done.
func (h *Hub) Disconnect(ctx context.Context, s *Session) {
	p, rooms, ok := s.close()
	if !ok || p == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	slices.Sort(rooms)
	for _, roomID := range rooms {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					h.log.Error("[HUB] Panic while leaving room on disconnect", "conn", s.id, "room", roomID, "panic", rec)
				}
			}()
			h.leaveRoom(ctx, s, p.UserId, roomID)
		}()
	}

	if h.registry.remove(s, p.UserId) {
		h.log.Info("[HUB] Session unregistered", "conn", s.id, "user", p.UserId,
			"rooms", len(rooms), "connections", h.registry.Connections(p.UserId))
	}
}

// SnapshotPresence lists the users currently online in roomID, sorted by id.
func (h *Hub) SnapshotPresence(ctx context.Context, roomID string) ([]models.PresenceUser, error) {
	if _, err := h.store.FindRoom(ctx, roomID); err != nil {
		return nil, err
	}

	r, ok := h.acquireExisting(roomID)
	if !ok {
		return []models.PresenceUser{}, nil
	}
	r.mu.Lock()
	ids, cached := r.present()
	r.mu.Unlock()
	h.release(r)

	return h.resolve(ctx, ids, cached), nil
}

// Shutdown disconnects every registered session and closes its transport.
func (h *Hub) Shutdown(ctx context.Context) {
	sessions := h.registry.All()
	h.log.Info("[HUB] Shutting down", "sessions", len(sessions))
	for _, s := range sessions {
		h.Disconnect(ctx, s)
		s.sink.Close()
	}
}

// Len reports how many rooms currently hold live state.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) acquire(roomID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		r = newRoom(roomID)
		h.rooms[roomID] = r
	}
	r.refs++
	return r
}

func (h *Hub) acquireExisting(roomID string) (*room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		return nil, false
	}
	r.refs++
	return r, true
}

// release drops a reference and forgets the room once nobody holds it and it
// has no state left.
func (h *Hub) release(r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r.refs--
	if r.refs > 0 {
		return
	}
	r.mu.Lock()
	empty := r.empty()
	r.mu.Unlock()
	if empty && h.rooms[r.id] == r {
		delete(h.rooms, r.id)
	}
}

// resolve looks the present users up in one batch. Users the directory
// cannot return, or every user when the lookup fails, fall back to the
// principal cached on their session.
func (h *Hub) resolve(ctx context.Context, ids []string, cached map[string]models.Principal) []models.PresenceUser {
	users := make([]models.PresenceUser, 0, len(ids))
	if len(ids) == 0 {
		return users
	}

	found := make(map[string]models.User, len(ids))
	records, err := h.store.FindUsersByIDs(ctx, ids)
	if err != nil {
		h.log.Warn("[HUB] Presence lookup failed, using cached principals", "error", err)
	}
	for _, u := range records {
		found[u.Id] = u
	}

	for _, id := range ids {
		if u, ok := found[id]; ok {
			users = append(users, models.PresenceUser{Id: u.Id, DisplayName: u.DisplayName, AvatarUrl: u.AvatarUrl})
			continue
		}
		if p, ok := cached[id]; ok {
			users = append(users, models.PresenceUser{Id: p.UserId, DisplayName: p.DisplayName, AvatarUrl: p.AvatarUrl})
		}
	}
	return users
}

// broadcast publishes turn t of r. It must run for every ticket taken, so an
// encoding failure still advances the sequence with an empty slot.
func (h *Hub) broadcast(ctx context.Context, r *room, t uint64, eventType string, data interface{}) {
	frame := h.encode(eventType, data)
	delivered := r.publish(t, frame)
	if frame == nil {
		return
	}
	h.log.Debug("[HUB] Broadcast complete", "room", r.id, "type", eventType, "delivered", delivered)

	if h.mirror == nil {
		return
	}
	select {
	case h.mirrored <- mirroredEvent{roomId: r.id, eventType: eventType, frame: frame}:
	default:
		h.log.Warn("[HUB] Mirror queue full, dropping event", "room", r.id, "type", eventType)
	}
}

func (h *Hub) encode(eventType string, data interface{}) []byte {
	frame, err := encodeEnvelope(eventType, data)
	if err != nil {
		h.log.Error("[HUB] Error encoding event", "type", eventType, "error", fmt.Errorf("encode %s: %w", eventType, err))
		return nil
	}
	return frame
}
