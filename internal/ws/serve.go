package ws

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"chat-realtime/internal/auth"
	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
)

// Handler exposes the hub over HTTP.
type Handler struct {
	hub        *Hub
	upgrader   websocket.Upgrader
	sendBuffer int

	// ctx outlives individual requests; connection pumps run under it.
	ctx context.Context
}

// NewHandler builds the HTTP handlers. An empty origins list accepts any origin.
func NewHandler(ctx context.Context, hub *Hub, origins []string, sendBuffer int) *Handler {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, origin)
			},
		},
		sendBuffer: sendBuffer,
		ctx:        ctx,
	}
}

// ServeWS authenticates the handshake and upgrades it. Bad credentials are
// refused with 401 before any websocket is opened.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	log := h.hub.log.With("from", r.RemoteAddr)
	log.Debug("[WS] New WebSocket connection request")

	principal, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("[WS] Failed to upgrade connection", "user", principal.UserId, "error", err)
		return
	}

	client := newClient(h.hub, conn, h.sendBuffer)
	if err := h.hub.Attach(client.session, principal); err != nil {
		log.Error("[WS] Failed to register session", "user", principal.UserId, "error", err)
		client.Close()
		conn.Close()
		return
	}
	log.Info("[WS] Connection upgraded successfully", "user", principal.UserId, "conn", client.session.id)

	go client.WritePump()
	go client.ReadPump(h.ctx)
}

// ServePresence answers GET /rooms/{id}/presence with the current snapshot.
func (h *Handler) ServePresence(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	roomID := r.PathValue("id")
	users, err := h.hub.SnapshotPresence(r.Context(), roomID)
	switch {
	case errors.Is(err, apperr.ErrRoomNotFound):
		http.Error(w, MsgRoomNotFound, http.StatusNotFound)
		return
	case err != nil:
		h.hub.log.Error("[WS] Failed to snapshot presence", "room", roomID, "error", err)
		http.Error(w, MsgInternal, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(models.PresenceData{RoomId: roomID, UsersOnline: users}); err != nil {
		h.hub.log.Error("[WS] Failed to write presence", "room", roomID, "error", err)
	}
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	token := auth.ExtractTokenFromRequest(r)
	principal, err := h.hub.authn.Authenticate(r.Context(), token)
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		h.hub.log.Warn("[WS] Token validation failed", "from", r.RemoteAddr, "error", err)
		http.Error(w, MsgUnauthorized, http.StatusUnauthorized)
		return models.Principal{}, false
	case err != nil:
		h.hub.log.Error("[WS] Failed to authenticate", "from", r.RemoteAddr, "error", err)
		http.Error(w, MsgInternal, http.StatusInternalServerError)
		return models.Principal{}, false
	}
	return principal, true
}
