package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/bmsc/comms/internal/core/domain"
	"github.com/bmsc/comms/internal/core/port"
	"github.com/bmsc/comms/internal/core/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the web client's host is pinned down
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	userID domain.UserID
	conn   *websocket.Conn

	writeMu sync.Mutex
}

func (c *wsClient) UserID() domain.UserID {
	return c.userID
}

// Send is safe for concurrent use; watch callbacks and the read loop may
// both push to the same connection.
func (c *wsClient) Send(event string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(map[string]any{
		"event":   event,
		"payload": payload,
	})
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}

type wsRequest struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id,omitempty"`
	Text   string `json:"text,omitempty"`
	Status string `json:"status,omitempty"`
}

type ringWatch struct {
	cancel port.CancelFunc
	conns  int
}

// retainRing starts the user's incoming-call watch on their first connection
// and bumps the refcount on every later one. Delivery goes through the hub
// so a ring reaches every tab the user holds.
func (h *Handler) retainRing(userID domain.UserID) {
	h.ringMu.Lock()
	defer h.ringMu.Unlock()

	if w, ok := h.rings[userID]; ok {
		w.conns++
		return
	}
	w := &ringWatch{conns: 1}
	h.rings[userID] = w

	cancel, err := h.Calls.WatchIncoming(context.Background(), userID, func(ev service.IncomingEvent) {
		if ev.Canceled {
			if !h.Hub.SendToUser(userID, "call_canceled", map[string]string{"session_key": ev.SessionKey}) {
				log.Warn().Str("user_id", userID.String()).Str("session", ev.SessionKey).Msg("No connection for call cancellation")
			}
			return
		}
		if !h.Hub.SendToUser(userID, "incoming_call", ev.Signal) {
			log.Warn().Str("user_id", userID.String()).Str("session", ev.SessionKey).Msg("No connection for incoming call")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to watch incoming calls")
		return
	}
	w.cancel = cancel
}

// releaseRing drops one connection's hold; the watch is canceled with the
// last one.
func (h *Handler) releaseRing(userID domain.UserID) {
	h.ringMu.Lock()
	defer h.ringMu.Unlock()

	w, ok := h.rings[userID]
	if !ok {
		return
	}
	w.conns--
	if w.conns > 0 {
		return
	}
	delete(h.rings, userID)
	if w.cancel != nil {
		w.cancel()
	}
}

// ServeWS is the real-time connection for one signed-in user: it pushes
// incoming-call rings and chat messages down, and accepts chat sends and
// presence updates up. Every watch opened here is canceled when the
// connection goes away, whatever the reason.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &wsClient{userID: userID, conn: conn}
	l := log.With().Str("user_id", userID.String()).Logger()
	l.Info().Msg("New client connected")

	h.Hub.Register(client)
	h.retainRing(userID)

	// r.Context() ends with this handler, taking the chat watches with it;
	// the explicit cancels below are for watches dropped mid-connection.
	ctx := r.Context()
	chatWatches := make(map[string]port.CancelFunc)

	defer func() {
		l.Info().Msg("Client disconnected")
		for _, cancel := range chatWatches {
			cancel()
		}
		h.releaseRing(userID)
		h.Hub.Unregister(client)
	}()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		switch req.Type {
		case "chat_message":
			if _, err := h.Chat.Send(ctx, req.ChatID, userID, req.Text); err != nil {
				l.Error().Err(err).Msg("Failed to send message")
				client.Send("error", map[string]string{"error": err.Error()})
			}

		case "watch_chat":
			if req.ChatID == "" {
				continue
			}
			if _, ok := chatWatches[req.ChatID]; ok {
				continue
			}
			cancel, err := h.Chat.Watch(ctx, req.ChatID, func(m *domain.Message) {
				if err := client.Send("chat_message", m); err != nil {
					l.Warn().Err(err).Str("chat_id", m.ChatID).Msg("Failed to push chat message")
				}
			})
			if err != nil {
				l.Error().Err(err).Str("chat_id", req.ChatID).Msg("Failed to watch chat")
				continue
			}
			chatWatches[req.ChatID] = cancel

		case "unwatch_chat":
			if cancel, ok := chatWatches[req.ChatID]; ok {
				cancel()
				delete(chatWatches, req.ChatID)
			}

		case "set_status":
			status := domain.PresenceStatus(req.Status)
			if !status.Valid() {
				continue
			}
			if err := h.Contacts.UpdateStatus(ctx, userID, status); err != nil {
				l.Error().Err(err).Msg("Failed to update status")
			}

		default:
			l.Debug().Str("type", req.Type).Msg("Unknown ws request type")
		}
	}
}
