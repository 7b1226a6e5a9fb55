package ws

import (
	"sync"

	"github.com/bmsc/comms/internal/core/domain"
	"github.com/bmsc/comms/internal/core/port"
	"github.com/rs/zerolog/log"
)

// Hub implements port.RealTimeGateway: a registry of connected clients,
// addressable by user id. A user may be connected from several tabs at
// once; events go to all of them.
type Hub struct {
	mu         sync.Mutex
	clients    map[domain.UserID]map[port.Client]struct{}
	register   chan port.Client
	unregister chan port.Client
	quit       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[domain.UserID]map[port.Client]struct{}),
		register:   make(chan port.Client),
		unregister: make(chan port.Client),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Register(c port.Client) {
	h.register <- c
}

func (h *Hub) Unregister(c port.Client) {
	h.unregister <- c
}

// SendToUser delivers one event to every connection the user holds.
// Returns false when the user is not connected.
func (h *Hub) SendToUser(userID domain.UserID, event string, payload any) bool {
	h.mu.Lock()
	conns := make([]port.Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.Send(event, payload); err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Str("event", event).Msg("Error sending event")
		}
	}
	return len(conns) > 0
}

func (h *Hub) Stop() {
	close(h.quit)
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for _, conns := range h.clients {
				for c := range conns {
					c.Close()
				}
			}
			h.clients = make(map[domain.UserID]map[port.Client]struct{})
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID()] == nil {
				h.clients[client.UserID()] = make(map[port.Client]struct{})
			}
			h.clients[client.UserID()][client] = struct{}{}
			h.mu.Unlock()
			log.Info().Str("user_id", client.UserID().String()).Msg("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.UserID()]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					if len(conns) == 0 {
						delete(h.clients, client.UserID())
					}
					client.Close()
					log.Info().Str("user_id", client.UserID().String()).Msg("Client unregistered")
				}
			}
			h.mu.Unlock()
		}
	}
}

var _ port.RealTimeGateway = (*Hub)(nil)
