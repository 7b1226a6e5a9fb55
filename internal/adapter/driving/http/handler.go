package http

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bmsc/comms/internal/adapter/driven/gateway/ws"
	"github.com/bmsc/comms/internal/adapter/driven/media/agora"
	"github.com/bmsc/comms/internal/core/domain"
	"github.com/bmsc/comms/internal/core/service"
)

type Handler struct {
	Contacts *service.ContactService
	History  *service.CallHistoryService
	Chat     *service.ChatService
	Calls    *service.Coordinator
	Tokens   *agora.TokenService
	Hub      *ws.Hub

	// One incoming-call watch per user, shared by all of that user's
	// connections and released with the last one.
	ringMu sync.Mutex
	rings  map[domain.UserID]*ringWatch
}

func NewHandler(
	contacts *service.ContactService,
	history *service.CallHistoryService,
	chat *service.ChatService,
	calls *service.Coordinator,
	tokens *agora.TokenService,
	hub *ws.Hub,
) *Handler {
	return &Handler{
		Contacts: contacts,
		History:  history,
		Chat:     chat,
		Calls:    calls,
		Tokens:   tokens,
		Hub:      hub,
		rings:    make(map[domain.UserID]*ringWatch),
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Get("/ws", h.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/token", h.IssueToken)

		r.Get("/call-history", h.ListCallHistory)
		r.Post("/call-history", h.RecordCall)

		r.Get("/contacts", h.ListContacts)
		r.Post("/contacts", h.AddContact)
		r.Patch("/contacts/{id}/favorite", h.SetFavorite)
		r.Patch("/contacts/status", h.UpdateStatus)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}
