package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/bmsc/comms/internal/core/domain"
	"github.com/bmsc/comms/internal/core/port"
	"github.com/bmsc/comms/internal/core/service"
)

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	contacts, err := h.Contacts.List(r.Context(), domain.UserID(userID))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Error fetching contacts")
		writeError(w, statusFor(err), err.Error())
		return
	}
	if contacts == nil {
		contacts = []*domain.Contact{}
	}
	writeData(w, contacts)
}

type addContactRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req addContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "user_id, name and email are required")
		return
	}

	contact, err := h.Contacts.Add(r.Context(), domain.UserID(req.UserID), req.Name, req.Email)
	if err != nil {
		log.Error().Err(err).Msg("Error adding contact")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeData(w, contact)
}

type setFavoriteRequest struct {
	IsFavorite bool `json:"is_favorite"`
}

func (h *Handler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req setFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Contacts.SetFavorite(r.Context(), domain.ContactID(id), req.IsFavorite); err != nil {
		log.Error().Err(err).Str("contact_id", id).Msg("Error updating favorite")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeData(w, map[string]any{"id": id, "is_favorite": req.IsFavorite})
}

type updateStatusRequest struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	status := domain.PresenceStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be online, offline or busy")
		return
	}

	if err := h.Contacts.UpdateStatus(r.Context(), domain.UserID(req.UserID), status); err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Error updating status")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeData(w, map[string]string{"user_id": req.UserID, "status": req.Status})
}

// statusFor maps service errors onto response codes: a collaborator that
// never became ready is 503, a missing row is 404, the rest is 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, port.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
