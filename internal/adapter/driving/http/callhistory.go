package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/bmsc/comms/internal/core/domain"
)

type recordCallRequest struct {
	CallerID   string `json:"caller_id"`
	ReceiverID string `json:"receiver_id"`
	CallType   string `json:"call_type"`
	Duration   int    `json:"duration"`
	Status     string `json:"status"`
}

func (h *Handler) RecordCall(w http.ResponseWriter, r *http.Request) {
	var req recordCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CallerID == "" || req.ReceiverID == "" || req.CallType == "" || req.Status == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	callType := domain.CallType(req.CallType)
	status := domain.CallOutcome(req.Status)
	if !callType.Valid() || !status.Valid() || req.Duration < 0 {
		writeError(w, http.StatusBadRequest, "invalid call_type, status or duration")
		return
	}

	rec, err := h.History.Record(r.Context(),
		domain.UserID(req.CallerID), domain.UserID(req.ReceiverID),
		callType, req.Duration, status)
	if err != nil {
		log.Error().Err(err).Msg("Error saving call history")
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeData(w, rec)
}

func (h *Handler) ListCallHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	recs, err := h.History.ListByUser(r.Context(), domain.UserID(userID))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Error fetching call history")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []*domain.CallHistoryRecord{}
	}

	writeData(w, recs)
}
