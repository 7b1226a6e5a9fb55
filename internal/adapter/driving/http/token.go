package http

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/bmsc/comms/internal/adapter/driven/media/agora"
)

// IssueToken mints a media transport token for one channel/uid pair.
// The credentials stay server-side; clients only ever see the signed token.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	uid := r.URL.Query().Get("uid")

	if channel == "" || uid == "" {
		writeError(w, http.StatusBadRequest, "channel and uid are required")
		return
	}

	token, err := h.Tokens.ChannelToken(channel, uid)
	if errors.Is(err, agora.ErrNoCredentials) {
		writeError(w, http.StatusInternalServerError, "media credentials not set")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to build token")
		writeError(w, http.StatusInternalServerError, "failed to build token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
