package handler

import (
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/hrpulse/hr-notify/internal/api/middleware"
	"github.com/hrpulse/hr-notify/internal/realtime"
)

// SocketHandler issues the short-lived join tokens clients present when
// opening a websocket connection. The token carries the already authenticated
// identity; the websocket endpoint itself is served by the hub.
type SocketHandler struct {
	tokens *realtime.TokenIssuer
	logger *zap.Logger
}

func NewSocketHandler(tokens *realtime.TokenIssuer, logger *zap.Logger) *SocketHandler {
	return &SocketHandler{tokens: tokens, logger: logger}
}

// Token handles GET /api/v1/socket-token.
func (h *SocketHandler) Token(w http.ResponseWriter, r *http.Request) {
	id, _ := apimw.GetIdentity(r.Context())

	token, err := h.tokens.Issue(id.UserID, id.Role)
	if err != nil {
		h.logger.Error("socket token issue failed", zap.String("user_id", id.UserID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to issue socket token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}
