package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/hrpulse/hr-notify/internal/api/middleware"
	"github.com/hrpulse/hr-notify/internal/service"
)

// NotificationHandler serves the current user's feed and the mark-read path.
// Mark-read is a direct store mutation, deliberately outside the queue
// pipeline.
type NotificationHandler struct {
	svc    *service.DispatchService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.DispatchService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/notifications.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// ListUnread handles GET /api/v1/notifications/unread.
func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *NotificationHandler) list(w http.ResponseWriter, r *http.Request, unreadOnly bool) {
	id, _ := apimw.GetIdentity(r.Context())
	items, err := h.svc.ListFeed(r.Context(), id.UserID, unreadOnly)
	if err != nil {
		h.logger.Error("list feed failed", zap.String("user_id", id.UserID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": items, "total": len(items)})
}

// MarkRead handles PUT /api/v1/notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, _ := apimw.GetIdentity(r.Context())
	notificationID := chi.URLParam(r, "id")

	if err := h.svc.MarkRead(r.Context(), id.UserID, notificationID); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles PUT /api/v1/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	id, _ := apimw.GetIdentity(r.Context())

	if err := h.svc.MarkAllRead(r.Context(), id.UserID); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
