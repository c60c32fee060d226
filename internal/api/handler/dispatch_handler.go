package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/hrpulse/hr-notify/internal/api/middleware"
	"github.com/hrpulse/hr-notify/internal/domain"
	"github.com/hrpulse/hr-notify/internal/ratelimiter"
	"github.com/hrpulse/hr-notify/internal/service"
)

// DispatchHandler exposes the admin dispatch (enqueue) endpoint.
type DispatchHandler struct {
	svc      *service.DispatchService
	limiter  *ratelimiter.DispatchLimiter
	logger   *zap.Logger
	onQueued func()
}

// NewDispatchHandler constructs the handler. onQueued is the metric callback
// fired when a dispatch creates a job (nil = no-op).
func NewDispatchHandler(
	svc *service.DispatchService,
	limiter *ratelimiter.DispatchLimiter,
	logger *zap.Logger,
	onQueued func(),
) *DispatchHandler {
	if onQueued == nil {
		onQueued = func() {}
	}
	return &DispatchHandler{svc: svc, limiter: limiter, logger: logger, onQueued: onQueued}
}

// Create handles POST /api/v1/dispatches.
//
// 202: a job was enqueued. 200: the resolved audience was empty (no-op
// success). 422: validation or unknown template. 429: rate limited.
func (h *DispatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		mapError(w, domain.ErrRateLimited)
		return
	}

	var req domain.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, _ := apimw.GetIdentity(r.Context())
	result, err := h.svc.Enqueue(r.Context(), req, id.UserID)
	if err != nil {
		h.logger.Warn("dispatch failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	if result.Recipients == 0 {
		respondJSON(w, http.StatusOK, result)
		return
	}
	h.onQueued()
	respondJSON(w, http.StatusAccepted, result)
}
