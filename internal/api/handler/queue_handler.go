package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hrpulse/hr-notify/internal/repository"
	"github.com/hrpulse/hr-notify/internal/worker"
)

// QueueHandler exposes the operational queue surface: a manual reprocess
// trigger and a JSON snapshot of job counts by status.
type QueueHandler struct {
	processor worker.Processor
	store     repository.Store
	logger    *zap.Logger
}

func NewQueueHandler(processor worker.Processor, store repository.Store, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{processor: processor, store: store, logger: logger}
}

// Process handles POST /api/v1/queue/process — the manual trigger for one
// worker pass, useful when investigating a stuck dispatch without waiting for
// the poller tick.
func (h *QueueHandler) Process(w http.ResponseWriter, r *http.Request) {
	processed, err := h.processor.ProcessOnce(r.Context())
	if err != nil {
		h.logger.Error("manual queue process failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "queue processing failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

// Stats handles GET /api/v1/queue/stats.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountJobsByStatus(r.Context())
	if err != nil {
		h.logger.Error("queue stats failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": counts})
}
