package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hrpulse/hr-notify/internal/domain"
	"github.com/hrpulse/hr-notify/internal/realtime"
	"github.com/hrpulse/hr-notify/internal/repository"
)

// DefaultMaxAttempts bounds the automatic retries for store-level failures.
const DefaultMaxAttempts = 3

// Hooks carries the metric callback functions injected by main.
// Nil fields are replaced with no-ops so the worker stays metrics-agnostic.
type Hooks struct {
	OnProcessed func(result string, latency time.Duration)
	OnFanout    func(mode string)
}

// QueueWorker drains the durable job queue one job per call. Multiple workers
// may run concurrently, in this or other processes; exclusivity comes from
// the store's conditional-update claim, not from any in-process lock.
type QueueWorker struct {
	store       repository.Store
	emitter     realtime.Emitter
	maxAttempts int
	logger      *zap.Logger
	hooks       Hooks
}

func NewQueueWorker(
	store repository.Store,
	emitter realtime.Emitter,
	maxAttempts int,
	logger *zap.Logger,
	hooks Hooks,
) *QueueWorker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if hooks.OnProcessed == nil {
		hooks.OnProcessed = func(string, time.Duration) {}
	}
	if hooks.OnFanout == nil {
		hooks.OnFanout = func(string) {}
	}
	return &QueueWorker{
		store:       store,
		emitter:     emitter,
		maxAttempts: maxAttempts,
		logger:      logger,
		hooks:       hooks,
	}
}

// ProcessOnce claims at most one pending job and processes it, returning the
// number of jobs handled (0 or 1). A claim race lost to another worker is not
// an error: it reports 0 and the caller simply polls again.
//
// A job whose delivery transaction fails is retried on later polls until the
// attempt limit, then parked as FAILED. Fan-out failure never fails the job:
// the durable recipient rows are the authoritative delivery record and the
// client's next fetch compensates for a missed push.
func (w *QueueWorker) ProcessOnce(ctx context.Context) (int, error) {
	job, err := w.store.ClaimNextJob(ctx)
	if err != nil {
		return 0, err
	}
	if job == nil {
		return 0, nil
	}

	start := time.Now()
	log := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("notification_id", job.NotificationID),
	)

	deliveredAt := time.Now().UTC()
	if err := w.store.CompleteJob(ctx, job.ID, job.NotificationID, deliveredAt); err != nil {
		if final := w.handleFailure(ctx, job, err, log); final {
			w.hooks.OnProcessed("failed", time.Since(start))
		} else {
			w.hooks.OnProcessed("retry", time.Since(start))
		}
		return 1, nil
	}

	// Delivery is durably recorded; everything past this point is best-effort.
	w.fanOut(ctx, job.NotificationID, log)

	w.hooks.OnProcessed("done", time.Since(start))
	log.Info("job processed", zap.Duration("latency", time.Since(start)))
	return 1, nil
}

// fanOut pushes the realtime event. A role-targeted notification uses one
// room broadcast; an explicit recipient set gets per-user emissions.
func (w *QueueWorker) fanOut(ctx context.Context, notificationID string, log *zap.Logger) {
	n, err := w.store.GetNotification(ctx, notificationID)
	if err != nil {
		log.Warn("fan-out skipped: cannot load notification", zap.Error(err))
		return
	}

	event := realtime.Event{
		ID:             uuid.New().String(),
		Type:           n.Type,
		Title:          n.Payload.String("title"),
		Message:        n.Payload.String("message"),
		Payload:        n.Payload,
		NotificationID: n.ID,
		CreatedAt:      n.CreatedAt,
	}

	if n.TargetRole != nil {
		room := realtime.RoleRoom(*n.TargetRole)
		if err := w.emitter.EmitToRoom(room, realtime.EventNotificationNew, event); err != nil {
			log.Warn("room fan-out failed", zap.String("room", room), zap.Error(err))
			return
		}
		w.hooks.OnFanout("room")
		return
	}

	userIDs, err := w.store.ListRecipientUserIDs(ctx, n.ID)
	if err != nil {
		log.Warn("fan-out skipped: cannot list recipients", zap.Error(err))
		return
	}
	for _, uid := range userIDs {
		if err := w.emitter.EmitToUser(uid, realtime.EventNotificationNew, event); err != nil {
			log.Warn("user fan-out failed", zap.String("user_id", uid), zap.Error(err))
			continue
		}
		w.hooks.OnFanout("user")
	}
}

// handleFailure increments the attempt counter and either requeues the job
// for a later poll or parks it as FAILED once the limit is reached. The
// failure message is stored on the job row for diagnostics either way.
// Reports whether the failure was final.
func (w *QueueWorker) handleFailure(ctx context.Context, job *domain.QueueJob, procErr error, log *zap.Logger) bool {
	attempts := job.Attempts + 1
	final := attempts >= w.maxAttempts

	if err := w.store.RecordJobFailure(ctx, job.ID, attempts, procErr.Error(), final); err != nil {
		log.Error("failed to record job failure", zap.Error(err))
		return final
	}

	if final {
		log.Error("job failed permanently",
			zap.Int("attempts", attempts), zap.Error(procErr))
	} else {
		log.Warn("job processing failed, will retry",
			zap.Int("attempts", attempts), zap.Error(procErr))
	}
	return final
}
