package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hrpulse/hr-notify/internal/domain"
	"github.com/hrpulse/hr-notify/internal/repository"
)

// DispatchService is the enqueuer: it resolves the template and audience for
// a dispatch request and atomically creates the notification, its recipient
// rows, and its queue job. Workers and HTTP handlers depend on this service,
// not on each other.
type DispatchService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewDispatchService(store repository.Store, logger *zap.Logger) *DispatchService {
	return &DispatchService{store: store, logger: logger}
}

// Enqueue validates the request, resolves template and audience, and persists
// one Notification + N Recipients + one QueueJob in a single transaction.
//
// Audience resolution: explicit UserIDs take precedence; TargetRole is only
// consulted when no IDs were given. An empty resolved audience is a no-op
// success — nothing is persisted and no job is created.
func (s *DispatchService) Enqueue(
	ctx context.Context,
	req domain.DispatchRequest,
	createdBy string,
) (*domain.DispatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tpl, err := s.store.GetTemplate(ctx, req.Type)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("resolve template: %w", err)
	}

	userIDs, byRole, err := s.resolveAudience(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		s.logger.Info("dispatch resolved to empty audience, skipping",
			zap.String("type", string(req.Type)))
		return &domain.DispatchResult{Recipients: 0}, nil
	}

	now := time.Now().UTC()
	title, body := tpl.Render(req.Payload, now)

	payload := req.Payload.Clone()
	payload["title"] = title
	payload["message"] = body

	n := &domain.Notification{
		ID:        uuid.New().String(),
		Type:      req.Type,
		Channel:   domain.ChannelInApp,
		Payload:   payload,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	if byRole {
		role := *req.TargetRole
		n.TargetRole = &role
	}

	recipients := make([]*domain.Recipient, len(userIDs))
	for i, uid := range userIDs {
		recipients[i] = &domain.Recipient{
			ID:             uuid.New().String(),
			NotificationID: n.ID,
			UserID:         uid,
			Status:         domain.DeliveryUnread,
			CreatedAt:      now,
		}
	}

	job := &domain.QueueJob{
		ID:             uuid.New().String(),
		NotificationID: n.ID,
		Status:         domain.JobPending,
		Attempts:       0,
		CreatedAt:      now,
	}

	if err := s.store.CreateDispatch(ctx, n, recipients, job); err != nil {
		return nil, fmt.Errorf("persist dispatch: %w", err)
	}

	s.logger.Info("dispatch enqueued",
		zap.String("notification_id", n.ID),
		zap.String("type", string(n.Type)),
		zap.Int("recipients", len(recipients)),
	)
	return &domain.DispatchResult{NotificationID: n.ID, Recipients: len(recipients)}, nil
}

// ListFeed returns the user's notification feed, newest first.
func (s *DispatchService) ListFeed(ctx context.Context, userID string, unreadOnly bool) ([]*domain.FeedItem, error) {
	return s.store.ListFeed(ctx, userID, unreadOnly)
}

// MarkRead marks a single notification read for the user. Repeats are no-ops;
// the first read_at is never overwritten.
func (s *DispatchService) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.store.MarkRead(ctx, userID, notificationID, time.Now().UTC())
}

// MarkAllRead marks every unread notification read for the user.
func (s *DispatchService) MarkAllRead(ctx context.Context, userID string) error {
	return s.store.MarkAllRead(ctx, userID, time.Now().UTC())
}

// resolveAudience returns the concrete recipient user IDs and whether they
// came from a role lookup. Role resolution is a snapshot taken at dispatch
// time; later directory changes do not affect an enqueued notification.
func (s *DispatchService) resolveAudience(ctx context.Context, req domain.DispatchRequest) ([]string, bool, error) {
	if len(req.UserIDs) > 0 {
		seen := make(map[string]struct{}, len(req.UserIDs))
		ids := make([]string, 0, len(req.UserIDs))
		for _, id := range req.UserIDs {
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return ids, false, nil
	}

	ids, err := s.store.ListUserIDsByRole(ctx, *req.TargetRole)
	if err != nil {
		return nil, false, fmt.Errorf("resolve role audience: %w", err)
	}
	return ids, true, nil
}
