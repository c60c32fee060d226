package repository

import (
	"context"
	"time"

	"github.com/hrpulse/hr-notify/internal/domain"
)

// Store defines all persistence operations for the dispatch pipeline and the
// user-facing feed. The pgx implementation is in pg_store.go.
// Tests use a hand-written mock (mock_store.go).
type Store interface {
	// CreateDispatch persists a notification, its recipient rows, and its
	// queue job in a single transaction. Partial writes are never observable.
	CreateDispatch(ctx context.Context, n *domain.Notification, recipients []*domain.Recipient, job *domain.QueueJob) error

	// ClaimNextJob atomically transitions the oldest PENDING job (ordered by
	// creation time, ties broken by ID) to PROCESSING and returns it. Returns
	// (nil, nil) when no job is pending or another worker won the claim race.
	ClaimNextJob(ctx context.Context) (*domain.QueueJob, error)

	// CompleteJob marks all of the notification's undelivered recipients as
	// delivered and the job as DONE, in one transaction. Recipients whose
	// delivered_at is already set are left untouched.
	CompleteJob(ctx context.Context, jobID, notificationID string, deliveredAt time.Time) error

	// RecordJobFailure stores the attempt count and error message, setting
	// the job FAILED when final, otherwise back to PENDING for a later poll.
	RecordJobFailure(ctx context.Context, jobID string, attempts int, lastError string, final bool) error

	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	ListRecipientUserIDs(ctx context.Context, notificationID string) ([]string, error)
	CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int, error)

	// Feed / read-state. Mark-read is a direct mutation outside the queue
	// pipeline; read_at is only ever set once.
	ListFeed(ctx context.Context, userID string, unreadOnly bool) ([]*domain.FeedItem, error)
	MarkRead(ctx context.Context, userID, notificationID string, readAt time.Time) error
	MarkAllRead(ctx context.Context, userID string, readAt time.Time) error

	// Collaborator lookups.
	GetTemplate(ctx context.Context, t domain.NotificationType) (*domain.Template, error)
	UpsertTemplate(ctx context.Context, tpl *domain.Template) error
	ListUserIDsByRole(ctx context.Context, role domain.Role) ([]string, error)
}
