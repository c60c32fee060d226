package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hrpulse/hr-notify/internal/domain"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a Store backed by PostgreSQL.
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) CreateDispatch(
	ctx context.Context,
	n *domain.Notification,
	recipients []*domain.Recipient,
	job *domain.QueueJob,
) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dispatch transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO notifications (id, type, channel, payload, target_role, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		n.ID, n.Type, n.Channel, n.Payload, n.TargetRole, n.CreatedBy, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	for _, r := range recipients {
		_, err = tx.Exec(ctx, `
			INSERT INTO notification_recipients (id, notification_id, user_id, status, created_at)
			VALUES ($1,$2,$3,$4,$5)`,
			r.ID, r.NotificationID, r.UserID, r.Status, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO queue_jobs (id, notification_id, status, attempts, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		job.ID, job.NotificationID, job.Status, job.Attempts, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert queue job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit dispatch: %w", err)
	}
	return nil
}

// ClaimNextJob implements the claim algorithm: select the oldest PENDING job,
// then conditionally update it to PROCESSING only if it is still PENDING.
// The conditional update is the compare-and-swap that makes concurrent
// workers safe without any external lock manager.
func (s *pgStore) ClaimNextJob(ctx context.Context) (*domain.QueueJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `
		SELECT id, notification_id, status, attempts, last_error, created_at
		FROM queue_jobs
		WHERE status = 'PENDING'
		ORDER BY created_at, id
		LIMIT 1`)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select pending job: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE queue_jobs SET status = 'PROCESSING'
		WHERE id = $1 AND status = 'PENDING'`, job.ID)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Another worker claimed it between the select and the update.
		return nil, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	job.Status = domain.JobProcessing
	return job, nil
}

func (s *pgStore) CompleteJob(ctx context.Context, jobID, notificationID string, deliveredAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The delivered_at IS NULL guard keeps delivery marking idempotent:
	// re-running on an already-delivered notification touches nothing.
	_, err = tx.Exec(ctx, `
		UPDATE notification_recipients
		SET delivered_at = $1
		WHERE notification_id = $2 AND delivered_at IS NULL`,
		deliveredAt, notificationID,
	)
	if err != nil {
		return fmt.Errorf("mark recipients delivered: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE queue_jobs SET status = 'DONE' WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit completion: %w", err)
	}
	return nil
}

func (s *pgStore) RecordJobFailure(ctx context.Context, jobID string, attempts int, lastError string, final bool) error {
	status := domain.JobPending
	if final {
		status = domain.JobFailed
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE queue_jobs
		SET status = $1, attempts = $2, last_error = $3
		WHERE id = $4`,
		status, attempts, lastError, jobID,
	)
	if err != nil {
		return fmt.Errorf("record job failure: %w", err)
	}
	return nil
}

func (s *pgStore) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, type, channel, payload, target_role, created_by, created_at
		FROM notifications WHERE id = $1`, id)

	var n domain.Notification
	err := row.Scan(&n.ID, &n.Type, &n.Channel, &n.Payload, &n.TargetRole, &n.CreatedBy, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

func (s *pgStore) ListRecipientUserIDs(ctx context.Context, notificationID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM notification_recipients
		WHERE notification_id = $1
		ORDER BY created_at, id`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list recipient user IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *pgStore) CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM queue_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status domain.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *pgStore) ListFeed(ctx context.Context, userID string, unreadOnly bool) ([]*domain.FeedItem, error) {
	query := `
		SELECT n.id, n.type, n.payload, r.status, r.delivered_at, r.read_at, n.created_at
		FROM notification_recipients r
		JOIN notifications n ON n.id = r.notification_id
		WHERE r.user_id = $1`
	if unreadOnly {
		query += ` AND r.status = 'UNREAD'`
	}
	query += ` ORDER BY n.created_at DESC LIMIT 200`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	defer rows.Close()

	var items []*domain.FeedItem
	for rows.Next() {
		var it domain.FeedItem
		err := rows.Scan(&it.NotificationID, &it.Type, &it.Payload,
			&it.Status, &it.DeliveredAt, &it.ReadAt, &it.CreatedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (s *pgStore) MarkRead(ctx context.Context, userID, notificationID string, readAt time.Time) error {
	// read_at IS NULL: first read wins, repeats are no-ops.
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_recipients
		SET status = 'READ', read_at = $1
		WHERE user_id = $2 AND notification_id = $3 AND read_at IS NULL`,
		readAt, userID, notificationID,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either no such recipient row, or it is already read. Distinguish so
		// the handler can 404 on the former and succeed on the latter.
		var exists bool
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM notification_recipients
				WHERE user_id = $1 AND notification_id = $2
			)`, userID, notificationID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check recipient: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (s *pgStore) MarkAllRead(ctx context.Context, userID string, readAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_recipients
		SET status = 'READ', read_at = $1
		WHERE user_id = $2 AND read_at IS NULL`,
		readAt, userID,
	)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

func (s *pgStore) GetTemplate(ctx context.Context, t domain.NotificationType) (*domain.Template, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, type, title, body, created_at, updated_at
		FROM notification_templates WHERE type = $1`, t)

	var tpl domain.Template
	err := row.Scan(&tpl.ID, &tpl.Type, &tpl.Title, &tpl.Body, &tpl.CreatedAt, &tpl.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &tpl, nil
}

func (s *pgStore) UpsertTemplate(ctx context.Context, tpl *domain.Template) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_templates (id, type, title, body, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (type) DO UPDATE
		SET title = EXCLUDED.title, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		tpl.ID, tpl.Type, tpl.Title, tpl.Body, tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

func (s *pgStore) ListUserIDsByRole(ctx context.Context, role domain.Role) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM users WHERE role = $1 ORDER BY created_at`, role)
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- helpers ----

func scanJob(row pgx.Row) (*domain.QueueJob, error) {
	var j domain.QueueJob
	err := row.Scan(&j.ID, &j.NotificationID, &j.Status, &j.Attempts, &j.LastError, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
