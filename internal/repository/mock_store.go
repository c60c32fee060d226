package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hrpulse/hr-notify/internal/domain"
)

// MockStore is a hand-written, in-memory implementation of Store used in unit
// tests. No mock-generation library needed. The mutex gives it the same
// claim-exclusivity guarantee the Postgres conditional update provides, so
// concurrency tests run against realistic semantics.
type MockStore struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
	recipients    map[string]*domain.Recipient // keyed by recipient ID
	jobs          map[string]*domain.QueueJob
	templates     map[domain.NotificationType]*domain.Template
	users         map[string]*domain.User

	// Optional error overrides — set in tests to simulate failure paths.
	CreateDispatchErr error
	ClaimErr          error
	CompleteJobErr    error
	RecordFailureErr  error
	GetTemplateErr    error
	ListUsersErr      error
}

func NewMockStore() *MockStore {
	return &MockStore{
		notifications: make(map[string]*domain.Notification),
		recipients:    make(map[string]*domain.Recipient),
		jobs:          make(map[string]*domain.QueueJob),
		templates:     make(map[domain.NotificationType]*domain.Template),
		users:         make(map[string]*domain.User),
	}
}

func (m *MockStore) CreateDispatch(
	_ context.Context,
	n *domain.Notification,
	recipients []*domain.Recipient,
	job *domain.QueueJob,
) error {
	if m.CreateDispatchErr != nil {
		return m.CreateDispatchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	nc := *n
	m.notifications[n.ID] = &nc
	for _, r := range recipients {
		rc := *r
		m.recipients[r.ID] = &rc
	}
	jc := *job
	m.jobs[job.ID] = &jc
	return nil
}

func (m *MockStore) ClaimNextJob(_ context.Context) (*domain.QueueJob, error) {
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []*domain.QueueJob
	for _, j := range m.jobs {
		if j.Status == domain.JobPending {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.Slice(pending, func(i, k int) bool {
		if !pending[i].CreatedAt.Equal(pending[k].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[k].CreatedAt)
		}
		return pending[i].ID < pending[k].ID
	})

	job := pending[0]
	job.Status = domain.JobProcessing
	clone := *job
	return &clone, nil
}

func (m *MockStore) CompleteJob(_ context.Context, jobID, notificationID string, deliveredAt time.Time) error {
	if m.CompleteJobErr != nil {
		return m.CompleteJobErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.recipients {
		if r.NotificationID == notificationID && r.DeliveredAt == nil {
			t := deliveredAt
			r.DeliveredAt = &t
		}
	}
	if j, ok := m.jobs[jobID]; ok {
		j.Status = domain.JobDone
	}
	return nil
}

func (m *MockStore) RecordJobFailure(_ context.Context, jobID string, attempts int, lastError string, final bool) error {
	if m.RecordFailureErr != nil {
		return m.RecordFailureErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	j.Attempts = attempts
	j.LastError = &lastError
	if final {
		j.Status = domain.JobFailed
	} else {
		j.Status = domain.JobPending
	}
	return nil
}

func (m *MockStore) GetNotification(_ context.Context, id string) (*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (m *MockStore) ListRecipientUserIDs(_ context.Context, notificationID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []*domain.Recipient
	for _, r := range m.recipients {
		if r.NotificationID == notificationID {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, k int) bool { return recs[i].ID < recs[k].ID })

	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.UserID)
	}
	return ids, nil
}

func (m *MockStore) CountJobsByStatus(_ context.Context) (map[domain.JobStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.JobStatus]int)
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (m *MockStore) ListFeed(_ context.Context, userID string, unreadOnly bool) ([]*domain.FeedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []*domain.FeedItem
	for _, r := range m.recipients {
		if r.UserID != userID {
			continue
		}
		if unreadOnly && r.Status != domain.DeliveryUnread {
			continue
		}
		n, ok := m.notifications[r.NotificationID]
		if !ok {
			continue
		}
		items = append(items, &domain.FeedItem{
			NotificationID: n.ID,
			Type:           n.Type,
			Payload:        n.Payload.Clone(),
			Status:         r.Status,
			DeliveredAt:    r.DeliveredAt,
			ReadAt:         r.ReadAt,
			CreatedAt:      n.CreatedAt,
		})
	}
	sort.Slice(items, func(i, k int) bool { return items[i].CreatedAt.After(items[k].CreatedAt) })
	return items, nil
}

func (m *MockStore) MarkRead(_ context.Context, userID, notificationID string, readAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, r := range m.recipients {
		if r.UserID == userID && r.NotificationID == notificationID {
			found = true
			if r.ReadAt == nil {
				t := readAt
				r.ReadAt = &t
				r.Status = domain.DeliveryRead
			}
		}
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MockStore) MarkAllRead(_ context.Context, userID string, readAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipients {
		if r.UserID == userID && r.ReadAt == nil {
			t := readAt
			r.ReadAt = &t
			r.Status = domain.DeliveryRead
		}
	}
	return nil
}

func (m *MockStore) GetTemplate(_ context.Context, t domain.NotificationType) (*domain.Template, error) {
	if m.GetTemplateErr != nil {
		return nil, m.GetTemplateErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tpl, ok := m.templates[t]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *tpl
	return &clone, nil
}

func (m *MockStore) UpsertTemplate(_ context.Context, tpl *domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *tpl
	m.templates[tpl.Type] = &clone
	return nil
}

func (m *MockStore) ListUserIDsByRole(_ context.Context, role domain.Role) ([]string, error) {
	if m.ListUsersErr != nil {
		return nil, m.ListUsersErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []*domain.User
	for _, u := range m.users {
		if u.Role == role {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, k int) bool { return users[i].CreatedAt.Before(users[k].CreatedAt) })

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// ---- test helpers ----

// AddUser seeds a directory entry.
func (m *MockStore) AddUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *u
	m.users[u.ID] = &clone
}

// Job returns a copy of the job with the given ID, or nil.
func (m *MockStore) Job(id string) *domain.QueueJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil
	}
	clone := *j
	return &clone
}

// Jobs returns copies of all jobs.
func (m *MockStore) Jobs() []*domain.QueueJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.QueueJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		clone := *j
		out = append(out, &clone)
	}
	return out
}

// RecipientsFor returns copies of all recipient rows for a notification.
func (m *MockStore) RecipientsFor(notificationID string) []*domain.Recipient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Recipient
	for _, r := range m.recipients {
		if r.NotificationID == notificationID {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Counts reports the number of stored rows per table, for atomicity checks.
func (m *MockStore) Counts() (notifications, recipients, jobs int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notifications), len(m.recipients), len(m.jobs)
}

var _ Store = (*MockStore)(nil)
