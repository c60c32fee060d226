package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hrpulse/hr-notify/internal/domain"
	"github.com/hrpulse/hr-notify/internal/repository"
	"github.com/hrpulse/hr-notify/internal/service"
)

func roleP(r domain.Role) *domain.Role { return &r }

func newService(t *testing.T) (*service.DispatchService, *repository.MockStore) {
	t.Helper()
	store := repository.NewMockStore()
	if err := service.EnsureDefaultTemplates(context.Background(), store); err != nil {
		t.Fatalf("seed templates: %v", err)
	}
	return service.NewDispatchService(store, zap.NewNop()), store
}

func addEmployees(store *repository.MockStore, ids ...string) {
	base := time.Now().UTC()
	for i, id := range ids {
		store.AddUser(&domain.User{
			ID:        id,
			Email:     id + "@corp.example",
			Role:      domain.RoleEmployee,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
}

var announcementReq = domain.DispatchRequest{
	Type:       domain.TypeAnnouncement,
	TargetRole: roleP(domain.RoleEmployee),
	Payload:    domain.Payload{"title": "Holiday", "message": "Office closed Friday"},
}

func TestEnqueue_CreatesAllRowsAtomically(t *testing.T) {
	svc, store := newService(t)
	addEmployees(store, "u1", "u2", "u3")

	result, err := svc.Enqueue(context.Background(), announcementReq, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Recipients != 3 {
		t.Fatalf("expected 3 recipients, got %d", result.Recipients)
	}
	if result.NotificationID == "" {
		t.Fatal("expected a notification ID")
	}

	notifications, recipients, jobs := store.Counts()
	if notifications != 1 || recipients != 3 || jobs != 1 {
		t.Fatalf("expected 1/3/1 rows, got %d/%d/%d", notifications, recipients, jobs)
	}

	for _, r := range store.RecipientsFor(result.NotificationID) {
		if r.Status != domain.DeliveryUnread {
			t.Errorf("expected recipient status UNREAD, got %s", r.Status)
		}
		if r.DeliveredAt != nil {
			t.Error("expected delivered_at to be unset at enqueue time")
		}
	}

	job := store.Jobs()[0]
	if job.Status != domain.JobPending || job.Attempts != 0 {
		t.Fatalf("expected PENDING job with 0 attempts, got %s/%d", job.Status, job.Attempts)
	}
	if job.NotificationID != result.NotificationID {
		t.Fatal("job does not reference the created notification")
	}
}

func TestEnqueue_EmptyAudienceIsNoOpSuccess(t *testing.T) {
	svc, store := newService(t) // no employees seeded

	result, err := svc.Enqueue(context.Background(), announcementReq, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Recipients != 0 {
		t.Fatalf("expected 0 recipients, got %d", result.Recipients)
	}

	notifications, recipients, jobs := store.Counts()
	if notifications+recipients+jobs != 0 {
		t.Fatalf("expected no rows, got %d/%d/%d", notifications, recipients, jobs)
	}
}

func TestEnqueue_TemplateNotFound(t *testing.T) {
	store := repository.NewMockStore() // templates not seeded
	svc := service.NewDispatchService(store, zap.NewNop())
	addEmployees(store, "u1")

	_, err := svc.Enqueue(context.Background(), announcementReq, "admin-1")
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}

	notifications, recipients, jobs := store.Counts()
	if notifications+recipients+jobs != 0 {
		t.Fatal("expected no rows after template failure")
	}
}

func TestEnqueue_ExplicitIDsTakePrecedenceOverRole(t *testing.T) {
	svc, store := newService(t)
	addEmployees(store, "u1", "u2", "u3")

	req := announcementReq
	req.UserIDs = []string{"u1", "u2"}

	result, err := svc.Enqueue(context.Background(), req, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Recipients != 2 {
		t.Fatalf("expected 2 recipients (explicit IDs), got %d", result.Recipients)
	}

	n, err := store.GetNotification(context.Background(), result.NotificationID)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if n.TargetRole != nil {
		t.Fatal("expected no target role when explicit IDs were given")
	}
}

func TestEnqueue_RoleAudienceRecordsTargetRole(t *testing.T) {
	svc, store := newService(t)
	addEmployees(store, "u1")

	result, err := svc.Enqueue(context.Background(), announcementReq, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := store.GetNotification(context.Background(), result.NotificationID)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if n.TargetRole == nil || *n.TargetRole != domain.RoleEmployee {
		t.Fatalf("expected target role EMPLOYEE, got %v", n.TargetRole)
	}
}

func TestEnqueue_DeduplicatesExplicitIDs(t *testing.T) {
	svc, _ := newService(t)

	req := announcementReq
	req.TargetRole = nil
	req.UserIDs = []string{"u1", "u1", "", "u2"}

	result, err := svc.Enqueue(context.Background(), req, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Recipients != 2 {
		t.Fatalf("expected 2 recipients after dedupe, got %d", result.Recipients)
	}
}

func TestEnqueue_RendersTemplateIntoPayload(t *testing.T) {
	svc, store := newService(t)
	addEmployees(store, "u1")

	result, err := svc.Enqueue(context.Background(), announcementReq, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := store.GetNotification(context.Background(), result.NotificationID)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if got := n.Payload.String("title"); got != "Holiday" {
		t.Fatalf("expected rendered title %q, got %q", "Holiday", got)
	}
	if msg := n.Payload.String("message"); !strings.Contains(msg, "Office closed Friday") {
		t.Fatalf("expected rendered message to contain the announcement text, got %q", msg)
	}
}

func TestEnqueue_StoreFailureLeavesNoRows(t *testing.T) {
	svc, store := newService(t)
	addEmployees(store, "u1")
	store.CreateDispatchErr = errors.New("connection reset")

	_, err := svc.Enqueue(context.Background(), announcementReq, "admin-1")
	if err == nil {
		t.Fatal("expected an error")
	}

	notifications, recipients, jobs := store.Counts()
	if notifications+recipients+jobs != 0 {
		t.Fatalf("expected zero rows after failed dispatch, got %d/%d/%d",
			notifications, recipients, jobs)
	}
}

func TestEnqueue_ValidationErrors(t *testing.T) {
	svc, _ := newService(t)

	tests := []struct {
		name        string
		req         domain.DispatchRequest
		expectedErr error
	}{
		{"unknown type", domain.DispatchRequest{Type: "BOGUS", UserIDs: []string{"u1"}}, domain.ErrInvalidType},
		{"no audience", domain.DispatchRequest{Type: domain.TypeProfileUpdated}, domain.ErrInvalidAudience},
		{
			"announcement missing payload",
			domain.DispatchRequest{Type: domain.TypeAnnouncement, UserIDs: []string{"u1"}},
			domain.ErrInvalidPayload,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Enqueue(context.Background(), tc.req, "admin-1")
			if !errors.Is(err, tc.expectedErr) {
				t.Fatalf("expected %v, got %v", tc.expectedErr, err)
			}
		})
	}
}

func TestMarkRead_SetsReadOnce(t *testing.T) {
	svc, store := newService(t)
	addEmployees(store, "u1")

	result, err := svc.Enqueue(context.Background(), announcementReq, "admin-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := svc.MarkRead(context.Background(), "u1", result.NotificationID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	recs := store.RecipientsFor(result.NotificationID)
	if recs[0].Status != domain.DeliveryRead || recs[0].ReadAt == nil {
		t.Fatal("expected recipient to be READ with read_at set")
	}
	firstReadAt := *recs[0].ReadAt

	// Second read is a no-op: the original read_at survives.
	if err := svc.MarkRead(context.Background(), "u1", result.NotificationID); err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	recs = store.RecipientsFor(result.NotificationID)
	if !recs[0].ReadAt.Equal(firstReadAt) {
		t.Fatal("expected read_at to be unchanged on repeat")
	}
}

func TestMarkRead_UnknownNotification(t *testing.T) {
	svc, _ := newService(t)
	err := svc.MarkRead(context.Background(), "u1", "nonexistent")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
