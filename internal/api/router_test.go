package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hrpulse/hr-notify/internal/api"
	"github.com/hrpulse/hr-notify/internal/domain"
	"github.com/hrpulse/hr-notify/internal/ratelimiter"
	"github.com/hrpulse/hr-notify/internal/realtime"
	"github.com/hrpulse/hr-notify/internal/repository"
	"github.com/hrpulse/hr-notify/internal/service"
	"github.com/hrpulse/hr-notify/internal/worker"
)

type testEnv struct {
	handler http.Handler
	store   *repository.MockStore
	tokens  *realtime.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMockStore()
	if err := service.EnsureDefaultTemplates(context.Background(), store); err != nil {
		t.Fatalf("seed templates: %v", err)
	}

	logger := zap.NewNop()
	tokens := realtime.NewTokenIssuer("api-test-secret", time.Minute)
	hub := realtime.NewHub(tokens, logger, realtime.ConnHooks{})
	t.Cleanup(hub.Close)

	svc := service.NewDispatchService(store, logger)
	w := worker.NewQueueWorker(store, hub, 3, logger, worker.Hooks{})

	h := api.NewRouter(api.Deps{
		Service:   svc,
		Store:     store,
		Processor: w,
		Hub:       hub,
		Tokens:    tokens,
		Limiter:   ratelimiter.New(100),
		Registry:  prometheus.NewRegistry(),
		Logger:    logger,
	})
	return &testEnv{handler: h, store: store, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, userID string, role domain.Role) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Role", string(role))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func announcementBody() map[string]any {
	return map[string]any{
		"type":       "ANNOUNCEMENT",
		"targetRole": "EMPLOYEE",
		"payload":    map[string]any{"title": "Holiday", "message": "Office closed"},
	}
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouter_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/notifications", nil, "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRouter_DispatchRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/dispatches", announcementBody(), "u1", domain.RoleEmployee)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestDispatch_Accepted(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddUser(&domain.User{ID: "u1", Email: "u1@corp.example", Role: domain.RoleEmployee})

	rec := env.do(t, http.MethodPost, "/api/v1/dispatches", announcementBody(), "admin-1", domain.RoleAdmin)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	result := decodeBody[domain.DispatchResult](t, rec)
	if result.Recipients != 1 || result.NotificationID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDispatch_EmptyAudienceReturns200(t *testing.T) {
	env := newTestEnv(t) // no employees in the directory

	rec := env.do(t, http.MethodPost, "/api/v1/dispatches", announcementBody(), "admin-1", domain.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty audience, got %d", rec.Code)
	}
	result := decodeBody[domain.DispatchResult](t, rec)
	if result.Recipients != 0 {
		t.Fatalf("expected 0 recipients, got %d", result.Recipients)
	}
}

func TestDispatch_UnknownTypeReturns422(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"type": "SMS_BLAST", "userIds": []string{"u1"}}
	rec := env.do(t, http.MethodPost, "/api/v1/dispatches", body, "admin-1", domain.RoleAdmin)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestDispatch_MalformedJSONReturns400(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatches", bytes.NewBufferString("{nope"))
	req.Header.Set("X-User-ID", "admin-1")
	req.Header.Set("X-User-Role", string(domain.RoleAdmin))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQueueProcess_DrainsOneJob(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddUser(&domain.User{ID: "u1", Email: "u1@corp.example", Role: domain.RoleEmployee})

	if rec := env.do(t, http.MethodPost, "/api/v1/dispatches", announcementBody(), "admin-1", domain.RoleAdmin); rec.Code != http.StatusAccepted {
		t.Fatalf("dispatch: expected 202, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/queue/process", nil, "admin-1", domain.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]int](t, rec)
	if body["processed"] != 1 {
		t.Fatalf("expected processed=1, got %d", body["processed"])
	}

	// Second pass finds an empty queue.
	rec = env.do(t, http.MethodPost, "/api/v1/queue/process", nil, "admin-1", domain.RoleAdmin)
	if body := decodeBody[map[string]int](t, rec); body["processed"] != 0 {
		t.Fatalf("expected processed=0, got %d", body["processed"])
	}
}

func TestQueueStats_ReportsCounts(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddUser(&domain.User{ID: "u1", Email: "u1@corp.example", Role: domain.RoleEmployee})
	env.do(t, http.MethodPost, "/api/v1/dispatches", announcementBody(), "admin-1", domain.RoleAdmin)

	rec := env.do(t, http.MethodGet, "/api/v1/queue/stats", nil, "admin-1", domain.RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]map[string]int](t, rec)
	if body["jobs"]["PENDING"] != 1 {
		t.Fatalf("expected one pending job, got %+v", body)
	}
}

func TestNotifications_FeedAndMarkRead(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddUser(&domain.User{ID: "u1", Email: "u1@corp.example", Role: domain.RoleEmployee})

	rec := env.do(t, http.MethodPost, "/api/v1/dispatches", announcementBody(), "admin-1", domain.RoleAdmin)
	result := decodeBody[domain.DispatchResult](t, rec)

	type feedResponse struct {
		Data  []domain.FeedItem `json:"data"`
		Total int               `json:"total"`
	}

	rec = env.do(t, http.MethodGet, "/api/v1/notifications/unread", nil, "u1", domain.RoleEmployee)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	feed := decodeBody[feedResponse](t, rec)
	if feed.Total != 1 {
		t.Fatalf("expected one unread notification, got %d", feed.Total)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/notifications/"+result.NotificationID+"/read", nil, "u1", domain.RoleEmployee)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/notifications/unread", nil, "u1", domain.RoleEmployee)
	if feed := decodeBody[feedResponse](t, rec); feed.Total != 0 {
		t.Fatalf("expected empty unread feed after mark-read, got %d", feed.Total)
	}

	// The full feed still contains the (now read) notification.
	rec = env.do(t, http.MethodGet, "/api/v1/notifications", nil, "u1", domain.RoleEmployee)
	if feed := decodeBody[feedResponse](t, rec); feed.Total != 1 {
		t.Fatalf("expected full feed of 1, got %d", feed.Total)
	}
}

func TestNotifications_MarkReadUnknownID(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPut, "/api/v1/notifications/nope/read", nil, "u1", domain.RoleEmployee)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestNotifications_MarkAllRead(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddUser(&domain.User{ID: "u1", Email: "u1@corp.example", Role: domain.RoleEmployee})
	env.do(t, http.MethodPost, "/api/v1/dispatches", announcementBody(), "admin-1", domain.RoleAdmin)
	env.do(t, http.MethodPost, "/api/v1/dispatches", announcementBody(), "admin-1", domain.RoleAdmin)

	rec := env.do(t, http.MethodPut, "/api/v1/notifications/read-all", nil, "u1", domain.RoleEmployee)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	type feedResponse struct {
		Total int `json:"total"`
	}
	rec = env.do(t, http.MethodGet, "/api/v1/notifications/unread", nil, "u1", domain.RoleEmployee)
	if feed := decodeBody[feedResponse](t, rec); feed.Total != 0 {
		t.Fatalf("expected no unread after read-all, got %d", feed.Total)
	}
}

func TestSocketToken_IssuesVerifiableToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/socket-token", nil, "u1", domain.RoleEmployee)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)

	claims, err := env.tokens.Verify(body["token"])
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != domain.RoleEmployee {
		t.Fatalf("token carries wrong identity: %+v", claims)
	}
}

func TestDispatch_RateLimited(t *testing.T) {
	store := repository.NewMockStore()
	if err := service.EnsureDefaultTemplates(context.Background(), store); err != nil {
		t.Fatalf("seed templates: %v", err)
	}
	logger := zap.NewNop()
	tokens := realtime.NewTokenIssuer("api-test-secret", time.Minute)
	hub := realtime.NewHub(tokens, logger, realtime.ConnHooks{})
	t.Cleanup(hub.Close)

	h := api.NewRouter(api.Deps{
		Service:   service.NewDispatchService(store, logger),
		Store:     store,
		Processor: worker.NewQueueWorker(store, hub, 3, logger, worker.Hooks{}),
		Hub:       hub,
		Tokens:    tokens,
		Limiter:   ratelimiter.New(1),
		Registry:  prometheus.NewRegistry(),
		Logger:    logger,
	})
	env := &testEnv{handler: h, store: store, tokens: tokens}

	// Burst of 1: the second immediate request trips the limiter.
	env.do(t, http.MethodPost, "/api/v1/dispatches", announcementBody(), "admin-1", domain.RoleAdmin)
	rec := env.do(t, http.MethodPost, "/api/v1/dispatches", announcementBody(), "admin-1", domain.RoleAdmin)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}
