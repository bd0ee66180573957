package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"uploadqueue/internal/agent"
	"uploadqueue/internal/task"
)

type stubUploader struct {
	fail    map[string]string
	blocker chan struct{}
}

func (s *stubUploader) Upload(ctx context.Context, t *task.VideoTask) error {
	if s.blocker != nil {
		<-s.blocker
	}
	if msg, ok := s.fail[t.Title]; ok {
		return errors.New(msg)
	}
	return nil
}

type testServer struct {
	router *gin.Engine
	queue  *task.Queue
	engine *agent.Engine
}

func newTestServer(t *testing.T, up agent.Uploader) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	queue := task.NewQueue()
	tracker, err := agent.NewStateTracker(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	engine, err := agent.NewEngine(agent.Options{Queue: queue, State: tracker, Uploader: up})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	NewAPI(queue, engine).RegisterRoutes(router)
	return &testServer{router: router, queue: queue, engine: engine}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func createBody(title string, at time.Time) string {
	return `{"title":"` + title + `","description":"A perfectly fine description","tags":["a","b"],` +
		`"visibility":"public","scheduledTime":"` + at.UTC().Format(time.RFC3339) + `",` +
		`"sourceUrl":"https://cdn.example.org/v.mp4"}`
}

func decodeTask(t *testing.T, w *httptest.ResponseRecorder) *task.VideoTask {
	t.Helper()
	var resp taskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Task == nil {
		t.Fatalf("expected task in response: %s", w.Body.String())
	}
	return resp.Task
}

func TestCreateTask(t *testing.T) {
	srv := newTestServer(t, &stubUploader{})

	w := srv.do(http.MethodPost, "/api/queue", createBody("Hello world", time.Now().Add(time.Hour)))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	created := decodeTask(t, w)
	if created.ID == "" || created.Status != task.StatusPending {
		t.Fatalf("unexpected task %+v", created)
	}
	if created.AutoChapters || created.AIDescription {
		t.Fatalf("feature flags should default to false")
	}
}

func TestCreateTaskValidation(t *testing.T) {
	srv := newTestServer(t, &stubUploader{})

	w := srv.do(http.MethodPost, "/api/queue", createBody("Hi", time.Now()))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp errorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if _, ok := resp.Fields["title"]; !ok {
		t.Fatalf("expected title field error, got %+v", resp)
	}
	if len(srv.queue.GetQueue()) != 0 {
		t.Fatalf("expected nothing persisted")
	}

	bad := `{"title":"Fine title","description":"A perfectly fine description","visibility":"public",` +
		`"scheduledTime":"not-a-date","sourceUrl":"https://cdn.example.org/v.mp4"}`
	if w := srv.do(http.MethodPost, "/api/queue", bad); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", w.Code)
	}
	if w := srv.do(http.MethodPost, "/api/queue", `{"title": 5}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", w.Code)
	}
}

func TestListAndGetTask(t *testing.T) {
	srv := newTestServer(t, &stubUploader{})
	created := decodeTask(t, srv.do(http.MethodPost, "/api/queue", createBody("Listed video", time.Now())))

	w := srv.do(http.MethodGet, "/api/queue", "")
	var list queueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Queue) != 1 || list.Queue[0].ID != created.ID {
		t.Fatalf("unexpected queue %+v", list.Queue)
	}

	if w := srv.do(http.MethodGet, "/api/queue/"+created.ID, ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := srv.do(http.MethodGet, "/api/queue/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPatchTask(t *testing.T) {
	srv := newTestServer(t, &stubUploader{})
	created := decodeTask(t, srv.do(http.MethodPost, "/api/queue", createBody("Patch me", time.Now())))
	path := "/api/queue/" + created.ID

	w := srv.do(http.MethodPatch, path, `{"title":"Patched title","autoChapters":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	patched := decodeTask(t, w)
	if patched.Title != "Patched title" || !patched.AutoChapters || patched.ID != created.ID {
		t.Fatalf("unexpected patch result %+v", patched)
	}

	w = srv.do(http.MethodPatch, path, `{"scheduledTime":"2031-01-01T00:00:00Z","visibility":"private"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	moved := decodeTask(t, w)
	if !moved.ScheduledTime.Equal(time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)) || moved.Visibility != task.VisibilityPrivate {
		t.Fatalf("unexpected reschedule result %+v", moved)
	}

	if w := srv.do(http.MethodPatch, path, `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", w.Code)
	}
	if w := srv.do(http.MethodPatch, path, `{"description":"short"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short description, got %d", w.Code)
	}
	if w := srv.do(http.MethodPatch, "/api/queue/missing", `{"scheduledTime":"2031-01-01T00:00:00Z"}`); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for reschedule of unknown id, got %d", w.Code)
	}
	if w := srv.do(http.MethodPatch, "/api/queue/missing", `{"title":"Valid title"}`); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for update of unknown id, got %d", w.Code)
	}
}

func TestDeleteTaskTwice(t *testing.T) {
	srv := newTestServer(t, &stubUploader{})
	created := decodeTask(t, srv.do(http.MethodPost, "/api/queue", createBody("Delete me", time.Now())))

	if w := srv.do(http.MethodDelete, "/api/queue/"+created.ID, ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := srv.do(http.MethodDelete, "/api/queue/"+created.ID, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
}

func TestRunAgentAndStatus(t *testing.T) {
	srv := newTestServer(t, &stubUploader{fail: map[string]string{"Broken video": "source missing"}})
	srv.do(http.MethodPost, "/api/queue", createBody("Good video", time.Now().Add(-time.Minute)))
	srv.do(http.MethodPost, "/api/queue", createBody("Broken video", time.Now().Add(-time.Minute)))
	future := decodeTask(t, srv.do(http.MethodPost, "/api/queue", createBody("Later video", time.Now().Add(time.Hour))))

	w := srv.do(http.MethodPost, "/api/agent/run", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var summary agent.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary.Processed != 2 || summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	w = srv.do(http.MethodGet, "/api/agent/status", "")
	var status statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.State.LastRunStatus != agent.RunError || status.State.LastError != "source missing" || status.State.TotalRuns != 1 {
		t.Fatalf("unexpected state %+v", status.State)
	}
	if len(status.Queue) != 3 || status.Counts[task.StatusPending] != 1 {
		t.Fatalf("unexpected status payload %+v", status)
	}
	if got, _ := srv.queue.GetTask(future.ID); got.Status != task.StatusPending {
		t.Fatalf("future task should stay pending, got %s", got.Status)
	}
}

func TestRunAgentConflict(t *testing.T) {
	blocker := make(chan struct{})
	srv := newTestServer(t, &stubUploader{blocker: blocker})
	srv.do(http.MethodPost, "/api/queue", createBody("Slow video", time.Now().Add(-time.Minute)))

	done := make(chan int, 1)
	go func() {
		done <- srv.do(http.MethodPost, "/api/agent/run", "").Code
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.queue.Counts()[task.StatusUploading] == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if w := srv.do(http.MethodPost, "/api/agent/run", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while running, got %d", w.Code)
	}
	close(blocker)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("expected first run to succeed, got %d", code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubUploader{})
	if w := srv.do(http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
