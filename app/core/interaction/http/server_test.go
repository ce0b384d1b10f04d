package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskmate/app/core/orchestrator/db"
	"taskmate/app/core/orchestrator/search"
	"taskmate/app/core/orchestrator/task"
	"taskmate/app/pkg/types"
)

func newTaskBackend(t *testing.T) (*search.Service, *task.SQLiteStore) {
	t.Helper()
	database, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("init sqlite failed: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	store := task.NewStore(database)
	return search.NewService(store, nil, 0, 0), store
}

func TestSetShutdownTimeout(t *testing.T) {
	ch := NewHTTPChannel(":0")
	if ch.shutdownTimeout != 5*time.Second {
		t.Fatalf("unexpected default shutdown timeout: %s", ch.shutdownTimeout)
	}
	ch.SetShutdownTimeout(12 * time.Second)
	ch.SetShutdownTimeout(0)
	if ch.shutdownTimeout != 12*time.Second {
		t.Fatalf("zero timeout should be ignored, got: %s", ch.shutdownTimeout)
	}
}

func TestHandleMessageRoundTrip(t *testing.T) {
	ch := NewHTTPChannel(":0")
	var seen types.Message
	ch.handler = func(msg types.Message) {
		seen = msg
		_ = ch.Send(context.Background(), types.Message{
			RequestID: msg.RequestID,
			Content:   "✅ Created: 'Buy milk'",
			Meta:      map[string]interface{}{"mode": "normal", "session_id": "web-1"},
		})
	}

	body := `{"content": " Buy milk today urgent ", "user_id": "alice", "session_id": "web-1"}`
	rr := httptest.NewRecorder()
	ch.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/message", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d body=%s", rr.Code, rr.Body.String())
	}
	var payload outgoingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if payload.Response != "✅ Created: 'Buy milk'" || payload.Mode != "normal" || payload.SessionID != "web-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if seen.Content != "Buy milk today urgent" || seen.UserID != "alice" || seen.SessionID != "web-1" || seen.ChannelID != "http" {
		t.Fatalf("unexpected inbound message: %+v", seen)
	}
	ch.pendingMu.Lock()
	defer ch.pendingMu.Unlock()
	if len(ch.pending) != 0 {
		t.Fatalf("pending request leaked: %d", len(ch.pending))
	}
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	ch := NewHTTPChannel(":0")
	ch.handler = func(types.Message) {}

	cases := []struct {
		method string
		body   string
		want   int
	}{
		{http.MethodGet, "", http.StatusMethodNotAllowed},
		{http.MethodPost, "{", http.StatusBadRequest},
		{http.MethodPost, `{"content": "  "}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		ch.routes().ServeHTTP(rr, httptest.NewRequest(tc.method, "/api/message", bytes.NewBufferString(tc.body)))
		if rr.Code != tc.want {
			t.Fatalf("%s %q: got %d want %d", tc.method, tc.body, rr.Code, tc.want)
		}
	}
}

func TestHandleMessageTimesOut(t *testing.T) {
	ch := NewHTTPChannel(":0")
	ch.responseTimeout = 20 * time.Millisecond
	ch.handler = func(types.Message) {}

	rr := httptest.NewRecorder()
	ch.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/message", strings.NewReader(`{"content": "hi", "user_id": "alice"}`)))
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}
}

func TestHandleStatusReturnsJSONSnapshot(t *testing.T) {
	ch := NewHTTPChannel(":0")
	ch.startedUnix.Store(time.Now().Add(-5 * time.Second).Unix())
	ch.pending["req-1"] = make(chan types.Message)
	ch.SetStatusProvider(func(context.Context) map[string]interface{} {
		return map[string]interface{}{"sessions": 2}
	})

	rr := httptest.NewRecorder()
	ch.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}
	var payload statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if payload.ChannelID != "http" || payload.PendingRequests != 1 || payload.UptimeSec <= 0 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Runtime["sessions"] != float64(2) {
		t.Fatalf("unexpected runtime payload: %+v", payload.Runtime)
	}
}

func TestTaskEndpoints(t *testing.T) {
	svc, store := newTaskBackend(t)
	ctx := context.Background()
	for _, nt := range []task.NewTask{
		{Username: "alice", Title: "Buy milk", Priority: task.PriorityUrgent},
		{Username: "alice", Title: "Dentist appointment"},
		{Username: "bob", Title: "Buy bread"},
	} {
		if _, err := store.Create(ctx, nt); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	ch := NewHTTPChannel(":0")
	ch.SetTaskBackend(svc, store)
	mux := ch.routes()

	get := func(target string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		return rr
	}
	decodeList := func(rr *httptest.ResponseRecorder) taskListResponse {
		t.Helper()
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status code: %d body=%s", rr.Code, rr.Body.String())
		}
		var payload taskListResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response failed: %v", err)
		}
		return payload
	}

	if list := decodeList(get("/api/tasks?user_id=alice")); list.Count != 2 {
		t.Fatalf("unexpected alice tasks: %+v", list)
	}
	if list := decodeList(get("/api/tasks?user_id=alice&priority=urgent")); list.Count != 1 || list.Tasks[0].Title != "Buy milk" {
		t.Fatalf("unexpected filtered tasks: %+v", list)
	}
	if list := decodeList(get("/api/tasks/search?user_id=bob&q=bread")); list.Count != 1 || list.Tasks[0].Username != "bob" {
		t.Fatalf("unexpected search result: %+v", list)
	}

	rr := get("/api/tasks/stats?user_id=alice")
	var st task.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil || st.Total != 2 || st.Todo != 2 {
		t.Fatalf("unexpected stats: %+v err=%v", st, err)
	}

	for target, want := range map[string]int{
		"/api/tasks":                         http.StatusBadRequest,
		"/api/tasks?user_id=alice&status=x":  http.StatusBadRequest,
		"/api/tasks/search?user_id=alice":    http.StatusBadRequest,
		"/api/tasks?user_id=alice&priority=": http.StatusOK,
	} {
		if rr := get(target); rr.Code != want {
			t.Fatalf("%s: got %d want %d", target, rr.Code, want)
		}
	}
}

func TestTaskByIDEndpoints(t *testing.T) {
	svc, store := newTaskBackend(t)
	ctx := context.Background()
	milk, err := store.Create(ctx, task.NewTask{Username: "alice", Title: "Buy milk", Embedding: []float64{1, 0}})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	ch := NewHTTPChannel(":0")
	ch.SetTaskBackend(svc, store)
	mux := ch.routes()
	do := func(method, target, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(method, target, strings.NewReader(body)))
		return rr
	}
	path := "/api/tasks/" + milk.ID

	rr := do(http.MethodGet, path+"?user_id=alice", "")
	var got task.Task
	if rr.Code != http.StatusOK || json.Unmarshal(rr.Body.Bytes(), &got) != nil || got.Title != "Buy milk" {
		t.Fatalf("unexpected get: %d body=%s", rr.Code, rr.Body.String())
	}

	// Another user's id behaves as if the task did not exist.
	for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
		if rr := do(method, path+"?user_id=bob", `{"status": "completed"}`); rr.Code != http.StatusNotFound {
			t.Fatalf("%s as bob: got %d want 404", method, rr.Code)
		}
	}
	if rr := do(http.MethodGet, "/api/tasks/missing?user_id=alice", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing task: got %d want 404", rr.Code)
	}

	rr = do(http.MethodPatch, path+"?user_id=alice", `{"title": "Buy oat milk", "priority": "high", "due_date": "2024-01-02"}`)
	if rr.Code != http.StatusOK || json.Unmarshal(rr.Body.Bytes(), &got) != nil {
		t.Fatalf("unexpected patch: %d body=%s", rr.Code, rr.Body.String())
	}
	if got.Title != "Buy oat milk" || got.Priority != task.PriorityHigh || got.DueDate != "2024-01-02" || got.Status != task.StatusTodo {
		t.Fatalf("unexpected patched task: %+v", got)
	}
	stale, err := store.MissingEmbeddings(ctx, 10)
	if err != nil || len(stale) != 1 {
		t.Fatalf("renamed task should wait for a new embedding: %+v err=%v", stale, err)
	}

	for body, want := range map[string]int{
		`{"priority": "extreme"}`:   http.StatusBadRequest,
		`{"due_date": "tomorrow"}`:  http.StatusBadRequest,
		`{}`:                        http.StatusBadRequest,
		`not json`:                  http.StatusBadRequest,
		`{"status": "in_progress"}`: http.StatusOK,
	} {
		if rr := do(http.MethodPatch, path+"?user_id=alice", body); rr.Code != want {
			t.Fatalf("patch %s: got %d want %d", body, rr.Code, want)
		}
	}

	if rr := do(http.MethodDelete, path+"?user_id=alice", ""); rr.Code != http.StatusOK {
		t.Fatalf("unexpected delete: %d body=%s", rr.Code, rr.Body.String())
	}
	if rr := do(http.MethodDelete, path+"?user_id=alice", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: got %d want 404", rr.Code)
	}
	if rr := do(http.MethodGet, path, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id: got %d want 400", rr.Code)
	}
}

func TestTaskEndpointsWithoutBackend(t *testing.T) {
	ch := NewHTTPChannel(":0")
	rr := httptest.NewRecorder()
	ch.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tasks?user_id=alice", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}
}
