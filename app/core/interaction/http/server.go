package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"taskmate/app/core/orchestrator/task"
	"taskmate/app/pkg/logger"
	"taskmate/app/pkg/types"
)

const (
	defaultResponseTimeout = 60 * time.Second
	maxRequestBytes        = 64 << 10
)

// TaskLookup answers the task list and search endpoints.
type TaskLookup interface {
	Filter(ctx context.Context, username string, filter task.Filter) ([]task.Task, error)
	Find(ctx context.Context, username string, query string) ([]task.Task, error)
}

type HTTPChannel struct {
	id              string
	addr            string
	server          *http.Server
	handler         func(types.Message)
	statusProvider  func(context.Context) map[string]interface{}
	shutdownTimeout time.Duration
	responseTimeout time.Duration

	tasks TaskLookup
	store task.Store

	pendingMu   sync.Mutex
	pending     map[string]chan types.Message
	counter     atomic.Uint64
	startedUnix atomic.Int64
}

func NewHTTPChannel(addr string) *HTTPChannel {
	return &HTTPChannel{
		id:              "http",
		addr:            addr,
		pending:         map[string]chan types.Message{},
		shutdownTimeout: 5 * time.Second,
		responseTimeout: defaultResponseTimeout,
	}
}

func (c *HTTPChannel) ID() string {
	return c.id
}

func (c *HTTPChannel) SetStatusProvider(provider func(context.Context) map[string]interface{}) {
	c.statusProvider = provider
}

func (c *HTTPChannel) SetShutdownTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.shutdownTimeout = timeout
}

// SetTaskBackend enables the /api/tasks endpoints.
func (c *HTTPChannel) SetTaskBackend(lookup TaskLookup, store task.Store) {
	c.tasks = lookup
	c.store = store
}

func (c *HTTPChannel) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/message", c.handleMessage)
	mux.HandleFunc("/api/status", c.handleStatus)
	mux.HandleFunc("/api/tasks", c.handleTasks)
	mux.HandleFunc("GET /api/tasks/search", c.handleTaskSearch)
	mux.HandleFunc("GET /api/tasks/stats", c.handleTaskStats)
	mux.HandleFunc("GET /api/tasks/{id}", c.handleTaskGet)
	mux.HandleFunc("PATCH /api/tasks/{id}", c.handleTaskPatch)
	mux.HandleFunc("DELETE /api/tasks/{id}", c.handleTaskDelete)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

func (c *HTTPChannel) Start(ctx context.Context, handler func(types.Message)) error {
	c.handler = handler
	c.startedUnix.Store(time.Now().Unix())
	c.server = &http.Server{
		Addr:              c.addr,
		Handler:           c.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
		defer cancel()
		if err := c.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("[HTTP] Shutdown error: %v", err)
		}
	}()

	logger.Info("[HTTP] Listening on %s", c.addr)
	if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}

// Send hands a reply to the request waiting for it. Replies for unknown or
// expired requests are dropped.
func (c *HTTPChannel) Send(_ context.Context, msg types.Message) error {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.RequestID]
	c.pendingMu.Unlock()
	if !ok {
		logger.Warn("[HTTP] Pending request not found: %s", msg.RequestID)
		return nil
	}
	select {
	case ch <- msg:
	default:
	}
	return nil
}

type incomingRequest struct {
	Content   string `json:"content"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

type outgoingResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Error     bool   `json:"error,omitempty"`
}

type statusResponse struct {
	ChannelID       string                 `json:"channel_id"`
	PendingRequests int                    `json:"pending_requests"`
	StartedAt       string                 `json:"started_at,omitempty"`
	UptimeSec       int64                  `json:"uptime_sec"`
	Runtime         map[string]interface{} `json:"runtime,omitempty"`
}

type taskListResponse struct {
	Tasks []task.Task `json:"tasks"`
	Count int         `json:"count"`
}

func (c *HTTPChannel) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req incomingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	if c.handler == nil {
		http.Error(w, "handler not ready", http.StatusServiceUnavailable)
		return
	}

	msg, respCh := c.prepareMessage(req)
	defer c.removePending(msg.RequestID)

	go c.handler(msg)

	select {
	case response := <-respCh:
		mode, _ := response.Meta["mode"].(string)
		sessionID, _ := response.Meta["session_id"].(string)
		failed, _ := response.Meta["error"].(bool)
		writeJSON(w, http.StatusOK, outgoingResponse{
			Response:  response.Content,
			SessionID: sessionID,
			Mode:      mode,
			Error:     failed,
		})
	case <-time.After(c.responseTimeout):
		http.Error(w, "request timeout", http.StatusGatewayTimeout)
	case <-r.Context().Done():
	}
}

func (c *HTTPChannel) prepareMessage(req incomingRequest) (types.Message, chan types.Message) {
	requestID := c.newID("http")
	respCh := make(chan types.Message, 1)
	c.pendingMu.Lock()
	c.pending[requestID] = respCh
	c.pendingMu.Unlock()

	return types.Message{
		ID:        requestID,
		Content:   strings.TrimSpace(req.Content),
		Role:      types.MessageRoleUser,
		ChannelID: c.id,
		UserID:    strings.TrimSpace(req.UserID),
		SessionID: strings.TrimSpace(req.SessionID),
		RequestID: requestID,
	}, respCh
}

func (c *HTTPChannel) removePending(requestID string) {
	c.pendingMu.Lock()
	delete(c.pending, requestID)
	c.pendingMu.Unlock()
}

func (c *HTTPChannel) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c.pendingMu.Lock()
	pending := len(c.pending)
	c.pendingMu.Unlock()

	payload := statusResponse{ChannelID: c.id, PendingRequests: pending}
	if ts := c.startedUnix.Load(); ts > 0 {
		started := time.Unix(ts, 0)
		payload.StartedAt = started.UTC().Format(time.RFC3339)
		payload.UptimeSec = int64(time.Since(started).Seconds())
	}
	if c.statusProvider != nil {
		payload.Runtime = c.statusProvider(r.Context())
	}
	writeJSON(w, http.StatusOK, payload)
}

// taskRequest validates the shared parts of the task endpoints and returns
// the requesting user.
func (c *HTTPChannel) taskRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet && r.PathValue("id") == "" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	if c.tasks == nil || c.store == nil {
		http.Error(w, "task backend not configured", http.StatusServiceUnavailable)
		return "", false
	}
	user := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if user == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return "", false
	}
	return user, true
}

func (c *HTTPChannel) handleTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := c.taskRequest(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var filter task.Filter
	if raw := q.Get("status"); raw != "" {
		st, ok := task.ParseStatus(raw)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown status %q", raw), http.StatusBadRequest)
			return
		}
		filter.Status = st
	}
	if raw := q.Get("priority"); raw != "" {
		p, ok := task.ParsePriority(raw)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown priority %q", raw), http.StatusBadRequest)
			return
		}
		filter.Priority = p
	}
	filter.Category = strings.TrimSpace(q.Get("category"))
	filter.Query = strings.TrimSpace(q.Get("q"))

	items, err := c.tasks.Filter(r.Context(), user, filter)
	if err != nil {
		logger.Error("[HTTP] List tasks failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, taskListResponse{Tasks: items, Count: len(items)})
}

func (c *HTTPChannel) handleTaskSearch(w http.ResponseWriter, r *http.Request) {
	user, ok := c.taskRequest(w, r)
	if !ok {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	items, err := c.tasks.Find(r.Context(), user, query)
	if err != nil {
		logger.Error("[HTTP] Search tasks failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, taskListResponse{Tasks: items, Count: len(items)})
}

func (c *HTTPChannel) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	user, ok := c.taskRequest(w, r)
	if !ok {
		return
	}
	st, err := c.store.Stats(r.Context(), user)
	if err != nil {
		logger.Error("[HTTP] Task stats failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (c *HTTPChannel) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	user, ok := c.taskRequest(w, r)
	if !ok {
		return
	}
	t, err := c.store.Get(r.Context(), r.PathValue("id"), user)
	if err != nil {
		writeTaskError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// taskPatch mirrors task.Patch for JSON bodies. Absent fields are left alone;
// an empty due_date clears it.
type taskPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Priority    *string   `json:"priority"`
	Status      *string   `json:"status"`
	DueDate     *string   `json:"due_date"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags"`
}

func (p taskPatch) toPatch() (task.Patch, error) {
	out := task.Patch{
		Title:       p.Title,
		Description: p.Description,
		DueDate:     p.DueDate,
		Category:    p.Category,
	}
	if p.Priority != nil {
		v := task.Priority(*p.Priority)
		out.Priority = &v
	}
	if p.Status != nil {
		v := task.Status(*p.Status)
		out.Status = &v
	}
	if p.Tags != nil {
		out.Tags = append([]string{}, *p.Tags...)
	}
	if p.DueDate != nil {
		if d := strings.TrimSpace(*p.DueDate); d != "" {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return task.Patch{}, fmt.Errorf("%w: due_date %q is not YYYY-MM-DD", task.ErrInvalid, d)
			}
		}
	}
	// A renamed task drops its vector; the backfill job embeds the new title.
	if p.Title != nil {
		out.Embedding = []float64{}
	}
	return out, nil
}

func (c *HTTPChannel) handleTaskPatch(w http.ResponseWriter, r *http.Request) {
	user, ok := c.taskRequest(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()
	var body taskPatch
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	patch, err := body.toPatch()
	if err != nil {
		writeTaskError(w, "patch", err)
		return
	}
	if patch.Empty() {
		http.Error(w, "no fields to update", http.StatusBadRequest)
		return
	}
	t, err := c.store.Update(r.Context(), r.PathValue("id"), user, patch)
	if err != nil {
		writeTaskError(w, "patch", err)
		return
	}
	logger.Info("[HTTP] Updated task %s for %s", t.ID, user)
	writeJSON(w, http.StatusOK, t)
}

func (c *HTTPChannel) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := c.taskRequest(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := c.store.Delete(r.Context(), id, user); err != nil {
		writeTaskError(w, "delete", err)
		return
	}
	logger.Info("[HTTP] Deleted task %s for %s", id, user)
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "id": id})
}

func writeTaskError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		http.Error(w, "task not found", http.StatusNotFound)
	case errors.Is(err, task.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("[HTTP] Task %s failed: %v", op, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (c *HTTPChannel) newID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), c.counter.Add(1))
}
