package task

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound  = errors.New("task: not found")
	ErrDuplicate = errors.New("task: duplicate active task")
	ErrInvalid   = errors.New("task: invalid field")
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority in the order extractors check them.
var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}

func ParsePriority(raw string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, true
	default:
		return "", false
	}
}

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func ParseStatus(raw string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	switch Status(normalized) {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return Status(normalized), true
	case "done", "complete":
		return StatusCompleted, true
	case "open", "pending":
		return StatusTodo, true
	default:
		return "", false
	}
}

// Task is one user-owned to-do item. DueDate is an ISO calendar date
// (YYYY-MM-DD) or empty. Timestamps are unix seconds.
type Task struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	DueDate     string    `json:"due_date,omitempty"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags"`
	Embedding   []float64 `json:"-"`
	CreatedAt   int64     `json:"created_at"`
	UpdatedAt   int64     `json:"updated_at"`
}

func (t Task) Active() bool {
	return t.Status != StatusCompleted
}

// NewTask is the payload for Store.Create. Zero values take the documented
// defaults: medium priority, todo status.
type NewTask struct {
	Username    string
	Title       string
	Description string
	Priority    Priority
	DueDate     string
	Category    string
	Tags        []string
	Embedding   []float64
}

// Patch lists the fields Store.Update may change. Nil fields are left alone.
type Patch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Status      *Status
	DueDate     *string
	Category    *string
	Tags        []string
	Embedding   []float64
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Status == nil &&
		p.DueDate == nil && p.Category == nil && p.Tags == nil && p.Embedding == nil
}

// Filter narrows Store.Search. Empty fields do not filter. Query is matched
// case-insensitively against title and description.
type Filter struct {
	Status   Status
	Priority Priority
	Category string
	Query    string
}

// Store persists tasks. Every operation is scoped to the owning username and a
// task owned by someone else is reported as ErrNotFound.
type Store interface {
	Create(ctx context.Context, in NewTask) (Task, error)
	Get(ctx context.Context, id string, username string) (Task, error)
	List(ctx context.Context, username string) ([]Task, error)
	Update(ctx context.Context, id string, username string, patch Patch) (Task, error)
	Delete(ctx context.Context, id string, username string) error
	Search(ctx context.Context, username string, filter Filter) ([]Task, error)
	SemanticSearch(ctx context.Context, embedding []float64, username string, topK int, threshold float64) ([]Task, error)
	Stats(ctx context.Context, username string) (Stats, error)
}

type Stats struct {
	Total          int     `json:"total"`
	Todo           int     `json:"todo"`
	InProgress     int     `json:"in_progress"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}
