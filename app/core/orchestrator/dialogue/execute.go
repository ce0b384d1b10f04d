package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskmate/app/core/llm"
	"taskmate/app/core/orchestrator/task"
	"taskmate/app/pkg/logger"
)

// replyError carries a message meant for the user and wraps one of the task
// sentinels so callers can still classify it with errors.Is.
type replyError struct {
	sentinel error
	msg      string
}

func (e *replyError) Error() string { return e.msg }
func (e *replyError) Unwrap() error { return e.sentinel }

func invalid(msg string) error {
	return &replyError{sentinel: task.ErrInvalid, msg: msg}
}

func notFound(title string) error {
	return &replyError{sentinel: task.ErrNotFound, msg: fmt.Sprintf("Task '%s' not found", title)}
}

func duplicate(title string) error {
	return &replyError{sentinel: task.ErrDuplicate, msg: fmt.Sprintf("Task '%s' already exists", title)}
}

const storeFailureReply = "❌ Something went wrong while saving your tasks. Please try again."

// render turns an action outcome into reply text. Errors outside the task
// taxonomy are logged and replaced with a generic message.
func render(reply string, err error) string {
	if err == nil {
		return reply
	}
	var re *replyError
	if errors.As(err, &re) {
		return "❌ " + re.msg
	}
	switch {
	case errors.Is(err, task.ErrNotFound):
		return "❌ Task not found"
	case errors.Is(err, task.ErrDuplicate):
		return "❌ Task already exists"
	case errors.Is(err, task.ErrInvalid):
		return "❌ Invalid task details"
	}
	logger.Error("[Dialogue] Task store failure: %v", err)
	return storeFailureReply
}

func (o *Orchestrator) run(ctx context.Context, a Action) string {
	o.turn.Action = a.Kind()
	return render(o.execute(ctx, a))
}

func (o *Orchestrator) execute(ctx context.Context, a Action) (string, error) {
	switch act := a.(type) {
	case CreateAction:
		return o.createTask(ctx, act)
	case ListAction:
		return o.listTasks(ctx, act)
	case SearchAction:
		return o.searchTasks(ctx, act)
	case CompleteAction:
		return o.completeTask(ctx, act)
	case DeleteAction:
		return o.deleteTask(ctx, act)
	case UpdateAction:
		return o.updateTask(ctx, act)
	default:
		return "", invalid(fmt.Sprintf("Unsupported action %T", a))
	}
}

func (o *Orchestrator) createTask(ctx context.Context, a CreateAction) (string, error) {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		return "", invalid("Task title required")
	}
	existing, err := o.store.List(ctx, o.username)
	if err != nil {
		return "", fmt.Errorf("list tasks: %w", err)
	}
	if _, ok := task.FindDuplicate(existing, title); ok {
		return "", duplicate(title)
	}

	created, err := o.store.Create(ctx, task.NewTask{
		Username:    o.username,
		Title:       title,
		Description: a.Description,
		Priority:    a.Priority,
		DueDate:     a.DueDate,
		Category:    a.Category,
		Tags:        a.Tags,
		Embedding:   o.embed(ctx, title),
	})
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	logger.Info("[Dialogue] Created task %s for %s", created.ID, o.username)

	return fmt.Sprintf("✅ Created: '%s' (Priority: %s, Due: %s)", created.Title, created.Priority, dueOrNone(created.DueDate)), nil
}

// embed returns nil when the embedding service cannot be used; the task is
// then stored without a vector.
func (o *Orchestrator) embed(ctx context.Context, text string) []float64 {
	res := llm.Embed(ctx, o.embedder, text)
	if !res.OK() {
		logger.Warn("[Dialogue] Embedding skipped (%s): %v", res.Failure, res.Err)
		return nil
	}
	return res.Value
}

func (o *Orchestrator) listTasks(ctx context.Context, a ListAction) (string, error) {
	items, err := o.search.Filter(ctx, o.username, task.Filter{Status: a.Status, Priority: a.Priority, Category: a.Category})
	if err != nil {
		return "", fmt.Errorf("list tasks: %w", err)
	}
	if len(items) == 0 {
		return "📭 No tasks found.", nil
	}
	return fmt.Sprintf("📋 %d task(s):\n", len(items)) + o.renderTasks(items), nil
}

func (o *Orchestrator) searchTasks(ctx context.Context, a SearchAction) (string, error) {
	items, err := o.search.Find(ctx, o.username, a.Query)
	if err != nil {
		return "", fmt.Errorf("search tasks: %w", err)
	}
	if len(items) == 0 {
		return fmt.Sprintf("🔍 No tasks match '%s'.", a.Query), nil
	}
	return fmt.Sprintf("🔍 %d task(s) matching '%s':\n", len(items), a.Query) + o.renderTasks(items), nil
}

func (o *Orchestrator) renderTasks(items []task.Task) string {
	var b strings.Builder
	for i, t := range items {
		if i == o.listLimit {
			b.WriteString(fmt.Sprintf("\n...and %d more", len(items)-o.listLimit))
			break
		}
		mark := "📝"
		if !t.Active() {
			mark = "✅"
		}
		b.WriteString(fmt.Sprintf("\n%d. %s %s", i+1, mark, t.Title))
		if t.Priority != task.PriorityMedium {
			b.WriteString(fmt.Sprintf(" [%s]", t.Priority))
		}
		if t.DueDate != "" {
			b.WriteString(" (due " + t.DueDate + ")")
		}
	}
	return b.String()
}

// lookup resolves a title against the user's tasks, preferring tasks that
// are not completed yet.
func (o *Orchestrator) lookup(ctx context.Context, title string) (task.Task, error) {
	items, err := o.store.List(ctx, o.username)
	if err != nil {
		return task.Task{}, fmt.Errorf("list tasks: %w", err)
	}
	ordered := make([]task.Task, 0, len(items))
	for _, t := range items {
		if t.Active() {
			ordered = append(ordered, t)
		}
	}
	for _, t := range items {
		if !t.Active() {
			ordered = append(ordered, t)
		}
	}
	found, ok := task.FindByTitle(ordered, title)
	if !ok {
		return task.Task{}, notFound(title)
	}
	return found, nil
}

func (o *Orchestrator) completeTask(ctx context.Context, a CompleteAction) (string, error) {
	found, err := o.lookup(ctx, a.Title)
	if err != nil {
		return "", err
	}
	completed := task.StatusCompleted
	updated, err := o.store.Update(ctx, found.ID, o.username, task.Patch{Status: &completed})
	if err != nil {
		return "", fmt.Errorf("complete task: %w", err)
	}
	return fmt.Sprintf("✅ Completed: '%s'", updated.Title), nil
}

func (o *Orchestrator) deleteTask(ctx context.Context, a DeleteAction) (string, error) {
	found, err := o.lookup(ctx, a.Title)
	if err != nil {
		return "", err
	}
	if err := o.store.Delete(ctx, found.ID, o.username); err != nil {
		return "", fmt.Errorf("delete task: %w", err)
	}
	return fmt.Sprintf("🗑️ Deleted: '%s'", found.Title), nil
}

func (o *Orchestrator) updateTask(ctx context.Context, a UpdateAction) (string, error) {
	found, err := o.lookup(ctx, a.Title)
	if err != nil {
		return "", err
	}
	patch := task.Patch{
		Title:       a.NewTitle,
		Description: a.Description,
		DueDate:     a.DueDate,
		Priority:    a.Priority,
		Status:      a.Status,
	}
	if a.NewTitle != nil {
		patch.Embedding = o.embed(ctx, *a.NewTitle)
	}
	updated, err := o.store.Update(ctx, found.ID, o.username, patch)
	if err != nil {
		return "", fmt.Errorf("update task: %w", err)
	}
	return fmt.Sprintf("✏️ Updated: '%s' (Priority: %s, Status: %s, Due: %s)", updated.Title, updated.Priority, updated.Status, dueOrNone(updated.DueDate)), nil
}

func dueOrNone(due string) string {
	if due == "" {
		return "None"
	}
	return due
}
