package dialogue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"taskmate/app/core/nlp"
	"taskmate/app/core/orchestrator/task"
)

type ActionKind string

const (
	ActionCreate   ActionKind = "create_task"
	ActionList     ActionKind = "list_tasks"
	ActionSearch   ActionKind = "search_tasks"
	ActionComplete ActionKind = "complete_task"
	ActionDelete   ActionKind = "delete_task"
	ActionUpdate   ActionKind = "update_task"
)

// Action is one of the task operations the assistant can perform. The
// concrete types below are the only implementations.
type Action interface {
	Kind() ActionKind
}

type CreateAction struct {
	Title       string
	Description string
	DueDate     string
	Priority    task.Priority
	Category    string
	Tags        []string
}

type ListAction struct {
	Status   task.Status
	Priority task.Priority
	Category string
}

type SearchAction struct {
	Query string
}

type CompleteAction struct {
	Title string
}

type DeleteAction struct {
	Title string
}

// UpdateAction changes the task matching Title. Nil fields are left alone.
type UpdateAction struct {
	Title       string
	NewTitle    *string
	Description *string
	DueDate     *string
	Priority    *task.Priority
	Status      *task.Status
}

func (CreateAction) Kind() ActionKind   { return ActionCreate }
func (ListAction) Kind() ActionKind     { return ActionList }
func (SearchAction) Kind() ActionKind   { return ActionSearch }
func (CompleteAction) Kind() ActionKind { return ActionComplete }
func (DeleteAction) Kind() ActionKind   { return ActionDelete }
func (UpdateAction) Kind() ActionKind   { return ActionUpdate }

var (
	ErrNoAction      = errors.New("dialogue: no function call")
	ErrUnknownAction = errors.New("dialogue: unknown function")
)

// ParseAction validates a {"function": ..., "parameters": {...}} object.
// Relative due dates are resolved against now.
func ParseAction(call gjson.Result, now time.Time) (Action, error) {
	name := strings.TrimSpace(call.Get("function").String())
	if name == "" {
		name = strings.TrimSpace(call.Get("name").String())
	}
	if name == "" {
		return nil, ErrNoAction
	}
	params := call.Get("parameters")
	if !params.Exists() {
		params = call.Get("arguments")
	}
	str := func(key string) string {
		return strings.TrimSpace(params.Get(key).String())
	}

	switch ActionKind(strings.ToLower(name)) {
	case ActionCreate:
		a := CreateAction{Title: str("title"), Description: str("description"), Category: category(str("category"))}
		if a.Title == "" {
			return nil, invalid("Task title required")
		}
		if raw := str("priority"); raw != "" {
			p, ok := task.ParsePriority(raw)
			if !ok {
				return nil, invalid(fmt.Sprintf("Unknown priority %q", raw))
			}
			a.Priority = p
		}
		if raw := str("due_date"); raw != "" {
			d, ok := resolveDate(raw, now)
			if !ok {
				return nil, invalid(fmt.Sprintf("Unknown due date %q", raw))
			}
			a.DueDate = d
		}
		for _, tag := range params.Get("tags").Array() {
			if v := strings.TrimSpace(tag.String()); v != "" {
				a.Tags = append(a.Tags, v)
			}
		}
		return a, nil

	case ActionList:
		// Unrecognized filter values (often the schema placeholder echoed
		// back) are dropped rather than failing the whole listing.
		var a ListAction
		if st, ok := task.ParseStatus(str("status")); ok {
			a.Status = st
		}
		if p, ok := task.ParsePriority(str("priority")); ok {
			a.Priority = p
		}
		a.Category = category(str("category"))
		return a, nil

	case ActionSearch:
		q := str("query")
		if q == "" {
			return nil, invalid("Search query required")
		}
		return SearchAction{Query: q}, nil

	case ActionComplete:
		if str("title") == "" {
			return nil, invalid("Task title required")
		}
		return CompleteAction{Title: str("title")}, nil

	case ActionDelete:
		if str("title") == "" {
			return nil, invalid("Task title required")
		}
		return DeleteAction{Title: str("title")}, nil

	case ActionUpdate:
		a := UpdateAction{Title: str("title")}
		if a.Title == "" {
			return nil, invalid("Task title required")
		}
		if v := str("new_title"); v != "" {
			a.NewTitle = &v
		}
		if params.Get("description").Exists() {
			v := str("description")
			a.Description = &v
		}
		if raw := str("priority"); raw != "" {
			p, ok := task.ParsePriority(raw)
			if !ok {
				return nil, invalid(fmt.Sprintf("Unknown priority %q", raw))
			}
			a.Priority = &p
		}
		if raw := str("status"); raw != "" {
			st, ok := task.ParseStatus(raw)
			if !ok {
				return nil, invalid(fmt.Sprintf("Unknown status %q", raw))
			}
			a.Status = &st
		}
		if raw := str("due_date"); raw != "" {
			d, ok := resolveDate(raw, now)
			if !ok {
				return nil, invalid(fmt.Sprintf("Unknown due date %q", raw))
			}
			a.DueDate = &d
		}
		if a.NewTitle == nil && a.Description == nil && a.Priority == nil && a.Status == nil && a.DueDate == nil {
			return nil, invalid("Nothing to update")
		}
		return a, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
}

func resolveDate(raw string, now time.Time) (string, bool) {
	if t, err := time.Parse(nlp.ISODate, raw); err == nil {
		return t.Format(nlp.ISODate), true
	}
	return nlp.ParseRelativeDate(raw, now)
}

// category drops the "optional" and "a/b" placeholders models copy from the
// function list.
func category(raw string) string {
	if strings.EqualFold(raw, "optional") || strings.Contains(raw, "/") {
		return ""
	}
	return raw
}
