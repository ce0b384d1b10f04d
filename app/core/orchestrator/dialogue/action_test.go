package dialogue

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"taskmate/app/core/orchestrator/task"
)

func ptr[T any](v T) *T { return &v }

func TestParseAction(t *testing.T) {
	cases := []struct {
		name string
		call string
		want Action
	}{
		{
			name: "create with relative date",
			call: `{"function": "create_task", "parameters": {"title": "Buy milk", "priority": "High", "due_date": "tomorrow", "tags": ["home", " "]}}`,
			want: CreateAction{Title: "Buy milk", Priority: task.PriorityHigh, DueDate: "2024-01-02", Tags: []string{"home"}},
		},
		{
			name: "list drops placeholder filters",
			call: `{"function": "list_tasks", "parameters": {"status": "todo/in_progress/completed", "priority": "urgent"}}`,
			want: ListAction{Priority: task.PriorityUrgent},
		},
		{
			name: "list by category",
			call: `{"function": "list_tasks", "parameters": {"category": "work", "status": "todo"}}`,
			want: ListAction{Status: task.StatusTodo, Category: "work"},
		},
		{
			name: "list ignores category placeholder",
			call: `{"function": "list_tasks", "parameters": {"category": "optional"}}`,
			want: ListAction{},
		},
		{
			name: "list without parameters",
			call: `{"function": "list_tasks"}`,
			want: ListAction{},
		},
		{
			name: "search via name and arguments",
			call: `{"name": "search_tasks", "arguments": {"query": "doctor"}}`,
			want: SearchAction{Query: "doctor"},
		},
		{
			name: "complete",
			call: `{"function": "complete_task", "parameters": {"title": "buy milk"}}`,
			want: CompleteAction{Title: "buy milk"},
		},
		{
			name: "delete",
			call: `{"function": "DELETE_TASK", "parameters": {"title": "rent"}}`,
			want: DeleteAction{Title: "rent"},
		},
		{
			name: "update several fields",
			call: `{"function": "update_task", "parameters": {"title": "rent", "new_title": "Pay rent", "status": "in progress", "due_date": "2024-02-01"}}`,
			want: UpdateAction{Title: "rent", NewTitle: ptr("Pay rent"), Status: ptr(task.StatusInProgress), DueDate: ptr("2024-02-01")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAction(gjson.Parse(tc.call), monday)
			if err != nil {
				t.Fatalf("ParseAction failed: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("unexpected action (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseActionRejects(t *testing.T) {
	cases := []struct {
		call string
		want error
	}{
		{`{"parameters": {"title": "x"}}`, ErrNoAction},
		{`{"function": "archive_task", "parameters": {"title": "x"}}`, ErrUnknownAction},
		{`{"function": "create_task", "parameters": {"title": " "}}`, task.ErrInvalid},
		{`{"function": "create_task", "parameters": {"title": "x", "priority": "extreme"}}`, task.ErrInvalid},
		{`{"function": "create_task", "parameters": {"title": "x", "due_date": "someday"}}`, task.ErrInvalid},
		{`{"function": "search_tasks", "parameters": {}}`, task.ErrInvalid},
		{`{"function": "complete_task", "parameters": {}}`, task.ErrInvalid},
		{`{"function": "delete_task", "parameters": {"title": ""}}`, task.ErrInvalid},
		{`{"function": "update_task", "parameters": {"title": "x"}}`, task.ErrInvalid},
		{`{"function": "update_task", "parameters": {"title": "x", "status": "blocked"}}`, task.ErrInvalid},
	}
	for _, tc := range cases {
		_, err := ParseAction(gjson.Parse(tc.call), monday)
		if !errors.Is(err, tc.want) {
			t.Fatalf("ParseAction(%s) error = %v, want %v", tc.call, err, tc.want)
		}
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text string
		want Action
	}{
		{"show tasks", ListAction{}},
		{"list my completed tasks", ListAction{Status: task.StatusCompleted}},
		{"show urgent tasks", ListAction{Priority: task.PriorityUrgent}},
		{"show tasks in progress", ListAction{Status: task.StatusInProgress}},
		{"complete buy milk", CompleteAction{Title: "buy milk"}},
		{"Done with the report!", CompleteAction{Title: "report"}},
		{"mark laundry task as done", CompleteAction{Title: "laundry"}},
		{"delete my dentist appointment", DeleteAction{Title: "dentist appointment"}},
		{"remove \"rent\"", DeleteAction{Title: "rent"}},
		{"search for doctor", SearchAction{Query: "doctor"}},
		{"find groceries", SearchAction{Query: "groceries"}},
		{"change rent priority to high", UpdateAction{Title: "rent", Priority: ptr(task.PriorityHigh)}},
		{"set report status to completed", UpdateAction{Title: "report", Status: ptr(task.StatusCompleted)}},
		{"update rent due date to next monday", UpdateAction{Title: "rent", DueDate: ptr("2024-01-08")}},
	}
	for _, tc := range cases {
		got, ok := ParseCommand(tc.text, monday)
		if !ok {
			t.Fatalf("ParseCommand(%q) found no command", tc.text)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("ParseCommand(%q) mismatch (-want +got):\n%s", tc.text, diff)
		}
	}
}

func TestParseCommandIgnoresChat(t *testing.T) {
	for _, text := range []string{"", "hello", "how are you?", "change rent to whenever", "buy milk"} {
		if a, ok := ParseCommand(text, monday); ok {
			t.Fatalf("ParseCommand(%q) = %#v, want no command", text, a)
		}
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for _, s := range []string{"a", "b", "c", "d"} {
		h.Append("user", s)
	}
	if h.Len() != 3 {
		t.Fatalf("unexpected length: %d", h.Len())
	}
	got := h.Last(2)
	if got[0].Content != "c" || got[1].Content != "d" {
		t.Fatalf("unexpected tail: %+v", got)
	}
	if items := h.Items(); items[0].Content != "b" {
		t.Fatalf("oldest entry should be evicted: %+v", items)
	}
}
