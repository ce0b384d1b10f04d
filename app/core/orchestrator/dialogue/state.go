package dialogue

import (
	"taskmate/app/core/llm"
	"taskmate/app/core/orchestrator/intent"
	"taskmate/app/core/orchestrator/task"
)

type Mode string

const (
	ModeNormal       Mode = "normal"
	ModeAwaitingInfo Mode = "awaiting_info"
)

const (
	SlotDate     = "date"
	SlotPriority = "priority"
)

// PendingTask is a creation request still waiting for a due date or a
// priority.
type PendingTask struct {
	Title    string
	DueDate  string
	Priority task.Priority
	Tags     []string
}

func (p *PendingTask) missing() []string {
	var out []string
	if p.DueDate == "" {
		out = append(out, SlotDate)
	}
	if p.Priority == "" {
		out = append(out, SlotPriority)
	}
	return out
}

// State is the slot-filling state of one session. Mode is ModeAwaitingInfo
// exactly when Pending is set.
type State struct {
	Mode          Mode
	Pending       *PendingTask
	Missing       []string
	OriginalQuery string
}

// Turn records how the latest message was routed. Intent is empty for
// follow-up answers, which skip classification; Action is set when a task
// operation ran.
type Turn struct {
	Intent   intent.Intent
	Fallback bool
	Action   ActionKind
}

func normalState() State {
	return State{Mode: ModeNormal}
}

func (s State) clone() State {
	out := s
	if s.Pending != nil {
		p := *s.Pending
		p.Tags = append([]string(nil), s.Pending.Tags...)
		out.Pending = &p
	}
	out.Missing = append([]string(nil), s.Missing...)
	return out
}

// History keeps the most recent conversation turns, evicting the oldest once
// limit is reached.
type History struct {
	limit int
	items []llm.Message
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

func (h *History) Append(role, content string) {
	h.items = append(h.items, llm.Message{Role: role, Content: content})
	if over := len(h.items) - h.limit; over > 0 {
		h.items = append([]llm.Message(nil), h.items[over:]...)
	}
}

// Last returns a copy of the newest n entries.
func (h *History) Last(n int) []llm.Message {
	if n <= 0 || n > len(h.items) {
		n = len(h.items)
	}
	return append([]llm.Message(nil), h.items[len(h.items)-n:]...)
}

func (h *History) Items() []llm.Message {
	return h.Last(0)
}

func (h *History) Len() int {
	return len(h.items)
}

func (h *History) Clear() {
	h.items = nil
}
