// Package dialogue runs one user's conversation: it finishes pending
// slot-filling, classifies new messages and routes them to task creation or
// to the conversational path that can operate on existing tasks.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskmate/app/core/llm"
	"taskmate/app/core/nlp"
	"taskmate/app/core/orchestrator/intent"
	"taskmate/app/core/orchestrator/search"
	"taskmate/app/core/orchestrator/task"
	"taskmate/app/core/orchestrator/title"
	"taskmate/app/pkg/logger"
)

const (
	DefaultHistoryLimit  = 8
	DefaultContextWindow = 6
	DefaultListLimit     = 10
)

const (
	noUserReply      = "Error: No user authenticated"
	emptyInputReply  = "Please type a message."
	noTitleReply     = "❌ Could not extract task title"
	degradedReply    = "I can't reach my language service right now. You can still add tasks (\"Buy milk tomorrow urgent\") or use commands like \"show tasks\", \"complete buy milk\" or \"delete buy milk\"."
	priorityChoices  = "[Low] [Medium] [High] [Urgent]"
	conversationTemp = 0.3
	conversationMax  = 400
)

var abandonPhrases = map[string]bool{
	"cancel": true, "never mind": true, "nevermind": true, "forget it": true,
	"stop": true, "abort": true, "skip": true,
}

type Deps struct {
	Store     task.Store
	Completer llm.Completer
	Embedder  llm.Embedder
	// Search defaults to a service over Store and Embedder.
	Search *search.Service
	Now    func() time.Time
}

type Config struct {
	HistoryLimit       int
	ContextWindow      int
	TitleWordThreshold int
	TitleMaxChars      int
	ListLimit          int
}

// Orchestrator holds the dialogue state of a single session. It is not safe
// for concurrent use; callers serialize messages per session.
type Orchestrator struct {
	store      task.Store
	search     *search.Service
	completer  llm.Completer
	embedder   llm.Embedder
	classifier *intent.Classifier
	titles     *title.Extractor
	now        func() time.Time

	contextWindow int
	listLimit     int

	username string
	state    State
	history  *History
	turn     Turn
}

func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Search == nil {
		deps.Search = search.NewService(deps.Store, deps.Embedder, 0, 0)
	}
	return &Orchestrator{
		store:         deps.Store,
		search:        deps.Search,
		completer:     deps.Completer,
		embedder:      deps.Embedder,
		classifier:    intent.NewClassifier(deps.Completer),
		titles:        title.NewExtractor(deps.Completer, cfg.TitleWordThreshold, cfg.TitleMaxChars),
		now:           deps.Now,
		contextWindow: cfg.ContextWindow,
		listLimit:     cfg.ListLimit,
		state:         normalState(),
		history:       NewHistory(cfg.HistoryLimit),
	}
}

// SetSessionUser binds the session to username. Switching to a different
// user drops the previous user's pending task and history.
func (o *Orchestrator) SetSessionUser(username string) {
	username = strings.TrimSpace(username)
	if username == o.username {
		return
	}
	o.username = username
	o.ResetState()
	o.history.Clear()
}

func (o *Orchestrator) Username() string {
	return o.username
}

func (o *Orchestrator) ResetState() {
	o.state = normalState()
}

func (o *Orchestrator) ClearHistory() {
	o.history.Clear()
}

func (o *Orchestrator) History() []llm.Message {
	return o.history.Items()
}

func (o *Orchestrator) State() State {
	return o.state.clone()
}

func (o *Orchestrator) LastTurn() Turn {
	return o.turn
}

// HandleMessage processes one user message and returns the reply text.
func (o *Orchestrator) HandleMessage(ctx context.Context, text string) string {
	o.turn = Turn{}
	if o.username == "" {
		return noUserReply
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return emptyInputReply
	}

	if o.state.Mode == ModeAwaitingInfo {
		return o.followUp(ctx, text)
	}

	decision := o.classifier.Classify(ctx, text)
	logger.Info("[Dialogue] user=%s intent=%s confidence=%s fallback=%t", o.username, decision.Intent, decision.Confidence, decision.Fallback())
	o.turn.Intent = decision.Intent
	o.turn.Fallback = decision.Fallback()

	if decision.Intent == intent.TaskCreation {
		return o.startCreation(ctx, text)
	}
	return o.converse(ctx, text)
}

func (o *Orchestrator) followUp(ctx context.Context, text string) string {
	pending := o.state.Pending
	if abandonPhrases[strings.ToLower(strings.Trim(text, " .!"))] {
		o.ResetState()
		return fmt.Sprintf("👍 Okay, I won't create '%s'.", pending.Title)
	}

	if pending.DueDate == "" {
		if d, ok := nlp.ParseRelativeDate(text, o.now()); ok {
			pending.DueDate = d
		}
	}
	if pending.Priority == "" {
		if p, ok := nlp.ExtractPriority(text); ok {
			pending.Priority = p
		}
	}
	o.state.Missing = pending.missing()

	if len(o.state.Missing) == 0 {
		return o.materialize(ctx)
	}
	return missingPrompt(pending.Title, o.state.Missing)
}

func (o *Orchestrator) startCreation(ctx context.Context, text string) string {
	now := o.now()
	dueDate, _ := nlp.ParseRelativeDate(text, now)
	priority, _ := nlp.ExtractPriority(text)

	taskTitle := strings.TrimSpace(o.titles.Extract(ctx, text))
	if taskTitle == "" {
		return noTitleReply
	}

	pending := &PendingTask{
		Title:    taskTitle,
		DueDate:  dueDate,
		Priority: priority,
		Tags:     nlp.ExtractTags(text),
	}
	o.state = State{
		Mode:          ModeAwaitingInfo,
		Pending:       pending,
		Missing:       pending.missing(),
		OriginalQuery: text,
	}
	if len(o.state.Missing) == 0 {
		return o.materialize(ctx)
	}
	return missingPrompt(taskTitle, o.state.Missing)
}

// materialize creates the pending task and always returns to normal mode,
// whether or not the store accepted it.
func (o *Orchestrator) materialize(ctx context.Context) string {
	p := o.state.Pending
	o.ResetState()
	return o.run(ctx, CreateAction{
		Title:    p.Title,
		DueDate:  p.DueDate,
		Priority: p.Priority,
		Tags:     p.Tags,
	})
}

func missingPrompt(taskTitle string, missing []string) string {
	switch {
	case len(missing) == 2:
		return fmt.Sprintf("📝 To create '%s':\n\n📅 When? (today, tomorrow, next week)\n🎯 Priority? (low, medium, high, urgent)", taskTitle)
	case missing[0] == SlotDate:
		return fmt.Sprintf("📅 When should '%s' be done?", taskTitle)
	default:
		return fmt.Sprintf("🎯 What priority for '%s'?\n\n%s", taskTitle, priorityChoices)
	}
}

func (o *Orchestrator) converse(ctx context.Context, text string) string {
	o.history.Append(llm.RoleUser, text)

	res := llm.Complete(ctx, o.completer, llm.Request{
		Stage:       llm.StageConversation,
		System:      systemPrompt(o.now()),
		History:     o.history.Last(o.contextWindow),
		Temperature: conversationTemp,
		MaxTokens:   conversationMax,
	})

	var reply string
	if res.OK() {
		reply = o.handleModelReply(ctx, res.Value)
	} else {
		logger.Warn("[Dialogue] Conversation call failed (%s): %v", res.Failure, res.Err)
		if a, ok := ParseCommand(text, o.now()); ok {
			reply = o.run(ctx, a)
		} else {
			reply = degradedReply
		}
	}

	o.history.Append(llm.RoleAssistant, reply)
	return reply
}

// handleModelReply runs the function call embedded in the reply, if any, and
// otherwise returns the reply as conversation.
func (o *Orchestrator) handleModelReply(ctx context.Context, reply string) string {
	parsed := llm.ParseJSONObject(reply)
	if !parsed.OK() || !parsed.Value.Get("function").Exists() {
		return strings.TrimSpace(reply)
	}
	a, err := ParseAction(parsed.Value, o.now())
	if err != nil {
		logger.Warn("[Dialogue] Rejected function call: %v", err)
		return render("", err)
	}
	return o.run(ctx, a)
}

func systemPrompt(now time.Time) string {
	var b strings.Builder
	b.WriteString("You are TaskMate, an AI assistant. Today is " + now.Format(nlp.ISODate) + ".\n\n")
	b.WriteString("For task operations reply with exactly one JSON object:\n")
	b.WriteString(`- list_tasks: {"function": "list_tasks", "parameters": {"status": "todo/in_progress/completed", "priority": "low/medium/high/urgent", "category": "optional"}}` + "\n")
	b.WriteString(`- search_tasks: {"function": "search_tasks", "parameters": {"query": "text"}}` + "\n")
	b.WriteString(`- complete_task: {"function": "complete_task", "parameters": {"title": "task name"}}` + "\n")
	b.WriteString(`- delete_task: {"function": "delete_task", "parameters": {"title": "task name"}}` + "\n")
	b.WriteString(`- update_task: {"function": "update_task", "parameters": {"title": "task name", "new_title": "optional", "priority": "optional", "status": "optional", "due_date": "YYYY-MM-DD, optional"}}` + "\n\n")
	b.WriteString("For greetings and casual conversation, respond naturally without JSON.")
	return b.String()
}
