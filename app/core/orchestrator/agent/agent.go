// Package agent keeps one dialogue per session and routes inbound messages to
// slash commands or to that session's dialogue.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskmate/app/core/orchestrator/command"
	"taskmate/app/core/orchestrator/dialogue"
	"taskmate/app/core/orchestrator/execlog"
	"taskmate/app/core/orchestrator/task"
	"taskmate/app/pkg/logger"
	"taskmate/app/pkg/types"
)

const DefaultSessionIdle = 30 * time.Minute

// sessionRef scopes a session id to its user. Two users sending the same
// session id never share a dialogue.
type sessionRef struct {
	user string
	id   string
}

func (r sessionRef) String() string {
	return r.id + "@" + r.user
}

func refOf(msg types.Message) sessionRef {
	return sessionRef{user: msg.UserID, id: msg.SessionID}
}

type session struct {
	mu       sync.Mutex
	dialogue *dialogue.Orchestrator
	lastSeen time.Time
}

type DefaultAgent struct {
	name    string
	deps    dialogue.Deps
	cfg     dialogue.Config
	store   task.Store
	command *command.Executor
	idle    time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[sessionRef]*session
}

// NewAgent builds an agent whose sessions share deps. Sessions unused for
// longer than idle are dropped; idle <= 0 uses DefaultSessionIdle.
func NewAgent(name string, deps dialogue.Deps, cfg dialogue.Config, commands *command.Executor, idle time.Duration) *DefaultAgent {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	if commands == nil {
		commands = command.NewExecutor("")
	}
	a := &DefaultAgent{
		name:     name,
		deps:     deps,
		cfg:      cfg,
		store:    deps.Store,
		command:  commands,
		idle:     idle,
		now:      time.Now,
		sessions: map[sessionRef]*session{},
	}
	a.registerCommands()
	return a
}

func (a *DefaultAgent) Name() string {
	return a.name
}

func (a *DefaultAgent) Process(ctx context.Context, msg types.Message) (types.Message, error) {
	msg.ChannelID = orDefault(msg.ChannelID, "unknown")
	msg.UserID = strings.TrimSpace(msg.UserID)
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.RequestID == "" {
		msg.RequestID = msg.ID
	}
	msg.SessionID = sessionKey(msg)

	ctx = execlog.WithMeta(ctx, execlog.Meta{
		SessionID: msg.SessionID,
		UserID:    msg.UserID,
		ChannelID: msg.ChannelID,
	})

	if out, handled, err := a.command.ExecuteSlash(ctx, msg); handled {
		meta := map[string]interface{}{"command": commandName(msg.Content)}
		if err != nil {
			meta["command_error"] = true
			return a.newReply(msg, fmt.Sprintf("Command failed: %v", err), meta), nil
		}
		return a.newReply(msg, out, meta), nil
	}

	s := a.session(refOf(msg))
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dialogue.SetSessionUser(msg.UserID)
	reply := s.dialogue.HandleMessage(ctx, msg.Content)
	return a.newReply(msg, reply, turnMeta(s.dialogue)), nil
}

// turnMeta exposes the routing of the last turn to channels and the gateway
// trace.
func turnMeta(d *dialogue.Orchestrator) map[string]interface{} {
	turn := d.LastTurn()
	meta := map[string]interface{}{
		"mode": string(d.State().Mode),
	}
	if turn.Intent != "" {
		meta["intent"] = string(turn.Intent)
		meta["intent_fallback"] = turn.Fallback
	}
	if turn.Action != "" {
		meta["action"] = string(turn.Action)
	}
	return meta
}

func commandName(content string) string {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[0], "/")
}

// sessionKey prefers an explicit session id and otherwise keys by channel
// and user so each user gets their own dialogue per surface.
func sessionKey(msg types.Message) string {
	if id := strings.TrimSpace(msg.SessionID); id != "" {
		return id
	}
	return msg.ChannelID + ":" + orDefault(msg.UserID, "anonymous")
}

func (a *DefaultAgent) session(key sessionRef) *session {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	s, ok := a.sessions[key]
	if !ok {
		a.pruneLocked(now)
		s = &session{dialogue: dialogue.New(a.deps, a.cfg)}
		a.sessions[key] = s
		logger.Info("[Agent] Opened session %s (%d active)", key, len(a.sessions))
	}
	s.lastSeen = now
	return s
}

func (a *DefaultAgent) pruneLocked(now time.Time) {
	for key, s := range a.sessions {
		if now.Sub(s.lastSeen) > a.idle {
			delete(a.sessions, key)
			logger.Info("[Agent] Closed idle session %s", key)
		}
	}
}

// PruneIdle closes sessions unused for longer than the idle window and
// reports how many were closed.
func (a *DefaultAgent) PruneIdle() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	before := len(a.sessions)
	a.pruneLocked(a.now())
	return before - len(a.sessions)
}

// withSession runs fn under the lock of the sender's existing session. It
// reports false when the sender has no such session.
func (a *DefaultAgent) withSession(msg types.Message, fn func(*dialogue.Orchestrator)) bool {
	a.mu.Lock()
	s, ok := a.sessions[refOf(msg)]
	a.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialogue.Username() != msg.UserID {
		return false
	}
	fn(s.dialogue)
	return true
}

func (a *DefaultAgent) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Status reports runtime counters for the status endpoint.
func (a *DefaultAgent) Status(context.Context) map[string]interface{} {
	return map[string]interface{}{
		"agent":    a.name,
		"sessions": a.SessionCount(),
	}
}

func (a *DefaultAgent) newReply(msg types.Message, content string, meta map[string]interface{}) types.Message {
	replyMeta := map[string]interface{}{}
	for k, v := range meta {
		replyMeta[k] = v
	}
	replyMeta["session_id"] = msg.SessionID
	return types.Message{
		ID:        "resp-" + msg.ID,
		Content:   content,
		Role:      types.MessageRoleAssistant,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		RequestID: msg.RequestID,
		Meta:      replyMeta,
	}
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
