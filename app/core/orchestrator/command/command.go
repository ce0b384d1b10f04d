// Package command dispatches slash commands such as /help or /reset that
// bypass the conversational pipeline.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"taskmate/app/pkg/logger"
	"taskmate/app/pkg/types"
)

type Handler func(ctx context.Context, msg types.Message, args []string) (string, error)

type entry struct {
	handler Handler
	usage   string
}

// Executor holds the registered commands. It is safe for concurrent use.
type Executor struct {
	mu       sync.RWMutex
	commands map[string]entry
	auditDir string
	auditMu  sync.Mutex
	now      func() time.Time
}

type auditEntry struct {
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	RequestID string `json:"request_id"`
	Command   string `json:"command"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason,omitempty"`
}

// NewExecutor returns an executor that appends one JSONL audit record per
// command under auditDir. An empty auditDir only logs.
func NewExecutor(auditDir string) *Executor {
	return &Executor{
		commands: map[string]entry{},
		auditDir: strings.TrimSpace(auditDir),
		now:      time.Now,
	}
}

func (e *Executor) Register(name string, usage string, handler Handler) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || handler == nil {
		return
	}
	e.mu.Lock()
	e.commands[name] = entry{handler: handler, usage: usage}
	e.mu.Unlock()
}

// ExecuteSlash runs msg.Content when it is a slash command. The boolean is
// false when the message is not a command at all.
func (e *Executor) ExecuteSlash(ctx context.Context, msg types.Message) (string, bool, error) {
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, "/") {
		return "", false, nil
	}
	cmd := strings.TrimSpace(strings.TrimPrefix(content, "/"))
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return "", false, nil
	}
	name := strings.ToLower(parts[0])

	if name == "help" {
		e.audit(msg, cmd, "allow", "")
		return e.helpText(), true, nil
	}

	e.mu.RLock()
	found, ok := e.commands[name]
	e.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("unknown command: /%s (try /help)", name)
		e.audit(msg, cmd, "deny", err.Error())
		return "", true, err
	}

	out, err := found.handler(ctx, msg, parts[1:])
	if err != nil {
		e.audit(msg, cmd, "error", err.Error())
		return out, true, err
	}
	e.audit(msg, cmd, "allow", "")
	return out, true, nil
}

func (e *Executor) helpText() string {
	e.mu.RLock()
	names := make([]string, 0, len(e.commands))
	for name := range e.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("  /help  Show this list\n")
	for _, name := range names {
		b.WriteString(fmt.Sprintf("  /%s  %s\n", name, e.commands[name].usage))
	}
	e.mu.RUnlock()
	return strings.TrimSpace(b.String())
}

func (e *Executor) audit(msg types.Message, cmd string, decision string, reason string) {
	logger.Info("%s", formatAuditLine(msg.UserID, msg.ChannelID, msg.RequestID, cmd, decision, reason))
	if e.auditDir == "" {
		return
	}
	if err := e.appendAudit(e.now(), msg, cmd, decision, reason); err != nil {
		logger.Warn("[AUDIT] Failed to append command audit entry: %v", err)
	}
}

func formatAuditLine(userID, channelID, requestID, cmd, decision, reason string) string {
	line := fmt.Sprintf("[AUDIT] user=%s channel=%s request=%s decision=%s command=%q",
		orDefault(userID, "anonymous"), orDefault(channelID, "unknown"), orDefault(requestID, "n/a"), decision, cmd)
	if strings.TrimSpace(reason) != "" {
		line += fmt.Sprintf(" reason=%q", reason)
	}
	return line
}

func (e *Executor) appendAudit(ts time.Time, msg types.Message, cmd, decision, reason string) error {
	payload, err := json.Marshal(auditEntry{
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		UserID:    orDefault(msg.UserID, "anonymous"),
		ChannelID: orDefault(msg.ChannelID, "unknown"),
		RequestID: orDefault(msg.RequestID, "n/a"),
		Command:   strings.TrimSpace(cmd),
		Decision:  decision,
		Reason:    strings.TrimSpace(reason),
	})
	if err != nil {
		return err
	}

	dayDir := filepath.Join(e.auditDir, ts.Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		return err
	}

	e.auditMu.Lock()
	defer e.auditMu.Unlock()
	f, err := os.OpenFile(filepath.Join(dayDir, "commands.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(payload, '\n'))
	return err
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}
