package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskmate/app/core/orchestrator/dialogue"
	"taskmate/app/pkg/types"
)

var errNoUser = errors.New("no user authenticated")

func (a *DefaultAgent) registerCommands() {
	a.command.Register("reset", "Drop the task waiting for a date or priority", a.resetCommand)
	a.command.Register("clear", "Forget the conversation history", a.clearCommand)
	a.command.Register("history", "Show the remembered conversation", a.historyCommand)
	a.command.Register("tasks", "Show task counts and completion rate", a.statsCommand)
	a.command.Register("whoami", "Show the current user and session", a.whoamiCommand)
}

func (a *DefaultAgent) resetCommand(_ context.Context, msg types.Message, _ []string) (string, error) {
	var title string
	a.withSession(msg, func(d *dialogue.Orchestrator) {
		if p := d.State().Pending; p != nil {
			title = p.Title
		}
		d.ResetState()
	})
	if title == "" {
		return "Nothing pending.", nil
	}
	return fmt.Sprintf("Dropped pending task '%s'.", title), nil
}

func (a *DefaultAgent) clearCommand(_ context.Context, msg types.Message, _ []string) (string, error) {
	a.withSession(msg, func(d *dialogue.Orchestrator) {
		d.ClearHistory()
	})
	return "Conversation history cleared.", nil
}

func (a *DefaultAgent) historyCommand(_ context.Context, msg types.Message, _ []string) (string, error) {
	var b strings.Builder
	a.withSession(msg, func(d *dialogue.Orchestrator) {
		for _, m := range d.History() {
			b.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
		}
	})
	if b.Len() == 0 {
		return "No conversation yet.", nil
	}
	return strings.TrimSpace(b.String()), nil
}

func (a *DefaultAgent) statsCommand(ctx context.Context, msg types.Message, _ []string) (string, error) {
	if msg.UserID == "" {
		return "", errNoUser
	}
	if a.store == nil {
		return "", errors.New("task store is not available")
	}
	st, err := a.store.Stats(ctx, msg.UserID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📊 %d task(s): %d todo, %d in progress, %d completed (%.1f%% done)",
		st.Total, st.Todo, st.InProgress, st.Completed, st.CompletionRate), nil
}

func (a *DefaultAgent) whoamiCommand(_ context.Context, msg types.Message, _ []string) (string, error) {
	if msg.UserID == "" {
		return "", errNoUser
	}
	return fmt.Sprintf("User %s, session %s", msg.UserID, msg.SessionID), nil
}
