package dialogue

import (
	"regexp"
	"strings"
	"time"

	"taskmate/app/core/nlp"
	"taskmate/app/core/orchestrator/task"
)

var (
	completeCommand = regexp.MustCompile(`(?i)^(?:complete|finish|done(?:\s+with)?)\s+(.+)$`)
	markCommand     = regexp.MustCompile(`(?i)^mark\s+(.+?)\s+as\s+(?:done|complete|completed|finished)$`)
	deleteCommand   = regexp.MustCompile(`(?i)^(?:delete|remove)\s+(.+)$`)
	searchCommand   = regexp.MustCompile(`(?i)^(?:search|find)(?:\s+for)?\s+(.+)$`)
	updateCommand   = regexp.MustCompile(`(?i)^(?:update|change|set)\s+(.+?)\s+to\s+(.+)$`)
	listCommand     = regexp.MustCompile(`(?i)^(?:list|show)\b(.*)$`)
	updateFieldWord = regexp.MustCompile(`(?i)\s+(?:priority|status|due\s+date|due|deadline)$`)
	articlePrefix   = regexp.MustCompile(`(?i)^(?:the|my)\s+`)
	taskSuffix      = regexp.MustCompile(`(?i)\s+(?:task|todo)$`)
)

// ParseCommand maps a plain imperative such as "complete buy milk" or
// "change rent to urgent" onto an Action without the completion service.
func ParseCommand(text string, now time.Time) (Action, bool) {
	text = strings.Trim(strings.Join(strings.Fields(text), " "), " .!?")
	if text == "" {
		return nil, false
	}

	if m := listCommand.FindStringSubmatch(text); m != nil {
		var a ListAction
		for _, w := range strings.Fields(strings.ToLower(m[1])) {
			if st, ok := task.ParseStatus(w); ok {
				a.Status = st
			}
			if p, ok := task.ParsePriority(w); ok {
				a.Priority = p
			}
		}
		if strings.Contains(strings.ToLower(m[1]), "in progress") {
			a.Status = task.StatusInProgress
		}
		return a, true
	}
	if m := markCommand.FindStringSubmatch(text); m != nil {
		return CompleteAction{Title: cleanTarget(m[1])}, true
	}
	if m := completeCommand.FindStringSubmatch(text); m != nil {
		return CompleteAction{Title: cleanTarget(m[1])}, true
	}
	if m := deleteCommand.FindStringSubmatch(text); m != nil {
		return DeleteAction{Title: cleanTarget(m[1])}, true
	}
	if m := searchCommand.FindStringSubmatch(text); m != nil {
		return SearchAction{Query: m[1]}, true
	}
	if m := updateCommand.FindStringSubmatch(text); m != nil {
		return parseUpdateCommand(cleanTarget(updateFieldWord.ReplaceAllString(m[1], "")), m[2], now)
	}
	return nil, false
}

func parseUpdateCommand(title string, value string, now time.Time) (Action, bool) {
	if title == "" {
		return nil, false
	}
	a := UpdateAction{Title: title}
	switch {
	case setPriority(&a, value):
	case setStatus(&a, value):
	default:
		d, ok := nlp.ParseRelativeDate(value, now)
		if !ok {
			return nil, false
		}
		a.DueDate = &d
	}
	return a, true
}

func setPriority(a *UpdateAction, value string) bool {
	p, ok := task.ParsePriority(value)
	if !ok {
		return false
	}
	a.Priority = &p
	return true
}

func setStatus(a *UpdateAction, value string) bool {
	st, ok := task.ParseStatus(value)
	if !ok {
		return false
	}
	a.Status = &st
	return true
}

func cleanTarget(s string) string {
	s = articlePrefix.ReplaceAllString(strings.TrimSpace(s), "")
	s = taskSuffix.ReplaceAllString(s, "")
	return strings.Trim(s, `"'`)
}
