package nlp

import "regexp"

var taskVerbs = phrasePattern([]string{
	"buy", "purchase", "get", "grab", "pick up",
	"call", "phone", "contact", "reach", "text",
	"send", "email", "message", "forward", "reply",
	"meet", "meeting", "schedule", "book", "arrange",
	"finish", "complete", "submit", "deliver", "hand in",
	"write", "draft", "prepare", "create", "make",
	"review", "check", "verify", "confirm", "validate",
	"update", "fix", "repair", "replace", "modify",
	"order", "reserve", "organize", "plan", "setup",
	"pay", "renew", "cancel", "return", "refund",
	"clean", "wash", "cook", "file",
	"print", "scan", "copy", "download", "upload",
	"install", "uninstall", "backup", "restore",
})

var taskPhrases = phrasePattern([]string{
	"remind me", "reminder", "don't forget", "dont forget",
	"need to", "have to", "must", "should", "want to",
	"going to", "got to", "gotta", "supposed to",
})

// HasTaskIntent reports whether text contains an action verb or a phrase
// that usually introduces a to-do item.
func HasTaskIntent(text string) bool {
	return taskVerbs.MatchString(text) || taskPhrases.MatchString(text)
}

var operationCommand = regexp.MustCompile(`(?i)^\s*(?:list|show|complete|finish|done|mark|delete|remove|search|find|update|change)\b`)

// HasOperationCommand reports whether text starts with a verb that acts on
// existing tasks, such as "complete buy milk" or "show my tasks".
func HasOperationCommand(text string) bool {
	return operationCommand.MatchString(text)
}
