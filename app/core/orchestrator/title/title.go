package title

import (
	"context"
	"strings"
	"unicode/utf8"

	"taskmate/app/core/llm"
	"taskmate/app/core/nlp"
	"taskmate/app/pkg/logger"
)

const (
	DefaultWordThreshold = 10
	DefaultMaxChars      = 60
)

// Extractor derives task titles. Long requests are summarized by the
// completion service; everything else, and every failed call, goes through
// the keyword stripper.
type Extractor struct {
	completer     llm.Completer
	wordThreshold int
	maxChars      int
}

func NewExtractor(completer llm.Completer, wordThreshold int, maxChars int) *Extractor {
	if wordThreshold <= 0 {
		wordThreshold = DefaultWordThreshold
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Extractor{
		completer:     completer,
		wordThreshold: wordThreshold,
		maxChars:      maxChars,
	}
}

func (e *Extractor) Extract(ctx context.Context, text string) string {
	if len(strings.Fields(text)) <= e.wordThreshold {
		return nlp.ExtractTaskTitle(text)
	}
	res := e.summarize(ctx, text)
	if !res.OK() {
		logger.Info("Title summary fell back to keyword stripping: %s", res.Failure)
		return nlp.ExtractTaskTitle(text)
	}
	return res.Value
}

func (e *Extractor) summarize(ctx context.Context, text string) llm.Result[string] {
	res := llm.Complete(ctx, e.completer, llm.Request{
		Stage:       llm.StageTitle,
		Prompt:      buildTitlePrompt(text),
		Temperature: 0.1,
		MaxTokens:   30,
	})
	if !res.OK() {
		return res
	}
	out := cleanSummary(res.Value)
	if out == "" {
		return llm.Fail[string](llm.FailureEmptyResponse, nil)
	}
	if utf8.RuneCountInString(out) >= e.maxChars {
		return llm.Fail[string](llm.FailureInvalidValue, nil)
	}
	return llm.Succeed(out)
}

// cleanSummary keeps the first line of the reply without an echoed label or
// surrounding quotes.
func cleanSummary(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) >= len("output:") && strings.EqualFold(s[:len("output:")], "output:") {
		s = s[len("output:"):]
	}
	return strings.Trim(strings.TrimSpace(s), `"'`+"`")
}

func buildTitlePrompt(text string) string {
	var b strings.Builder
	b.WriteString("Extract the main task/action from this sentence as a short, clear task title (max 6 words).\n\n")
	b.WriteString("Examples:\n")
	for _, ex := range titleExamples {
		b.WriteString("Input: \"" + ex[0] + "\"\n")
		b.WriteString("Output: " + ex[1] + "\n\n")
	}
	b.WriteString("Now extract from:\n")
	b.WriteString("Input: \"" + text + "\"\n")
	b.WriteString("Output:")
	return b.String()
}

var titleExamples = [][2]string{
	{"I have a tight schedule but still want to hold a meeting tomorrow with my boss", "meeting with boss"},
	{"Need to urgently buy groceries for the party next week", "buy groceries for party"},
	{"Reminder to call the dentist about my appointment", "call dentist about appointment"},
	{"I should probably finish the quarterly report by tomorrow", "finish quarterly report"},
	{"Don't forget to send email to client", "send email to client"},
}
