package nlp

import (
	"regexp"
	"strings"
)

var fillerPhrases = phrasePattern([]string{
	"create task", "add task", "new task", "create a task", "add a task",
	"remind me to", "reminder to",
	"i need to", "i want to", "i have to", "i should", "i must",
	"i'm going to", "im going to",
	"don't forget to", "dont forget to", "don't forget", "dont forget",
	"gotta", "got to",
	"please", "can you", "could you",
	"to do", "todo", "task", "priority",
})

var (
	trailingConnector = regexp.MustCompile(`(?i)\s*\b(?:by|on|at|for|with|due|before|until|and)\s*$`)
	leadingConnector  = regexp.MustCompile(`(?i)^\s*(?:to|and)\b\s*`)
)

const titlePunctuation = " \t,.;:!?-"

// ExtractTaskTitle strips date and priority keywords, hashtags and common
// request phrasing from text. The result is stable under repeated application
// and falls back to text itself when nothing would remain.
func ExtractTaskTitle(text string) string {
	title := collapseSpaces(text)
	for {
		next := cleanTitle(title)
		if next == title {
			break
		}
		title = next
	}
	if title == "" {
		return text
	}
	return title
}

func cleanTitle(s string) string {
	s = hashtagPattern.ReplaceAllString(s, " ")
	s = defaultDates.Strip(s)
	s = defaultPriorities.Strip(s)
	s = fillerPhrases.ReplaceAllString(s, " ")
	s = collapseSpaces(s)
	s = trailingConnector.ReplaceAllString(s, "")
	s = leadingConnector.ReplaceAllString(s, "")
	return strings.Trim(collapseSpaces(s), titlePunctuation)
}
