package task

import (
	"strings"

	"taskmate/app/pkg/fuzzy"
)

// FindByTitle resolves a loosely typed title to one of tasks. It tries an
// exact case-insensitive match, then containment in either direction, then a
// fuzzy match at fuzzy.DefaultThreshold. The first task in each tier wins.
func FindByTitle(tasks []Task, query string) (Task, bool) {
	needle := NormalizeTitle(query)
	if needle == "" {
		return Task{}, false
	}
	for _, t := range tasks {
		if NormalizeTitle(t.Title) == needle {
			return t, true
		}
	}
	for _, t := range tasks {
		title := NormalizeTitle(t.Title)
		if strings.Contains(title, needle) || strings.Contains(needle, title) {
			return t, true
		}
	}
	for _, t := range tasks {
		if _, ok := fuzzy.Match(needle, []string{NormalizeTitle(t.Title)}, fuzzy.DefaultThreshold); ok {
			return t, true
		}
	}
	return Task{}, false
}

// FindDuplicate reports an active task whose normalized title equals title.
func FindDuplicate(tasks []Task, title string) (Task, bool) {
	needle := NormalizeTitle(title)
	if needle == "" {
		return Task{}, false
	}
	for _, t := range tasks {
		if t.Active() && NormalizeTitle(t.Title) == needle {
			return t, true
		}
	}
	return Task{}, false
}

// NormalizeTitle lower-cases title and collapses its whitespace.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
