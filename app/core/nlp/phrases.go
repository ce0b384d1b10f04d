// Package nlp holds the keyword driven extractors that turn free text into
// task attributes. Every function is pure; the matching tables are plain data
// so they can be extended without touching the dialogue code.
package nlp

import (
	"regexp"
	"sort"
	"strings"
)

// phrasePattern compiles a case-insensitive, word-bounded alternation of
// phrases. Longer phrases are tried first and inner spaces match any run of
// whitespace.
func phrasePattern(phrases []string) *regexp.Regexp {
	sorted := append([]string(nil), phrases...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	parts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		parts = append(parts, strings.Join(words, `\s+`))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
