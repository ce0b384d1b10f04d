package nlp

import (
	"regexp"
	"strings"

	"taskmate/app/core/orchestrator/task"
	"taskmate/app/pkg/fuzzy"
)

// PriorityThreshold is the fuzzy ratio a message needs to count as a
// misspelled priority keyword.
const PriorityThreshold = 0.7

type PriorityBucket struct {
	Priority task.Priority
	Variants []string
}

// PriorityTable maps keywords and their common misspellings to priorities.
// Buckets are checked in the order given.
type PriorityTable struct {
	buckets  []PriorityBucket
	patterns []*regexp.Regexp
	any      *regexp.Regexp
}

func NewPriorityTable(buckets ...PriorityBucket) *PriorityTable {
	t := &PriorityTable{buckets: buckets}
	var all []string
	for _, b := range buckets {
		t.patterns = append(t.patterns, phrasePattern(b.Variants))
		all = append(all, b.Variants...)
	}
	t.any = phrasePattern(all)
	return t
}

var defaultPriorities = NewPriorityTable(
	PriorityBucket{task.PriorityUrgent, []string{"urgent", "urgnt", "urget", "asap", "critical", "immdiate", "immediate", "immediately", "critcal", "criti", "assp"}},
	PriorityBucket{task.PriorityHigh, []string{"high", "hgh", "hi", "important", "imprtant", "soon", "sn", "impt", "hig", "importnt"}},
	PriorityBucket{task.PriorityMedium, []string{"medium", "medim", "medum", "normal", "normaal", "regular", "regulr", "mid", "norm", "med", "avg"}},
	PriorityBucket{task.PriorityLow, []string{"low", "lo", "lw", "later", "latr", "laater", "minor", "ltr", "less"}},
)

// ExtractPriority finds a priority keyword in text. Whole-word matches are
// tried for every bucket first (urgent, high, medium, low); only then is the
// whole message fuzzily compared with each bucket's variants.
func ExtractPriority(text string) (task.Priority, bool) {
	return defaultPriorities.Extract(text)
}

func (t *PriorityTable) Extract(text string) (task.Priority, bool) {
	lower := strings.ToLower(text)
	for i, b := range t.buckets {
		if t.patterns[i].MatchString(lower) {
			return b.Priority, true
		}
	}
	if strings.TrimSpace(lower) == "" {
		return "", false
	}
	for _, b := range t.buckets {
		if _, ok := fuzzy.Match(lower, b.Variants, PriorityThreshold); ok {
			return b.Priority, true
		}
	}
	return "", false
}

// Strip removes every priority keyword from text.
func (t *PriorityTable) Strip(text string) string {
	return t.any.ReplaceAllString(text, " ")
}
