package nlp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"taskmate/app/core/orchestrator/task"
)

func TestExtractPriority(t *testing.T) {
	cases := []struct {
		text string
		want task.Priority
		ok   bool
	}{
		{"this is URGENT", task.PriorityUrgent, true},
		{"asap please", task.PriorityUrgent, true},
		{"important meeting", task.PriorityHigh, true},
		{"normal", task.PriorityMedium, true},
		{"do it later", task.PriorityLow, true},
		{"urgant", task.PriorityUrgent, true},
		{"Buy flowers", "", false},
		{"this", "", false},
		{"", "", false},
		// urgent bucket wins even when a lower bucket keyword appears first
		{"low effort but critical", task.PriorityUrgent, true},
	}
	for _, tc := range cases {
		got, ok := ExtractPriority(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func TestParseRelativeDate(t *testing.T) {
	monday := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)
	cases := []struct {
		text string
		want string
	}{
		{"tomorrow", "2024-01-02"},
		{"tmrw pls", "2024-01-02"},
		{"today", "2024-01-01"},
		{"day after tomorrow", "2024-01-03"},
		{"next week", "2024-01-08"},
		{"this week", "2024-01-05"},
		{"in 3 days", "2024-01-04"},
		{"in 2 weeks", "2024-01-15"},
		{"next monday", "2024-01-08"},
		{"nxt fri", "2024-01-05"},
		{"on sunday", "2024-01-07"},
		{"due 2024-03-15", "2024-03-15"},
		{"due 15/03/2024", "2024-03-15"},
		{"due 5-3-2024", "2024-03-05"},
		{"tomorrow or 2024-03-15", "2024-01-02"},
	}
	for _, tc := range cases {
		got, ok := ParseRelativeDate(tc.text, monday)
		assert.True(t, ok, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}

	for _, text := range []string{"", "buy flowers", "2024-02-30", "31/04/2024", "next thing", "in 999999 days"} {
		_, ok := ParseRelativeDate(text, monday)
		assert.False(t, ok, text)
	}
}

func TestParseRelativeDateWeekBoundaries(t *testing.T) {
	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	saturday := friday.AddDate(0, 0, 1)

	got, _ := ParseRelativeDate("this week", friday)
	assert.Equal(t, "2024-01-05", got)
	got, _ = ParseRelativeDate("this week", saturday)
	assert.Equal(t, "2024-01-12", got)
	got, _ = ParseRelativeDate("next friday", friday)
	assert.Equal(t, "2024-01-12", got)
	got, _ = ParseRelativeDate("next sunday", saturday)
	assert.Equal(t, "2024-01-07", got)
}

func TestHasTaskIntent(t *testing.T) {
	for _, text := range []string{"Buy flowers", "please call mom", "remind me about rent", "I need to relax", "Pick up kids"} {
		assert.True(t, HasTaskIntent(text), text)
	}
	for _, text := range []string{"I work at Google", "hello there", "how are you?", "buying is fun"} {
		assert.False(t, HasTaskIntent(text), text)
	}
}

func TestHasOperationCommand(t *testing.T) {
	for _, text := range []string{"show my tasks", "Complete buy laptop", "  delete meeting", "mark rent as done"} {
		assert.True(t, HasOperationCommand(text), text)
	}
	for _, text := range []string{"Buy flowers", "please show tasks", "shower tomorrow"} {
		assert.False(t, HasOperationCommand(text), text)
	}
}

func TestExtractTags(t *testing.T) {
	assert.Equal(t, []string{"work", "q1"}, ExtractTags("Finish report #Work #q1 #work"))
	assert.Nil(t, ExtractTags("no tags here"))
	assert.Equal(t, "Finish report", ExtractTaskTitle("Finish report #work"))
}

func TestExtractTaskTitle(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Buy flowers", "Buy flowers"},
		{"Remind me to call mom tomorrow urgent", "call mom"},
		{"create task buy milk next week low priority", "buy milk"},
		{"finish the report by next friday with high priority", "finish the report"},
		{"I need to do laundry in 2 days", "do laundry"},
		{"Don't forget to pay rent on 2024-02-01", "pay rent"},
		{"urgent tomorrow", "urgent tomorrow"},
		{"  ", "  "},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractTaskTitle(tc.text), tc.text)
	}
}

func TestExtractorProperties(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	words := rapid.SampledFrom([]string{
		"buy", "milk", "tomorrow", "urgent", "hi", "next", "monday", "in", "3", "days",
		"remind", "me", "to", "task", "priority", "by", "with", "2024-01-05", "call", "mom", "!", "",
	})

	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOfN(words, 0, 10).Draw(t, "words")
		text := ""
		for _, p := range parts {
			text += p + " "
		}

		if p, ok := ExtractPriority(text); ok {
			require.Contains(t, task.Priorities, p)
		} else {
			require.Empty(t, p)
		}

		if d, ok := ParseRelativeDate(text, base); ok {
			_, err := time.Parse(ISODate, d)
			require.NoError(t, err)
		}

		title := ExtractTaskTitle(text)
		require.Equal(t, title, ExtractTaskTitle(title))
		if text != "" {
			require.NotEmpty(t, title)
		}
	})
}

func TestExtractTaskTitleArbitraryInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		title := ExtractTaskTitle(text)
		require.Equal(t, title, ExtractTaskTitle(title))
		_, _ = ExtractPriority(text)
		_, _ = ParseRelativeDate(text, time.Now())
	})
}
