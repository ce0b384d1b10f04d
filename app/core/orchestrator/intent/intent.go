package intent

import (
	"context"
	"fmt"
	"strings"

	"taskmate/app/core/llm"
	"taskmate/app/core/nlp"
	"taskmate/app/pkg/logger"
)

type Intent string

const (
	Greeting      Intent = "greeting"
	Casual        Intent = "casual"
	TaskCreation  Intent = "task_creation"
	TaskOperation Intent = "task_operation"
)

func ParseIntent(raw string) (Intent, bool) {
	switch v := Intent(strings.ToLower(strings.TrimSpace(raw))); v {
	case Greeting, Casual, TaskCreation, TaskOperation:
		return v, true
	default:
		return "", false
	}
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Decision is a classified message. Failure is set when the completion
// service could not be used and the verb heuristic decided instead.
type Decision struct {
	Intent     Intent
	Confidence Confidence
	Failure    llm.Failure
}

func (d Decision) Fallback() bool {
	return d.Failure != ""
}

type Classifier struct {
	completer llm.Completer
}

func NewClassifier(completer llm.Completer) *Classifier {
	return &Classifier{completer: completer}
}

func (c *Classifier) Classify(ctx context.Context, message string) Decision {
	res := c.classify(ctx, message)
	if res.OK() {
		return res.Value
	}
	logger.Info("Intent classification failed (%s), using verb fallback: %v", res.Failure, res.Err)
	d := Fallback(message)
	d.Failure = res.Failure
	return d
}

// Fallback labels a message without the completion service. Any task verb or
// phrase marks a creation request. Only messages without one are checked for
// a leading command such as "show" or "delete"; the rest are casual.
func Fallback(message string) Decision {
	if nlp.HasTaskIntent(message) {
		return Decision{Intent: TaskCreation, Confidence: ConfidenceLow}
	}
	if nlp.HasOperationCommand(message) {
		return Decision{Intent: TaskOperation, Confidence: ConfidenceLow}
	}
	return Decision{Intent: Casual, Confidence: ConfidenceLow}
}

func (c *Classifier) classify(ctx context.Context, message string) llm.Result[Decision] {
	res := llm.CompleteJSON(ctx, c.completer, llm.Request{
		Stage:       llm.StageIntent,
		Prompt:      buildIntentPrompt(message),
		Temperature: 0.1,
		MaxTokens:   50,
	})
	if !res.OK() {
		return llm.Fail[Decision](res.Failure, res.Err)
	}

	raw := res.Value.Get("intent").String()
	label, ok := ParseIntent(raw)
	if !ok {
		return llm.Fail[Decision](llm.FailureInvalidValue, fmt.Errorf("unknown intent %q", raw))
	}
	conf := Confidence(strings.ToLower(strings.TrimSpace(res.Value.Get("confidence").String())))
	switch conf {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		conf = ConfidenceMedium
	}
	return llm.Succeed(Decision{Intent: label, Confidence: conf})
}

func buildIntentPrompt(message string) string {
	var b strings.Builder
	b.WriteString("Classify the user's intent. Reply ONLY with JSON in this exact format:\n")
	b.WriteString("{\"intent\": \"greeting/casual/task_creation/task_operation\", \"confidence\": \"high/medium/low\"}\n\n")
	b.WriteString("Intent definitions:\n")
	b.WriteString("- greeting: Introductions, greetings (e.g., \"Hi I am John\", \"Hello\", \"Good morning\")\n")
	b.WriteString("- casual: General conversation, statements (e.g., \"I work at Google\", \"How are you\")\n")
	b.WriteString("- task_creation: Creating a new task (e.g., \"Buy flowers\", \"Call doctor tomorrow\", \"Meeting with boss\")\n")
	b.WriteString("- task_operation: Operating on existing tasks (e.g., \"Show all tasks\", \"Complete buy laptop\", \"Delete meeting\")\n\n")
	b.WriteString("Examples:\n")
	for _, ex := range intentExamples {
		b.WriteString(fmt.Sprintf("User: %q\n{\"intent\": %q, \"confidence\": %q}\n\n", ex.message, ex.intent, ex.confidence))
	}
	b.WriteString("Now classify:\n")
	b.WriteString(fmt.Sprintf("User: %q\n", message))
	b.WriteString("JSON:")
	return b.String()
}

var intentExamples = []struct {
	message    string
	intent     Intent
	confidence Confidence
}{
	{"Hi I am Sam", Greeting, ConfidenceHigh},
	{"I work at Google", Casual, ConfidenceHigh},
	{"Buy flowers", TaskCreation, ConfidenceHigh},
	{"Call doctor tomorrow", TaskCreation, ConfidenceHigh},
	{"urgent meeting with team next week", TaskCreation, ConfidenceHigh},
	{"Show all my tasks", TaskOperation, ConfidenceHigh},
	{"Complete buy laptop", TaskOperation, ConfidenceHigh},
	{"I need to buy groceries but not sure when", TaskCreation, ConfidenceMedium},
}
