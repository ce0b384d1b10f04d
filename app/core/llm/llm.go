// Package llm wraps the external completion and embedding services. Callers
// get a Result describing why a call failed instead of a bare error so each
// call site can pick its own fallback.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Stages label external calls in the exec log.
const (
	StageIntent       = "intent"
	StageTitle        = "title"
	StageConversation = "conversation"
	StageEmbedding    = "embedding"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Stage       string
	System      string
	History     []Message
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

type EmbedderFunc func(ctx context.Context, text string) ([]float64, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float64, error) {
	return f(ctx, text)
}

type Failure string

const (
	FailureUnavailable   Failure = "unavailable"
	FailureEmptyResponse Failure = "empty_response"
	FailureNoJSON        Failure = "no_json"
	FailureMalformedJSON Failure = "malformed_json"
	FailureInvalidValue  Failure = "invalid_value"
)

var ErrNotConfigured = errors.New("llm: service not configured")

type Result[T any] struct {
	Value   T
	Failure Failure
	Err     error
}

func (r Result[T]) OK() bool {
	return r.Failure == ""
}

func Succeed[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Fail[T any](reason Failure, err error) Result[T] {
	if err == nil {
		err = errors.New(string(reason))
	}
	return Result[T]{Failure: reason, Err: err}
}

// Complete runs one completion. A nil completer is reported as unavailable.
func Complete(ctx context.Context, c Completer, req Request) Result[string] {
	if c == nil {
		return Fail[string](FailureUnavailable, ErrNotConfigured)
	}
	out, err := c.Complete(ctx, req)
	if err != nil {
		return Fail[string](FailureUnavailable, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return Fail[string](FailureEmptyResponse, nil)
	}
	return Succeed(out)
}

// CompleteJSON runs one completion and returns the first JSON object found in
// the reply.
func CompleteJSON(ctx context.Context, c Completer, req Request) Result[gjson.Result] {
	res := Complete(ctx, c, req)
	if !res.OK() {
		return Fail[gjson.Result](res.Failure, res.Err)
	}
	return ParseJSONObject(res.Value)
}

// ParseJSONObject locates a JSON object embedded in free text.
func ParseJSONObject(text string) Result[gjson.Result] {
	payload, ok := ExtractJSONObject(text)
	if payload == "" {
		return Fail[gjson.Result](FailureNoJSON, nil)
	}
	if !ok {
		return Fail[gjson.Result](FailureMalformedJSON, nil)
	}
	return Succeed(gjson.Parse(payload))
}

// Embed computes one embedding. A nil embedder is reported as unavailable.
func Embed(ctx context.Context, e Embedder, text string) Result[[]float64] {
	if e == nil {
		return Fail[[]float64](FailureUnavailable, ErrNotConfigured)
	}
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return Fail[[]float64](FailureUnavailable, err)
	}
	if len(vec) == 0 {
		return Fail[[]float64](FailureEmptyResponse, nil)
	}
	return Succeed(vec)
}
