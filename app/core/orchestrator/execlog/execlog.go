package execlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"taskmate/app/core/llm"
)

type Meta struct {
	SessionID string
	UserID    string
	ChannelID string
}

type metaKey struct{}

func WithMeta(ctx context.Context, meta Meta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	current := GetMeta(ctx)
	merged := mergeMeta(current, meta)
	return context.WithValue(ctx, metaKey{}, merged)
}

func GetMeta(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	meta, _ := ctx.Value(metaKey{}).(Meta)
	return meta
}

func mergeMeta(base Meta, override Meta) Meta {
	out := base
	if strings.TrimSpace(override.SessionID) != "" {
		out.SessionID = strings.TrimSpace(override.SessionID)
	}
	if strings.TrimSpace(override.UserID) != "" {
		out.UserID = strings.TrimSpace(override.UserID)
	}
	if strings.TrimSpace(override.ChannelID) != "" {
		out.ChannelID = strings.TrimSpace(override.ChannelID)
	}
	return out
}

// Logger appends one JSON line per external call to hourly files under dir.
// A Logger with an empty dir records nothing.
type Logger struct {
	dir     string
	service string
	mu      sync.Mutex
	now     func() time.Time
}

func New(dir, service string) *Logger {
	if service == "" {
		service = "unknown"
	}
	return &Logger{dir: strings.TrimSpace(dir), service: service, now: time.Now}
}

func (l *Logger) Enabled() bool {
	return l != nil && l.dir != ""
}

// Completer wraps c so every completion is recorded.
func (l *Logger) Completer(c llm.Completer) llm.Completer {
	if !l.Enabled() || c == nil {
		return c
	}
	return llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		start := l.now()
		out, err := c.Complete(ctx, req)
		prompt := req.Prompt
		if prompt == "" && len(req.History) > 0 {
			prompt = req.History[len(req.History)-1].Content
		}
		_ = l.append(ctx, start, req.Stage, prompt, out, err)
		return out, err
	})
}

// Embedder wraps e so every embedding call is recorded.
func (l *Logger) Embedder(e llm.Embedder) llm.Embedder {
	if !l.Enabled() || e == nil {
		return e
	}
	return llm.EmbedderFunc(func(ctx context.Context, text string) ([]float64, error) {
		start := l.now()
		vec, err := e.Embed(ctx, text)
		_ = l.append(ctx, start, llm.StageEmbedding, text, fmt.Sprintf("dims=%d", len(vec)), err)
		return vec, err
	})
}

func (l *Logger) append(ctx context.Context, ts time.Time, stage, prompt, output string, runErr error) error {
	meta := GetMeta(ctx)
	stage = strings.TrimSpace(stage)
	if stage == "" {
		stage = "unknown"
	}
	sessionID := meta.SessionID
	if sessionID == "" {
		sessionID = "unknown"
	}

	record := `{}`
	set := func(path string, value any) {
		if next, err := sjson.Set(record, path, value); err == nil {
			record = next
		}
	}
	set("timestamp", ts.Format(time.RFC3339Nano))
	set("session_id", sessionID)
	set("stage", stage)
	set("service", l.service)
	if meta.UserID != "" {
		set("user_id", meta.UserID)
	}
	if meta.ChannelID != "" {
		set("channel_id", meta.ChannelID)
	}
	set("status", "ok")
	set("duration_ms", l.now().Sub(ts).Milliseconds())
	set("prompt_chars", len(prompt))
	if p := previewText(prompt, 240); p != "" {
		set("prompt_preview", p)
	}
	if runErr != nil {
		set("status", "error")
		set("error", runErr.Error())
	} else {
		set("output_chars", len(output))
		if p := previewText(output, 240); p != "" {
			set("output_preview", p)
		}
	}

	dayDir := filepath.Join(l.dir, ts.Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		return fmt.Errorf("failed to create exec log dir: %w", err)
	}
	logPath := filepath.Join(dayDir, fmt.Sprintf("calls_%s.jsonl", ts.Format("20060102-15")))

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(record + "\n"); err != nil {
		return err
	}
	return nil
}

func previewText(s string, limit int) string {
	clean := strings.TrimSpace(s)
	if clean == "" || limit <= 0 {
		return ""
	}
	clean = strings.ReplaceAll(clean, "\r\n", "\n")
	clean = strings.ReplaceAll(clean, "\n", "\\n")
	runes := []rune(clean)
	if len(runes) <= limit {
		return clean
	}
	return string(runes[:limit]) + "..."
}
