package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/sjson"
)

// Trace event names, in the order one message produces them.
const (
	EventInbound        = "inbound_received"
	EventAgentProcess   = "agent_process"
	EventDeliverReply   = "deliver_reply"
	EventChannelStopped = "channel_stopped"
)

// TraceEvent is one line of the gateway trace. The turn fields (Mode, Intent,
// Fallback, Action, Command) come from the agent reply and are only set on
// agent_process events.
type TraceEvent struct {
	At        time.Time
	Event     string
	Failed    bool
	Detail    string
	RequestID string
	ChannelID string
	UserID    string
	SessionID string

	Mode      string
	Intent    string
	Fallback  bool
	Action    string
	Command   string
	LatencyMS int64
}

type TraceRecorder interface {
	Record(TraceEvent) error
}

// DailyTraceFile appends events to dir/YYYY-MM-DD/gateway_events.jsonl. The
// current day's file stays open until the date changes or Close is called.
type DailyTraceFile struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

func NewTraceRecorder(dir string) (*DailyTraceFile, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("trace dir is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DailyTraceFile{dir: dir, now: time.Now}, nil
}

func (r *DailyTraceFile) Record(ev TraceEvent) error {
	if r == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = r.now()
	}
	line, err := ev.jsonLine()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.fileFor(ev.At.UTC().Format("2006-01-02"))
	if err != nil {
		return err
	}
	_, err = f.Write(line)
	return err
}

func (r *DailyTraceFile) fileFor(day string) (*os.File, error) {
	if r.file != nil && r.day == day {
		return r.file, nil
	}
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
	dayDir := filepath.Join(r.dir, day)
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dayDir, "gateway_events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	r.file, r.day = f, day
	return f, nil
}

func (r *DailyTraceFile) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// jsonLine renders the event with empty optional fields left out.
func (ev TraceEvent) jsonLine() ([]byte, error) {
	status := "ok"
	if ev.Failed {
		status = "error"
	}
	event := ev.Event
	if event == "" {
		event = "unknown"
	}

	line := []byte(`{}`)
	var err error
	set := func(path string, value interface{}) {
		if err == nil {
			line, err = sjson.SetBytes(line, path, value)
		}
	}
	set("timestamp", ev.At.UTC().Format(time.RFC3339Nano))
	set("event", event)
	set("status", status)
	for _, field := range []struct{ path, value string }{
		{"request_id", ev.RequestID},
		{"channel_id", ev.ChannelID},
		{"user_id", ev.UserID},
		{"session_id", ev.SessionID},
		{"detail", strings.TrimSpace(ev.Detail)},
		{"turn.mode", ev.Mode},
		{"turn.intent", ev.Intent},
		{"turn.action", ev.Action},
		{"turn.command", ev.Command},
	} {
		if field.value != "" {
			set(field.path, field.value)
		}
	}
	if ev.Intent != "" {
		set("turn.intent_fallback", ev.Fallback)
	}
	if ev.Event == EventAgentProcess {
		set("latency_ms", ev.LatencyMS)
	}
	if err != nil {
		return nil, fmt.Errorf("encode trace event: %w", err)
	}
	return append(line, '\n'), nil
}
