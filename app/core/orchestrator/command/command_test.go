package command

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskmate/app/pkg/types"
)

func TestExecuteSlashIgnoresPlainText(t *testing.T) {
	exec := NewExecutor("")
	if _, handled, _ := exec.ExecuteSlash(context.Background(), types.Message{Content: "buy milk"}); handled {
		t.Fatal("plain text should not be handled")
	}
	if _, handled, _ := exec.ExecuteSlash(context.Background(), types.Message{Content: "/  "}); handled {
		t.Fatal("bare slash should not be handled")
	}
}

func TestExecuteSlashRunsHandler(t *testing.T) {
	exec := NewExecutor("")
	var gotArgs []string
	exec.Register("Echo", "repeat the arguments", func(ctx context.Context, msg types.Message, args []string) (string, error) {
		gotArgs = args
		return msg.UserID + ":" + strings.Join(args, ","), nil
	})

	out, handled, err := exec.ExecuteSlash(context.Background(), types.Message{UserID: "alice", Content: "/echo a b"})
	if err != nil || !handled {
		t.Fatalf("unexpected result: handled=%t err=%v", handled, err)
	}
	if out != "alice:a,b" || len(gotArgs) != 2 {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExecuteSlashUnknownCommand(t *testing.T) {
	exec := NewExecutor("")
	_, handled, err := exec.ExecuteSlash(context.Background(), types.Message{Content: "/nope"})
	if !handled || err == nil {
		t.Fatalf("expected handled error, got handled=%t err=%v", handled, err)
	}
}

func TestHelpListsCommandsSorted(t *testing.T) {
	exec := NewExecutor("")
	noop := func(context.Context, types.Message, []string) (string, error) { return "", nil }
	exec.Register("reset", "Drop the pending task", noop)
	exec.Register("clear", "Forget the conversation", noop)

	out, _, err := exec.ExecuteSlash(context.Background(), types.Message{Content: "/help"})
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	clear := strings.Index(out, "/clear")
	reset := strings.Index(out, "/reset")
	if clear < 0 || reset < 0 || clear > reset {
		t.Fatalf("unexpected help text:\n%s", out)
	}
}

func TestFormatAuditLineDefaults(t *testing.T) {
	line := formatAuditLine("", "", "", "reset", "deny", "boom")
	expected := `[AUDIT] user=anonymous channel=unknown request=n/a decision=deny command="reset" reason="boom"`
	if line != expected {
		t.Fatalf("unexpected audit line:\n got: %s\nwant: %s", line, expected)
	}
}

func TestAuditWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	exec := NewExecutor(dir)
	exec.now = func() time.Time { return time.Date(2026, 2, 27, 23, 52, 0, 0, time.UTC) }
	exec.Register("fail", "always fails", func(context.Context, types.Message, []string) (string, error) {
		return "", errors.New("nope")
	})

	_, _, _ = exec.ExecuteSlash(context.Background(), types.Message{UserID: "u1", ChannelID: "cli", Content: "/fail now"})

	data, err := os.ReadFile(filepath.Join(dir, "2026-02-27", "commands.jsonl"))
	if err != nil {
		t.Fatalf("failed to read audit log: %v", err)
	}
	var record auditEntry
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("failed to decode audit log: %v", err)
	}
	if record.UserID != "u1" || record.Command != "fail now" || record.Decision != "error" || record.Reason != "nope" {
		t.Fatalf("unexpected audit record: %+v", record)
	}
}
