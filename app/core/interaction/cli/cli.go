package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"taskmate/app/pkg/types"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle   = lipgloss.NewStyle().Faint(true)
)

// CLIChannel reads one message per line from in and prints replies to out.
type CLIChannel struct {
	id     string
	userID string
	in     io.Reader
	out    io.Writer
	mu     sync.Mutex
}

func NewCLIChannel(userID string) *CLIChannel {
	return NewCLIChannelWithIO(userID, os.Stdin, os.Stdout)
}

func NewCLIChannelWithIO(userID string, in io.Reader, out io.Writer) *CLIChannel {
	if strings.TrimSpace(userID) == "" {
		userID = "local_user"
	}
	return &CLIChannel{id: "cli", userID: userID, in: in, out: out}
}

func (c *CLIChannel) ID() string {
	return c.id
}

func (c *CLIChannel) Start(ctx context.Context, handler func(types.Message)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	c.printf("%s\n", hintStyle.Render(fmt.Sprintf("TaskMate CLI as %s. Type /help for commands, 'exit' to quit.", c.userID)))
	for {
		c.printf("%s ", promptStyle.Render(">"))
		select {
		case <-ctx.Done():
			return nil
		case text, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			if text == "exit" || text == "quit" {
				c.printf("%s\n", hintStyle.Render("Bye."))
				return nil
			}
			handler(types.Message{
				ID:        fmt.Sprintf("cli-%d", time.Now().UnixNano()),
				Content:   text,
				Role:      types.MessageRoleUser,
				ChannelID: c.id,
				UserID:    c.userID,
			})
		}
	}
}

func (c *CLIChannel) Send(_ context.Context, msg types.Message) error {
	if failed, _ := msg.Meta["error"].(bool); failed {
		c.printf("%s\n", errorStyle.Render(msg.Content))
		return nil
	}
	c.printf("%s %s\n", nameStyle.Render("TaskMate:"), msg.Content)
	return nil
}

func (c *CLIChannel) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
