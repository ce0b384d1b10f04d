// Package telegram serves TaskMate through a Telegram bot using long polling.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"taskmate/app/pkg/logger"
	"taskmate/app/pkg/types"
)

const (
	defaultAPIRoot = "https://api.telegram.org"
	// Telegram rejects longer texts.
	maxMessageRunes = 4096
)

type Config struct {
	BotToken       string
	PollInterval   time.Duration
	TimeoutSeconds int
	APIRoot        string
}

// Channel turns bot updates into messages. Each Telegram user is a TaskMate
// user; replies go back to the chat the request came from.
type Channel struct {
	cfg    Config
	id     string
	client *http.Client

	counter atomic.Uint64
	offset  atomic.Int64

	mu      sync.Mutex
	chatFor map[string]int64
}

func NewChannel(cfg Config) *Channel {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 20
	}
	if strings.TrimSpace(cfg.APIRoot) == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	return &Channel{
		cfg:     cfg,
		id:      "telegram",
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds+10) * time.Second},
		chatFor: map[string]int64{},
	}
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) Start(ctx context.Context, handler func(types.Message)) error {
	if strings.TrimSpace(c.cfg.BotToken) == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	logger.Info("[Telegram] Polling for updates")
	for {
		if err := c.pollOnce(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("[Telegram] Poll failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// Send replies in the chat that sent request msg.RequestID. Replies without a
// known request go to the user's private chat.
func (c *Channel) Send(ctx context.Context, msg types.Message) error {
	chatID, ok := c.takeChat(msg.RequestID)
	if !ok {
		id, err := strconv.ParseInt(strings.TrimSpace(msg.UserID), 10, 64)
		if err != nil {
			return fmt.Errorf("telegram: no chat for request %q", msg.RequestID)
		}
		chatID = id
	}
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    truncate(msg.Content, maxMessageRunes),
	}
	_, err := c.call(ctx, "sendMessage", payload)
	return err
}

func (c *Channel) pollOnce(ctx context.Context, handler func(types.Message)) error {
	payload := map[string]interface{}{
		"timeout":         c.cfg.TimeoutSeconds,
		"allowed_updates": []string{"message"},
	}
	if offset := c.offset.Load(); offset > 0 {
		payload["offset"] = offset
	}
	result, err := c.call(ctx, "getUpdates", payload)
	if err != nil {
		return err
	}

	for _, upd := range result.Array() {
		if next := upd.Get("update_id").Int() + 1; next > c.offset.Load() {
			c.offset.Store(next)
		}
		text := strings.TrimSpace(upd.Get("message.text").String())
		if text == "" {
			continue
		}
		handler(c.toMessage(upd, text))
	}
	return nil
}

func (c *Channel) toMessage(upd gjson.Result, text string) types.Message {
	requestID := c.newID("telegram")
	chatID := upd.Get("message.chat.id").Int()
	c.mu.Lock()
	c.chatFor[requestID] = chatID
	c.mu.Unlock()

	// Bot commands arrive as "/tasks@TaskMateBot".
	if strings.HasPrefix(text, "/") {
		head, rest, _ := strings.Cut(text, " ")
		if name, _, found := strings.Cut(head, "@"); found {
			text = strings.TrimSpace(name + " " + rest)
		}
	}

	return types.Message{
		ID:        requestID,
		Content:   text,
		Role:      types.MessageRoleUser,
		ChannelID: c.id,
		UserID:    strconv.FormatInt(upd.Get("message.from.id").Int(), 10),
		RequestID: requestID,
		Meta: map[string]interface{}{
			"chat_id":  chatID,
			"username": upd.Get("message.from.username").String(),
		},
	}
}

func (c *Channel) takeChat(requestID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.chatFor[requestID]
	delete(c.chatFor, requestID)
	return id, ok
}

// call posts payload to a Bot API method and returns its "result" field.
func (c *Channel) call(ctx context.Context, method string, payload interface{}) (gjson.Result, error) {
	url := strings.TrimRight(c.cfg.APIRoot, "/") + "/bot" + c.cfg.BotToken + "/" + method
	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("telegram %s: status=%d invalid body", method, resp.StatusCode)
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.Get("ok").Bool() {
		return gjson.Result{}, fmt.Errorf("telegram %s: status=%d %s", method, resp.StatusCode, parsed.Get("description").String())
	}
	return parsed.Get("result"), nil
}

func (c *Channel) newID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), c.counter.Add(1))
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
