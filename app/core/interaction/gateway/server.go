package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"taskmate/app/pkg/logger"
	"taskmate/app/pkg/types"
)

// DefaultGateway feeds every registered channel's messages to one agent and
// delivers the replies back through the originating channel.
type DefaultGateway struct {
	agent    types.Agent
	channels map[string]types.Channel
	mu       sync.RWMutex
	tracer   TraceRecorder
	onStop   map[string]func()

	processedMessages atomic.Uint64
	failedMessages    atomic.Uint64
	lastMessageUnix   atomic.Int64
	startedUnix       atomic.Int64
}

var _ types.Gateway = (*DefaultGateway)(nil)

type HealthStatus struct {
	Started            bool      `json:"started"`
	StartedAt          time.Time `json:"started_at"`
	RegisteredChannels []string  `json:"registered_channels"`
	Agent              string    `json:"agent"`
	ProcessedMessages  uint64    `json:"processed_messages"`
	FailedMessages     uint64    `json:"failed_messages"`
	LastMessageAt      time.Time `json:"last_message_at"`
}

func NewGateway(agent types.Agent) *DefaultGateway {
	return &DefaultGateway{
		agent:    agent,
		channels: make(map[string]types.Channel),
		onStop:   make(map[string]func()),
	}
}

// OnChannelStopped registers fn to run when channel id returns from Start,
// with or without an error.
func (g *DefaultGateway) OnChannelStopped(id string, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onStop[id] = fn
}

func (g *DefaultGateway) RegisterChannel(c types.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
	logger.Info("[Gateway] Registered channel: %s", c.ID())
}

func (g *DefaultGateway) SetTraceRecorder(tracer TraceRecorder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tracer = tracer
}

// Start runs every channel until ctx is canceled or one of them fails. A
// failing channel cancels the others.
func (g *DefaultGateway) Start(ctx context.Context) error {
	if g.agent == nil {
		return fmt.Errorf("gateway has no agent")
	}
	g.startedUnix.Store(time.Now().Unix())

	grp, runCtx := errgroup.WithContext(ctx)
	handler := func(msg types.Message) {
		g.handle(runCtx, msg)
	}

	g.mu.RLock()
	for _, c := range g.channels {
		ch := c
		onStop := g.onStop[ch.ID()]
		grp.Go(func() error {
			err := ch.Start(runCtx, handler)
			if onStop != nil {
				onStop()
			}
			if err != nil {
				g.trace(TraceEvent{Event: EventChannelStopped, ChannelID: ch.ID(), Failed: true, Detail: err.Error()})
				return fmt.Errorf("channel %s: %w", ch.ID(), err)
			}
			return nil
		})
	}
	g.mu.RUnlock()

	logger.Info("[Gateway] Started all channels")
	return grp.Wait()
}

func (g *DefaultGateway) handle(ctx context.Context, msg types.Message) {
	g.processedMessages.Add(1)
	g.lastMessageUnix.Store(time.Now().Unix())
	logger.Info("[Gateway] Received message from channel=%s user=%s", msg.ChannelID, msg.UserID)
	g.trace(eventFor(msg, EventInbound))

	if err := g.processAndReply(ctx, msg); err != nil {
		g.failedMessages.Add(1)
		logger.Error("[Gateway] Processing failed: %v", err)
		_ = g.sendErrorReply(ctx, msg, "Error: "+err.Error())
	}
}

func (g *DefaultGateway) processAndReply(ctx context.Context, msg types.Message) error {
	started := time.Now()
	response, err := g.agent.Process(ctx, msg)
	processed := eventFor(msg, EventAgentProcess)
	processed.LatencyMS = time.Since(started).Milliseconds()
	if err != nil {
		processed.Failed, processed.Detail = true, err.Error()
		g.trace(processed)
		return fmt.Errorf("agent process: %w", err)
	}
	if response.SessionID != "" {
		processed.SessionID = response.SessionID
	}
	withTurn(&processed, response.Meta)
	g.trace(processed)

	delivered := eventFor(msg, EventDeliverReply)
	channel, ok := g.channelByID(msg.ChannelID)
	if !ok {
		delivered.Failed, delivered.Detail = true, "channel not found"
		g.trace(delivered)
		return fmt.Errorf("channel not found for reply: %s", msg.ChannelID)
	}
	normalizeReply(&response, msg)
	delivered.SessionID = processed.SessionID
	if err := channel.Send(ctx, response); err != nil {
		delivered.Failed, delivered.Detail = true, err.Error()
		g.trace(delivered)
		return fmt.Errorf("send reply: %w", err)
	}
	g.trace(delivered)
	return nil
}

func (g *DefaultGateway) sendErrorReply(ctx context.Context, msg types.Message, reason string) error {
	channel, ok := g.channelByID(msg.ChannelID)
	if !ok {
		return fmt.Errorf("channel not found for reply: %s", msg.ChannelID)
	}
	response := types.Message{Content: reason, Meta: map[string]interface{}{"error": true}}
	normalizeReply(&response, msg)
	return channel.Send(ctx, response)
}

// normalizeReply fills routing fields the agent left empty so the channel can
// match the reply to its request.
func normalizeReply(response *types.Message, msg types.Message) {
	if response.ID == "" {
		response.ID = "resp-" + msg.ID
	}
	if response.Role == "" {
		response.Role = types.MessageRoleAssistant
	}
	if response.ChannelID == "" {
		response.ChannelID = msg.ChannelID
	}
	if response.UserID == "" {
		response.UserID = msg.UserID
	}
	if response.RequestID == "" {
		response.RequestID = msg.RequestID
	}
	if response.Meta == nil {
		response.Meta = map[string]interface{}{}
	}
}

func (g *DefaultGateway) channelByID(id string) (types.Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

func (g *DefaultGateway) HealthStatus() HealthStatus {
	g.mu.RLock()
	channels := make([]string, 0, len(g.channels))
	for id := range g.channels {
		channels = append(channels, id)
	}
	g.mu.RUnlock()
	sort.Strings(channels)

	status := HealthStatus{
		RegisteredChannels: channels,
		ProcessedMessages:  g.processedMessages.Load(),
		FailedMessages:     g.failedMessages.Load(),
	}
	if g.agent != nil {
		status.Agent = g.agent.Name()
	}
	if ts := g.startedUnix.Load(); ts > 0 {
		status.Started = true
		status.StartedAt = time.Unix(ts, 0)
	}
	if ts := g.lastMessageUnix.Load(); ts > 0 {
		status.LastMessageAt = time.Unix(ts, 0)
	}
	return status
}

func eventFor(msg types.Message, event string) TraceEvent {
	return TraceEvent{
		Event:     event,
		RequestID: msg.RequestID,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
	}
}

// withTurn copies the agent's routing metadata onto ev.
func withTurn(ev *TraceEvent, meta map[string]interface{}) {
	str := func(key string) string {
		v, _ := meta[key].(string)
		return v
	}
	ev.Mode = str("mode")
	ev.Intent = str("intent")
	ev.Action = str("action")
	ev.Command = str("command")
	ev.Fallback, _ = meta["intent_fallback"].(bool)
	if failed, _ := meta["command_error"].(bool); failed {
		ev.Failed = true
	}
}

func (g *DefaultGateway) trace(ev TraceEvent) {
	g.mu.RLock()
	tracer := g.tracer
	g.mu.RUnlock()
	if tracer == nil {
		return
	}
	if err := tracer.Record(ev); err != nil {
		logger.Warn("[Gateway] Trace write failed: %v", err)
	}
}
