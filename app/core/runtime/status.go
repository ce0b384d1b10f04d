// Package runtime wires the background jobs and the status snapshot served by
// the HTTP status endpoint.
package runtime

import (
	"context"
	"time"

	"taskmate/app/core/interaction/gateway"
	"taskmate/app/core/scheduler"
)

type GatewayHealth interface {
	HealthStatus() gateway.HealthStatus
}

type AgentStatus interface {
	Status(ctx context.Context) map[string]interface{}
}

type JobSnapshot interface {
	Snapshot() []scheduler.JobStatus
}

// StatusCollector assembles the runtime view. Nil sources are omitted.
type StatusCollector struct {
	Gateway   GatewayHealth
	Agent     AgentStatus
	Scheduler JobSnapshot
	Started   time.Time
	now       func() time.Time
}

func (c *StatusCollector) Snapshot(ctx context.Context) map[string]interface{} {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	ts := now().UTC()
	payload := map[string]interface{}{
		"timestamp": ts.Format(time.RFC3339),
	}
	if !c.Started.IsZero() {
		payload["uptime_sec"] = int64(ts.Sub(c.Started).Seconds())
	}
	if c.Gateway != nil {
		payload["gateway"] = c.Gateway.HealthStatus()
	}
	if c.Agent != nil {
		payload["agent"] = c.Agent.Status(ctx)
	}
	if c.Scheduler != nil {
		payload["jobs"] = c.Scheduler.Snapshot()
	}
	return payload
}
