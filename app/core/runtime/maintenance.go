package runtime

import (
	"context"
	"strings"
	"time"

	"taskmate/app/core/llm"
	"taskmate/app/core/orchestrator/task"
	"taskmate/app/core/scheduler"
	"taskmate/app/pkg/logger"
)

const (
	SessionSweepJob  = "session-sweep"
	EmbedBackfillJob = "embed-backfill"
)

type SessionPruner interface {
	PruneIdle() int
}

// BackfillStore is the part of the task store the backfill job needs.
type BackfillStore interface {
	MissingEmbeddings(ctx context.Context, limit int) ([]task.Task, error)
	Update(ctx context.Context, id string, username string, patch task.Patch) (task.Task, error)
}

type MaintenanceOptions struct {
	Sessions      SessionPruner
	SweepEvery    time.Duration
	Store         BackfillStore
	Embedder      llm.Embedder
	BackfillEvery time.Duration
	BackfillBatch int
}

// RegisterMaintenanceJobs adds the idle-session sweep and the embedding
// backfill. A job is skipped when its dependency is missing or its interval
// is not positive.
func RegisterMaintenanceJobs(s *scheduler.Scheduler, opts MaintenanceOptions) error {
	if s == nil {
		return nil
	}
	if opts.Sessions != nil && opts.SweepEvery > 0 {
		err := s.Add(scheduler.Job{
			Name:  SessionSweepJob,
			Every: opts.SweepEvery,
			Run: func(context.Context) error {
				if n := opts.Sessions.PruneIdle(); n > 0 {
					logger.Info("[Maintenance] %s closed=%d", SessionSweepJob, n)
				}
				return nil
			},
		})
		if err != nil {
			return err
		}
	}
	if opts.Store != nil && opts.Embedder != nil && opts.BackfillEvery > 0 {
		err := s.Add(scheduler.Job{
			Name:      EmbedBackfillJob,
			Every:     opts.BackfillEvery,
			Timeout:   time.Minute,
			Immediate: true,
			Run: func(ctx context.Context) error {
				_, err := BackfillEmbeddings(ctx, opts.Store, opts.Embedder, opts.BackfillBatch)
				return err
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// BackfillEmbeddings embeds the titles of up to batch tasks that were stored
// without a vector. It stops at the first embedding failure so an unavailable
// service is retried on the next run rather than hammered.
func BackfillEmbeddings(ctx context.Context, store BackfillStore, embedder llm.Embedder, batch int) (int, error) {
	items, err := store.MissingEmbeddings(ctx, batch)
	if err != nil {
		return 0, err
	}
	filled := 0
	for _, t := range items {
		res := llm.Embed(ctx, embedder, strings.TrimSpace(t.Title))
		if !res.OK() {
			logger.Warn("[Maintenance] %s stopped after %d (%s): %v", EmbedBackfillJob, filled, res.Failure, res.Err)
			return filled, res.Err
		}
		if _, err := store.Update(ctx, t.ID, t.Username, task.Patch{Embedding: res.Value}); err != nil {
			return filled, err
		}
		filled++
	}
	if filled > 0 {
		logger.Info("[Maintenance] %s filled=%d", EmbedBackfillJob, filled)
	}
	return filled, nil
}
