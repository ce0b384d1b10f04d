package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmate/app/core/interaction/gateway"
	"taskmate/app/core/llm"
	"taskmate/app/core/orchestrator/db"
	"taskmate/app/core/orchestrator/task"
	"taskmate/app/core/scheduler"
)

func newStore(t *testing.T) *task.SQLiteStore {
	t.Helper()
	database, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return task.NewStore(database)
}

type countingPruner struct{ calls int }

func (p *countingPruner) PruneIdle() int {
	p.calls++
	return 0
}

func TestBackfillEmbeddings(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	for _, title := range []string{"Water plants", "Pay rent", "Fix bike"} {
		_, err := store.Create(ctx, task.NewTask{Username: "alice", Title: title})
		require.NoError(t, err)
	}

	var seen []string
	embedder := llm.EmbedderFunc(func(_ context.Context, text string) ([]float64, error) {
		seen = append(seen, text)
		if strings.HasPrefix(text, "Fix") {
			return nil, errors.New("rate limited")
		}
		return []float64{1, 0}, nil
	})

	filled, err := BackfillEmbeddings(ctx, store, embedder, 10)
	assert.Error(t, err)
	assert.Equal(t, 2, filled)
	assert.Equal(t, []string{"Water plants", "Pay rent", "Fix bike"}, seen)

	remaining, err := store.MissingEmbeddings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Fix bike", remaining[0].Title)

	hits, err := store.SemanticSearch(ctx, []float64{1, 0}, "alice", 5, 0.5)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestRegisterMaintenanceJobsSkipsMissingDeps(t *testing.T) {
	s := scheduler.New()
	require.NoError(t, RegisterMaintenanceJobs(s, MaintenanceOptions{
		Sessions:      &countingPruner{},
		SweepEvery:    time.Minute,
		Store:         newStore(t),
		BackfillEvery: time.Minute,
	}))

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, SessionSweepJob, snap[0].Name)

	require.NoError(t, RegisterMaintenanceJobs(nil, MaintenanceOptions{}))
}

func TestSessionSweepRuns(t *testing.T) {
	s := scheduler.New()
	pruner := &countingPruner{}
	require.NoError(t, RegisterMaintenanceJobs(s, MaintenanceOptions{
		Sessions:   pruner,
		SweepEvery: 5 * time.Millisecond,
	}))
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return len(snap) == 1 && snap[0].Runs > 0
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(time.Second))
	assert.Positive(t, pruner.calls)
}

type fixedHealth struct{}

func (fixedHealth) HealthStatus() gateway.HealthStatus {
	return gateway.HealthStatus{Started: true, Agent: "TaskMate", ProcessedMessages: 3}
}

type fixedAgent struct{}

func (fixedAgent) Status(context.Context) map[string]interface{} {
	return map[string]interface{}{"sessions": 2}
}

func TestStatusSnapshot(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	c := &StatusCollector{
		Gateway:   fixedHealth{},
		Agent:     fixedAgent{},
		Scheduler: scheduler.New(),
		Started:   now.Add(-90 * time.Second),
		now:       func() time.Time { return now },
	}

	snap := c.Snapshot(context.Background())
	assert.Equal(t, "2024-01-01T09:00:00Z", snap["timestamp"])
	assert.Equal(t, int64(90), snap["uptime_sec"])
	assert.Equal(t, uint64(3), snap["gateway"].(gateway.HealthStatus).ProcessedMessages)
	assert.Equal(t, 2, snap["agent"].(map[string]interface{})["sessions"])
	assert.Empty(t, snap["jobs"])

	bare := (&StatusCollector{}).Snapshot(context.Background())
	assert.Len(t, bare, 1)
}
