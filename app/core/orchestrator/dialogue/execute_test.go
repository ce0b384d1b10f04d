package dialogue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmate/app/core/llm"
	"taskmate/app/core/orchestrator/intent"
	"taskmate/app/core/orchestrator/task"
)

func TestRenderHidesWrappedErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("complete task: %w", task.ErrNotFound), "❌ Task not found"},
		{fmt.Errorf("create task: %w", task.ErrDuplicate), "❌ Task already exists"},
		{fmt.Errorf("update task: %w", task.ErrInvalid), "❌ Invalid task details"},
		{notFound("walk dog"), "❌ Task 'walk dog' not found"},
		{errors.New("disk I/O error"), storeFailureReply},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, render("", tc.err), tc.err.Error())
	}
	assert.Equal(t, "done", render("done", nil))
}

func TestListByCategory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, task.NewTask{Username: "alice", Title: "Write report", Category: "work"})
	require.NoError(t, err)
	_, err = store.Create(ctx, task.NewTask{Username: "alice", Title: "Buy milk", Category: "home"})
	require.NoError(t, err)

	o := newTestOrchestrator(t, store, stageCompleter(map[string]string{
		llm.StageIntent:       `{"intent": "task_operation", "confidence": "high"}`,
		llm.StageConversation: `{"function": "list_tasks", "parameters": {"category": "work"}}`,
	}))

	reply := o.HandleMessage(ctx, "what's on my work list?")
	assert.Contains(t, reply, "📋 1 task(s):")
	assert.Contains(t, reply, "Write report")
	assert.NotContains(t, reply, "Buy milk")
}

func TestLastTurnDescribesRouting(t *testing.T) {
	store := newTestStore(t)
	o := newTestOrchestrator(t, store, nil)
	ctx := context.Background()

	o.HandleMessage(ctx, "Buy flowers tomorrow")
	assert.Equal(t, Turn{Intent: intent.TaskCreation, Fallback: true}, o.LastTurn())

	o.HandleMessage(ctx, "high")
	assert.Equal(t, Turn{Action: ActionCreate}, o.LastTurn())

	answered := newTestOrchestrator(t, store, stageCompleter(map[string]string{
		llm.StageIntent:       `{"intent": "task_operation", "confidence": "high"}`,
		llm.StageConversation: `{"function": "complete_task", "parameters": {"title": "buy flowers"}}`,
	}))
	assert.Equal(t, "✅ Completed: 'Buy flowers'", answered.HandleMessage(ctx, "flowers are bought"))
	assert.Equal(t, Turn{Intent: intent.TaskOperation, Action: ActionComplete}, answered.LastTurn())
}
