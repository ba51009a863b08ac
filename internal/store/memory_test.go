package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
)

func TestMemoryCreateAndFetchTask(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.CreateTask(ctx, "t-1", "title", "prompt")
	require.NoError(t, err)
	assert.Equal(t, eventmodel.StatusPending, created.Status)

	fetched, err := m.FetchTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, created, fetched)

	_, err = m.CreateTask(ctx, "t-1", "title", "prompt")
	assert.ErrorIs(t, err, ErrTaskAlreadyExists)

	_, err = m.FetchTask(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMemoryUpdateTaskStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.CreateTask(ctx, "t-1", "title", "prompt")
	require.NoError(t, err)

	err = m.UpdateTaskStatus(ctx, "t-1", eventmodel.StatusSucceeded, "done", "")
	require.NoError(t, err)

	rec, err := m.FetchTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, eventmodel.StatusSucceeded, rec.Status)
	assert.Equal(t, "done", rec.ResultSummary)

	assert.ErrorIs(t, m.UpdateTaskStatus(ctx, "missing", eventmodel.StatusFailed, "", "x"), ErrTaskNotFound)
}

func TestMemoryInsertAndFetchEventsMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertEvent(ctx, "t-1", 1, eventmodel.KindStageStart, "pm", `{"message":"start"}`))
	require.NoError(t, m.InsertEvent(ctx, "t-1", 2, eventmodel.KindMessage, "pm", `{"message":"hi"}`))

	events, err := m.FetchEvents(ctx, "t-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, int64(2), events[1].ID)

	since, err := m.FetchEvents(ctx, "t-1", 1, 0)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, int64(2), since[0].ID)
}

func TestMemoryAgentRunLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.StartAgentRun(ctx, "t-1", "architect")
	require.NoError(t, err)

	require.NoError(t, m.FinishAgentRun(ctx, id, AgentRunCompleted, "designed 3 files"))

	runs, err := m.FetchAgentRuns(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, AgentRunCompleted, runs[0].Status)
	assert.False(t, runs[0].FinishedAt.IsZero())

	assert.ErrorIs(t, m.FinishAgentRun(ctx, 9999, AgentRunFailed, ""), ErrAgentRunNotFound)
}
