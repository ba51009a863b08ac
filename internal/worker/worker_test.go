package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
	"github.com/codeready-toolchain/taskengine/internal/store"
)

type fakeSink struct {
	mu     sync.Mutex
	events []eventmodel.Event
}

func (f *fakeSink) AppendEvent(taskID string, event eventmodel.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) snapshot() []eventmodel.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]eventmodel.Event, len(f.events))
	copy(out, f.events)
	return out
}

type fakeBus struct {
	mu        sync.Mutex
	published []any
}

func (f *fakeBus) Publish(taskID string, event any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
}

func newTestWorker(t *testing.T, deadline time.Duration) (*Worker, *fakeSink, store.DurableStore) {
	t.Helper()
	st := store.NewMemory()
	_, err := st.CreateTask(context.Background(), "task-1", "", "build a todo app")
	require.NoError(t, err)

	sink := &fakeSink{}
	w := New("task-1", "build a todo app", deadline, st, &fakeBus{}, sink, func() {})
	return w, sink, st
}

func waitDone(t *testing.T, w *Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish in time")
	}
}

func TestWorkerHappyPathReachesSucceeded(t *testing.T) {
	w, sink, st := newTestWorker(t, 5*time.Second)
	w.Start()
	waitDone(t, w)

	snap := w.Snapshot()
	assert.Equal(t, eventmodel.StatusSucceeded, snap.Status)
	assert.Equal(t, 1.0, snap.Progress)

	events := sink.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, eventmodel.KindResult, events[len(events)-1].Kind)

	stageStarts, stageCompletes := 0, 0
	for _, e := range events {
		switch e.Kind {
		case eventmodel.KindStageStart:
			stageStarts++
		case eventmodel.KindStageComplete:
			stageCompletes++
		}
	}
	assert.Equal(t, 3, stageStarts)
	assert.Equal(t, 3, stageCompletes)

	for i, e := range events {
		assert.Equal(t, i+1, e.EventID)
	}

	rec, err := st.FetchTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, eventmodel.StatusSucceeded, rec.Status)
}

func TestWorkerDeadlineExceededMarksFailed(t *testing.T) {
	w, sink, _ := newTestWorker(t, 10*time.Millisecond)
	w.Start()
	waitDone(t, w)

	snap := w.Snapshot()
	assert.Equal(t, eventmodel.StatusFailed, snap.Status)

	events := sink.snapshot()
	last := events[len(events)-1]
	assert.Equal(t, eventmodel.KindError, last.Kind)
	assert.Contains(t, last.Payload["message"], "exceeded")
}

func TestWorkerStopMarksCancelled(t *testing.T) {
	w, sink, _ := newTestWorker(t, 5*time.Second)
	w.Start()

	time.Sleep(15 * time.Millisecond)
	w.Stop()
	waitDone(t, w)

	snap := w.Snapshot()
	assert.Equal(t, eventmodel.StatusCancelled, snap.Status)

	events := sink.snapshot()
	last := events[len(events)-1]
	assert.Equal(t, eventmodel.KindError, last.Kind)
	assert.Equal(t, "cancelled", last.Payload["message"])
}

func TestWorkerEventIDsAreGapless(t *testing.T) {
	w, sink, _ := newTestWorker(t, 5*time.Second)
	w.Start()
	waitDone(t, w)

	events := sink.snapshot()
	for i, e := range events {
		require.Equal(t, i+1, e.EventID)
	}
}

func TestWorkerCallsOnDone(t *testing.T) {
	st := store.NewMemory()
	_, err := st.CreateTask(context.Background(), "task-1", "", "prompt")
	require.NoError(t, err)

	called := make(chan struct{})
	w := New("task-1", "prompt", 5*time.Second, st, &fakeBus{}, &fakeSink{}, func() { close(called) })
	w.Start()

	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("onDone was not called")
	}
}
