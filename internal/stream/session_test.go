package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
	"github.com/codeready-toolchain/taskengine/internal/registry"
	"github.com/codeready-toolchain/taskengine/internal/store"
)

// fakeConn is an in-memory Conn double: writes land in a slice, reads block
// until closed or fed, mirroring a real socket closely enough to exercise
// Session without a network.
type fakeConn struct {
	mu      sync.Mutex
	frames  []Frame
	closed  bool
	closeCh chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{closeCh: make(chan struct{})}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed conn")
	}
	f, ok := v.(Frame)
	if !ok {
		return errors.New("unexpected frame type")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closeCh
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

func (c *fakeConn) snapshot() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// fakeRegistry is a Registry double that lets tests drive the event and
// state-snapshot timelines a Session observes.
type fakeRegistry struct {
	mu            sync.Mutex
	running       bool
	startErr      error
	startedAt     time.Time
	events        chan any
	state         eventmodel.TaskState
	haveState     bool
	snapshotCalls int
	// tornDownAfter simulates the Worker's registry handle disappearing
	// (its deferred teardown running) after this many StateSnapshot calls —
	// every call at or past this count reports unavailable, forcing
	// finalState onto its store+lastSeen fallback path.
	tornDownAfter int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{events: make(chan any, 16)}
}

func (f *fakeRegistry) IsRunning(taskID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRegistry) Start(taskID, requirement string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeRegistry) StateSnapshot(taskID string) (eventmodel.TaskState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls++
	if !f.haveState {
		return eventmodel.TaskState{}, false
	}
	if f.tornDownAfter > 0 && f.snapshotCalls >= f.tornDownAfter {
		return eventmodel.TaskState{}, false
	}
	return f.state, true
}

func (f *fakeRegistry) setState(s eventmodel.TaskState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	f.haveState = true
}

func (f *fakeRegistry) Subscribe(taskID string) (<-chan any, func()) {
	return f.events, func() {}
}

func TestSessionSendsNotFoundForMissingTask(t *testing.T) {
	st := store.NewMemory()
	reg := newFakeRegistry()
	conn := newFakeConn()

	s := New(conn, "missing-task", st, reg)
	s.Run(context.Background())

	frames := conn.snapshot()
	require.Len(t, frames, 1)
	assert.Equal(t, FrameError, frames[0].Type)
	assert.True(t, conn.closed)
}

func TestSessionStartsTaskThenStreamsEventsToTerminal(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	_, err := st.CreateTask(ctx, "task-1", "", "build a todo app")
	require.NoError(t, err)

	reg := newFakeRegistry()
	conn := newFakeConn()

	s := New(conn, "task-1", st, reg)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// Wait for the connected frame before pushing events.
	require.Eventually(t, func() bool { return len(conn.snapshot()) >= 1 }, time.Second, time.Millisecond)

	reg.events <- eventmodel.Event{EventID: 1, TaskID: "task-1", Kind: eventmodel.KindMessage, Payload: map[string]any{"text": "hi"}}
	reg.events <- eventmodel.Event{EventID: 2, TaskID: "task-1", Kind: eventmodel.KindResult, Payload: map[string]any{"ok": true}}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate after RESULT event")
	}

	frames := conn.snapshot()
	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, FrameConnected, frames[0].Type)

	var sawResult, sawFinalState bool
	for _, f := range frames {
		if f.Type == FrameEvent {
			ev := f.Data.(eventmodel.Event)
			if ev.Kind == eventmodel.KindResult {
				sawResult = true
			}
		}
		if f.Type == FrameState {
			sawFinalState = true
		}
	}
	assert.True(t, sawResult, "expected a RESULT event frame")
	assert.True(t, sawFinalState, "expected a final state frame")
	assert.True(t, conn.closed)
}

// TestSessionPreservesProgressWhenRegistryHandleIsAlreadyGone covers the
// fix for the finalState fallback: even once the Worker's registry handle
// has torn down by the time the session asks for one last snapshot, the
// final state frame must still carry the Progress/CurrentStage/LastMessage
// this Session itself last observed, not zero them out.
func TestSessionPreservesProgressWhenRegistryHandleIsAlreadyGone(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	_, err := st.CreateTask(ctx, "task-1", "", "build a todo app")
	require.NoError(t, err)

	reg := newFakeRegistry()
	reg.setState(eventmodel.TaskState{
		TaskID:       "task-1",
		Status:       eventmodel.StatusRunning,
		Progress:     0.6,
		CurrentStage: "engineer",
		LastMessage:  "writing tests",
	})
	// The first StateSnapshot call happens when Run() notices the terminal
	// event; let that one through, then simulate the Worker's registry
	// handle vanishing for every call after it (the drain-time lookup
	// inside finalState).
	reg.tornDownAfter = 2

	conn := newFakeConn()
	s := New(conn, "task-1", st, reg)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(conn.snapshot()) >= 1 }, time.Second, time.Millisecond)

	reg.events <- eventmodel.Event{EventID: 1, TaskID: "task-1", Kind: eventmodel.KindError, Payload: map[string]any{"message": "boom"}}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate after ERROR event")
	}

	var final StateData
	var sawFinalState bool
	for _, f := range conn.snapshot() {
		if f.Type == FrameState {
			final = f.Data.(StateData)
			sawFinalState = true
		}
	}
	require.True(t, sawFinalState, "expected a final state frame")
	assert.Equal(t, 0.6, final.Progress, "progress must be preserved, not reset")
	assert.Equal(t, "engineer", final.CurrentStage)
	assert.Equal(t, "writing tests", final.LastMessage)
}

func TestSessionTreatsAlreadyRunningAsSuccess(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	_, err := st.CreateTask(ctx, "task-1", "", "build a todo app")
	require.NoError(t, err)

	reg := newFakeRegistry()
	reg.running = true
	reg.startErr = registry.ErrAlreadyRunning
	conn := newFakeConn()

	s := New(conn, "task-1", st, reg)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(conn.snapshot()) >= 1 }, time.Second, time.Millisecond)
	assert.Equal(t, FrameConnected, conn.snapshot()[0].Type)

	reg.events <- eventmodel.Event{EventID: 1, TaskID: "task-1", Kind: eventmodel.KindError, Payload: map[string]any{"message": "boom"}}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate after ERROR event")
	}
}

func TestSessionClosesOnPeerDisconnect(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	_, err := st.CreateTask(ctx, "task-1", "", "build a todo app")
	require.NoError(t, err)

	reg := newFakeRegistry()
	conn := newFakeConn()

	done := make(chan struct{})
	go func() {
		New(conn, "task-1", st, reg).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(conn.snapshot()) >= 1 }, time.Second, time.Millisecond)

	// Simulate the client hanging up: wake the blocked ReadMessage call.
	conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not exit after peer disconnect")
	}
}
