package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
	"github.com/codeready-toolchain/taskengine/internal/registry"
	"github.com/codeready-toolchain/taskengine/internal/store"
)

// pollInterval is the "await event or short timeout" tick (spec.md §4.5).
const pollInterval = 500 * time.Millisecond

// idleTimeout closes a session that has seen no outbound traffic for this
// long (spec.md §4.5/§6).
const idleTimeout = 30 * time.Second

// drainWindow is how long a terminal session keeps forwarding
// already-queued events before sending its final state frame.
const drainWindow = 300 * time.Millisecond

// TaskLookup is the Durable Store surface a Session needs.
type TaskLookup interface {
	FetchTask(ctx context.Context, taskID string) (store.TaskRecord, error)
}

// Registry is the Task Registry surface a Session needs. Satisfied by
// *registry.Registry; declared here (rather than imported as a concrete
// type) so Session depends only on the behavior it uses.
type Registry interface {
	IsRunning(taskID string) bool
	Start(taskID, requirement string) error
	StateSnapshot(taskID string) (eventmodel.TaskState, bool)
	Subscribe(taskID string) (<-chan any, func())
}

// Session is one client's Push-Stream connection to a task.
type Session struct {
	conn   Conn
	taskID string
	lookup TaskLookup
	reg    Registry
}

// New builds a Session for taskID over conn.
func New(conn Conn, taskID string, lookup TaskLookup, reg Registry) *Session {
	return &Session{conn: conn, taskID: taskID, lookup: lookup, reg: reg}
}

// Run executes the full Session lifecycle (spec.md §4.5) and returns once
// the session has closed, for any reason. It never panics on transport
// errors; send failures simply end the session early.
func (s *Session) Run(ctx context.Context) {
	log := slog.With("task_id", s.taskID)

	rec, err := s.lookup.FetchTask(ctx, s.taskID)
	if err != nil {
		s.sendError(fmt.Sprintf("task not found: %s", s.taskID))
		CloseWithCode(s.conn, CloseNotFound, "task not found")
		return
	}

	if !s.reg.IsRunning(s.taskID) {
		if startErr := s.reg.Start(s.taskID, rec.InputPrompt); startErr != nil && !errors.Is(startErr, registry.ErrAlreadyRunning) {
			s.sendError(startErr.Error())
			CloseWithCode(s.conn, CloseNormal, "failed to start")
			return
		}
	}

	events, unsubscribe := s.reg.Subscribe(s.taskID)
	defer unsubscribe()
	defer func() { _ = s.conn.Close() }()

	if err := s.send(Frame{Type: FrameConnected, Data: ConnectedData{TaskID: s.taskID, Message: "connected"}}); err != nil {
		return
	}

	peerClosed := make(chan struct{})
	go func() {
		defer close(peerClosed)
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastActivity := time.Now()
	var lastState eventmodel.TaskState
	haveState := false

	for {
		select {
		case raw, ok := <-events:
			if !ok {
				return
			}
			ev, ok := raw.(eventmodel.Event)
			if !ok {
				continue
			}
			lastActivity = time.Now()
			if err := s.send(Frame{Type: FrameEvent, Data: ev}); err != nil {
				return
			}
			if ev.Kind.Terminal() {
				// Grab the Worker's own snapshot now, before the drain wait —
				// the registry handle is removed by the Worker's own deferred
				// teardown shortly after this same terminal event was
				// published, so waiting out drainWindow first would almost
				// always miss it (see DESIGN.md).
				if snap, ok := s.reg.StateSnapshot(s.taskID); ok {
					lastState = snap
					haveState = true
				}
				s.finish(events, rec.ID, lastState, haveState)
				return
			}

		case <-ticker.C:
			state, ok := s.reg.StateSnapshot(s.taskID)
			if ok {
				if !haveState || !stateEqual(lastState, state) {
					if err := s.send(Frame{Type: FrameState, Data: stateFrameData(state)}); err != nil {
						return
					}
					lastActivity = time.Now()
				}
				lastState = state
				haveState = true
				if state.Status.Terminal() {
					s.finish(events, rec.ID, lastState, haveState)
					return
				}
			}
			if time.Since(lastActivity) >= idleTimeout {
				log.Info("stream session idle timeout")
				CloseWithCode(s.conn, CloseIdleTimeout, "idle timeout")
				return
			}

		case <-peerClosed:
			return

		case <-ctx.Done():
			return
		}
	}
}

// finish drains whatever events are already queued for up to drainWindow,
// sends exactly one final state frame (always, even if its status matches
// the last one sent — an explicit Open Question resolution), then closes
// with the clean-terminal code. lastSeen/haveLastSeen carry the most recent
// TaskState this Session itself observed from the Registry (as of the
// terminal event or the last poll tick, whichever is freshest) — by the
// time the drain window elapses the Worker's registry handle is almost
// always already gone (see DESIGN.md), so finalState needs this to recover
// progress/last_message, which the Durable Store does not persist.
func (s *Session) finish(events <-chan any, taskID string, lastSeen eventmodel.TaskState, haveLastSeen bool) {
	deadline := time.NewTimer(drainWindow)
	defer deadline.Stop()

drain:
	for {
		select {
		case raw, ok := <-events:
			if !ok {
				break drain
			}
			if ev, ok := raw.(eventmodel.Event); ok {
				if err := s.send(Frame{Type: FrameEvent, Data: ev}); err != nil {
					break drain
				}
			}
		case <-deadline.C:
			break drain
		}
	}

	final := s.finalState(taskID, lastSeen, haveLastSeen)
	_ = s.send(Frame{Type: FrameState, Data: stateFrameData(final)})
	CloseWithCode(s.conn, CloseNormal, "task terminal")
}

// finalState prefers a fresh Worker snapshot, if the registry handle still
// happens to exist. Otherwise it falls back to the Durable Store's task
// record for the authoritative terminal Status/error message, but recovers
// Progress/CurrentStage/LastMessage/StartedAt from lastSeen — the last
// TaskState this Session itself observed while the Worker was still
// registered — since the store never persists those fields and spec.md
// requires progress to stay at its last value on FAILED/CANCELLED rather
// than reset to zero.
func (s *Session) finalState(taskID string, lastSeen eventmodel.TaskState, haveLastSeen bool) eventmodel.TaskState {
	if snap, ok := s.reg.StateSnapshot(taskID); ok {
		return snap
	}

	rec, err := s.lookup.FetchTask(context.Background(), taskID)
	if err != nil {
		if haveLastSeen {
			return lastSeen
		}
		return eventmodel.TaskState{TaskID: taskID, Status: eventmodel.StatusFailed}
	}

	state := eventmodel.TaskState{
		TaskID:      taskID,
		Status:      rec.Status,
		LastMessage: rec.ErrorMessage,
		CompletedAt: rec.UpdatedAt,
	}
	if haveLastSeen {
		state.Progress = lastSeen.Progress
		state.CurrentStage = lastSeen.CurrentStage
		state.StartedAt = lastSeen.StartedAt
		if state.LastMessage == "" {
			state.LastMessage = lastSeen.LastMessage
		}
	}
	if rec.Status == eventmodel.StatusSucceeded {
		state.Progress = 1.0
	}
	return state
}

func (s *Session) sendError(message string) {
	_ = s.send(Frame{Type: FrameError, Data: ErrorData{Message: message}})
}

func (s *Session) send(f Frame) error {
	return s.conn.WriteJSON(f)
}

func stateFrameData(s eventmodel.TaskState) StateData {
	data := StateData{
		TaskID:       s.TaskID,
		Status:       string(s.Status),
		Progress:     s.Progress,
		CurrentStage: s.CurrentStage,
		LastMessage:  s.LastMessage,
		StartedAt:    s.StartedAt,
	}
	if !s.CompletedAt.IsZero() {
		t := s.CompletedAt
		data.CompletedAt = &t
	}
	return data
}

func stateEqual(a, b eventmodel.TaskState) bool {
	return a.Status == b.Status &&
		a.Progress == b.Progress &&
		a.CurrentStage == b.CurrentStage &&
		a.LastMessage == b.LastMessage &&
		a.CompletedAt.Equal(b.CompletedAt)
}
