// Package worker implements the per-task background execution unit: one
// Worker drives one task's Stage Pipeline end-to-end, assigns monotonic
// event IDs, dual-writes to the Durable Store and the Subscription Bus,
// honors a hard deadline and explicit cancellation, and guarantees
// teardown on every exit path.
//
// Grounded on the teacher's pkg/queue/worker.go: the run-loop/stop-channel
// shape, the nil-guard-then-synthesize-a-terminal-result pattern for
// deadline vs. cancellation vs. genuine failure, and the
// register-cancel-func/defer-unregister idiom (there via SessionRegistry,
// here via the onDone callback threaded in at construction to avoid the
// worker package importing registry).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
	"github.com/codeready-toolchain/taskengine/internal/pipeline"
	"github.com/codeready-toolchain/taskengine/internal/store"
)

// EventSink receives every event a Worker emits, in emission order, for
// appending to the Registry's in-memory tail buffer. Implemented by
// internal/registry; kept as an interface here so this package never
// imports registry.
type EventSink interface {
	AppendEvent(taskID string, event eventmodel.Event)
}

// Publisher is the Subscription Bus's publish side, as used by a Worker.
type Publisher interface {
	Publish(taskID string, event any)
}

// Worker drives exactly one task from RUNNING to a terminal status.
type Worker struct {
	taskID      string
	requirement string
	deadline    time.Duration

	st   store.DurableStore
	bus  Publisher
	sink EventSink

	onDone func()

	ctx              context.Context
	cancel           context.CancelFunc
	deadlineExceeded atomic.Bool

	emitMu      sync.Mutex
	nextEventID int

	stateMu sync.RWMutex
	state   eventmodel.TaskState

	done chan struct{}
}

// New builds a Worker for taskID. The Worker does not start running until
// Start is called. deadline is the hard wall-clock limit on the whole
// pipeline run (spec's max_task_duration_seconds).
func New(taskID, requirement string, deadline time.Duration, st store.DurableStore, bus Publisher, sink EventSink, onDone func()) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		taskID:      taskID,
		requirement: requirement,
		deadline:    deadline,
		st:          st,
		bus:         bus,
		sink:        sink,
		onDone:      onDone,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		state: eventmodel.TaskState{
			TaskID: taskID,
			Status: eventmodel.StatusPending,
		},
	}
}

// Start runs the task on a dedicated goroutine. It is not request-scoped:
// the Worker outlives whatever handler called Start.
func (w *Worker) Start() {
	go w.run()
}

// Stop signals cancellation. It returns immediately; the Worker unwinds at
// its next cooperative yield point and reaches a terminal status
// asynchronously.
func (w *Worker) Stop() {
	w.cancel()
}

// Done is closed once the Worker has fully torn down.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Snapshot returns a copy of the current TaskState. Safe for concurrent
// callers; never returns a pointer into Worker-owned state.
func (w *Worker) Snapshot() eventmodel.TaskState {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state.Clone()
}

func (w *Worker) run() {
	log := slog.With("task_id", w.taskID)
	defer close(w.done)
	defer w.onDone()
	defer w.cancel()

	timer := time.AfterFunc(w.deadline, func() {
		w.deadlineExceeded.Store(true)
		w.cancel()
	})
	defer timer.Stop()

	log.Info("worker started")
	w.mutateState(func(s *eventmodel.TaskState) {
		s.Status = eventmodel.StatusRunning
		s.StartedAt = time.Now()
	})
	w.emit(eventmodel.KindLog, "", eventmodel.LogPayload("Starting task"))

	stages := pipeline.Stages()
	input := w.requirement

	var artifacts []string
	var lastExec *pipeline.ExecutionOutput
	var failureErr error

	for i, stage := range stages {
		if err := w.ctx.Err(); err != nil {
			failureErr = err
			break
		}

		artifact, exec, err := w.runStage(log, stage, input)
		if err != nil {
			failureErr = err
			break
		}

		artifacts = append(artifacts, artifact)
		if exec != nil {
			lastExec = exec
		}
		input = artifact

		w.advanceProgress(float64(i+1) / float64(len(stages)))
	}

	if failureErr != nil {
		w.finishFailure(log, failureErr)
		return
	}

	w.finishSuccess(artifacts, lastExec)
}

func (w *Worker) runStage(log *slog.Logger, stage pipeline.Stage, input string) (artifact string, exec *pipeline.ExecutionOutput, err error) {
	runID, runErr := w.st.StartAgentRun(context.Background(), w.taskID, stage.Name)
	if runErr != nil {
		log.Warn("failed to record agent run start", "stage", stage.Name, "error", runErr)
	}

	w.mutateState(func(s *eventmodel.TaskState) { s.CurrentStage = stage.Name })
	w.emit(eventmodel.KindStageStart, stage.Name, eventmodel.StageStartPayload(fmt.Sprintf("%s starting", stage.Name)))

	sctx := pipeline.NewStageContext(w.ctx, stage.Name, func(kind eventmodel.Kind, stageName string, payload map[string]any) {
		w.emit(kind, stageName, payload)
	})

	artifact, exec, err = stage.Runner.Run(sctx, input)

	if err != nil {
		w.finishAgentRun(log, runID, stage.Name, classifyRunStatus(err), "")
		return "", nil, err
	}

	summary := fmt.Sprintf("%s completed", stage.Name)
	w.finishAgentRun(log, runID, stage.Name, store.AgentRunCompleted, summary)
	w.emit(eventmodel.KindStageComplete, stage.Name, eventmodel.StageCompletePayload(summary, ""))

	return artifact, exec, nil
}

func (w *Worker) finishAgentRun(log *slog.Logger, runID int64, stageName string, status store.AgentRunStatus, summary string) {
	if runID == 0 {
		return
	}
	if err := w.st.FinishAgentRun(context.Background(), runID, status, summary); err != nil {
		log.Warn("failed to record agent run finish", "stage", stageName, "error", err)
	}
}

func classifyRunStatus(err error) store.AgentRunStatus {
	switch {
	case isCancelled(err):
		return store.AgentRunCancelled
	default:
		return store.AgentRunFailed
	}
}

func (w *Worker) finishSuccess(artifacts []string, exec *pipeline.ExecutionOutput) {
	result := map[string]any{"artifacts": artifacts}
	if exec != nil {
		result["execution_result"] = map[string]any{
			"output":    exec.Output,
			"exit_code": exec.ExitCode,
			"succeeded": exec.Succeeded,
		}
	}

	w.mutateState(func(s *eventmodel.TaskState) {
		s.Status = eventmodel.StatusSucceeded
		s.Progress = 1.0
		s.CurrentStage = ""
		s.CompletedAt = time.Now()
		s.Result = result
	})
	w.emit(eventmodel.KindResult, "", eventmodel.ResultPayload(result))

	summary := "task completed successfully"
	if err := w.st.UpdateTaskStatus(context.Background(), w.taskID, eventmodel.StatusSucceeded, summary, ""); err != nil {
		slog.Warn("failed to persist terminal task status", "task_id", w.taskID, "error", err)
	}
}

func (w *Worker) finishFailure(log *slog.Logger, cause error) {
	var status eventmodel.TaskStatus
	var message string

	switch {
	case w.deadlineExceeded.Load():
		status = eventmodel.StatusFailed
		message = "exceeded maximum duration"
	case isCancelled(cause):
		status = eventmodel.StatusCancelled
		message = "cancelled"
	default:
		status = eventmodel.StatusFailed
		message = cause.Error()
	}

	w.mutateState(func(s *eventmodel.TaskState) {
		s.Status = status
		s.CurrentStage = ""
		s.CompletedAt = time.Now()
	})

	w.emit(eventmodel.KindError, "", eventmodel.ErrorPayload(message, ""))

	errMsg := ""
	if status != eventmodel.StatusCancelled {
		errMsg = message
	}
	if err := w.st.UpdateTaskStatus(context.Background(), w.taskID, status, "", errMsg); err != nil {
		log.Warn("failed to persist terminal task status", "error", err)
	}
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func (w *Worker) advanceProgress(p float64) {
	w.mutateState(func(s *eventmodel.TaskState) {
		if p > s.Progress {
			s.Progress = p
		}
	})
}

func (w *Worker) mutateState(fn func(*eventmodel.TaskState)) {
	w.stateMu.Lock()
	fn(&w.state)
	w.stateMu.Unlock()
}

// emit is the Worker's single event-emission entrypoint: assign the next
// monotonic event_id under the per-task emission lock, append to the tail
// sink, attempt a durable write (logging but never aborting on failure),
// then fan out on the bus.
func (w *Worker) emit(kind eventmodel.Kind, stageName string, payload map[string]any) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.nextEventID++
	ev := eventmodel.Event{
		EventID:   w.nextEventID,
		TaskID:    w.taskID,
		Timestamp: time.Now(),
		StageName: stageName,
		Kind:      kind,
		Payload:   payload,
	}

	w.sink.AppendEvent(w.taskID, ev)

	if payloadJSON, err := json.Marshal(payload); err != nil {
		slog.Warn("failed to marshal event payload", "task_id", w.taskID, "event_id", ev.EventID, "error", err)
	} else if err := w.st.InsertEvent(context.Background(), w.taskID, int64(ev.EventID), kind, stageName, string(payloadJSON)); err != nil {
		slog.Warn("failed to persist event", "task_id", w.taskID, "event_id", ev.EventID, "error", err)
	}

	w.bus.Publish(w.taskID, ev)

	if message, ok := payload["message"].(string); ok {
		w.mutateState(func(s *eventmodel.TaskState) { s.LastMessage = message })
	}
}
