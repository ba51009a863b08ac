// Package eventmodel defines the immutable value types observed by every
// other package in the engine: the closed set of Event kinds emitted by a
// Worker as it drives a task's stage pipeline, and the TaskState snapshot
// subscribers read.
package eventmodel

import "time"

// Kind is the closed set of event kinds a Worker may emit for a task.
type Kind string

const (
	KindLog           Kind = "LOG"
	KindMessage       Kind = "MESSAGE"
	KindStageStart    Kind = "STAGE_START"
	KindStageComplete Kind = "STAGE_COMPLETE"
	KindResult        Kind = "RESULT"
	KindError         Kind = "ERROR"
)

// Terminal reports whether the kind can be the final event of a task's
// stream (RESULT on success, ERROR on any failure path).
func (k Kind) Terminal() bool {
	return k == KindResult || k == KindError
}

// TaskStatus is the lifecycle status of a Task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "PENDING"
	StatusRunning   TaskStatus = "RUNNING"
	StatusSucceeded TaskStatus = "SUCCEEDED"
	StatusFailed    TaskStatus = "FAILED"
	StatusCancelled TaskStatus = "CANCELLED"
)

// Terminal reports whether the status is absorbing (SUCCEEDED, FAILED, or
// CANCELLED). Once terminal, a task's status never changes again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Event is the immutable unit the Worker emits for a task. EventID is
// assigned by the Worker under its per-task emission lock, starts at 1, and
// is strictly monotonic within a task — it IS the emission order.
type Event struct {
	EventID   int            `json:"event_id"`
	TaskID    string         `json:"task_id"`
	Timestamp time.Time      `json:"timestamp"`
	StageName string         `json:"stage_name,omitempty"`
	Kind      Kind           `json:"kind"`
	Payload   map[string]any `json:"payload"`
}

// TaskState is the in-memory snapshot of a running or finished task.
// Created on the first event emitted for a task; mutated only by that
// task's Worker. Every reader receives a copy via Clone.
type TaskState struct {
	TaskID       string
	Status       TaskStatus
	Progress     float64
	CurrentStage string // empty when no stage is active
	LastMessage  string
	StartedAt    time.Time
	CompletedAt  time.Time // zero until terminal
	Result       map[string]any
}

// Clone returns a value copy safe to hand to a reader outside the owning
// Worker's goroutine. Result is shallow-copied (it is never mutated after
// being attached to a terminal state).
func (s TaskState) Clone() TaskState {
	clone := s
	if s.Result != nil {
		clone.Result = make(map[string]any, len(s.Result))
		for k, v := range s.Result {
			clone.Result[k] = v
		}
	}
	return clone
}
