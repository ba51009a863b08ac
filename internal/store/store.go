// Package store defines the Durable Store: the append-only event log, the
// task record, and the per-stage-run record. The Worker never shares a
// connection or session across goroutines — every write opens (and the
// reference implementation pools) a short-lived session, mirroring the
// teacher's pattern of a fresh *ent.Tx per mutation (pkg/queue/worker.go
// claimNextSession).
package store

import (
	"context"
	"time"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
)

// TaskRecord is the durable row for a task. Owned exclusively by the
// Durable Store; the Worker only ever reads ID and InputPrompt from it.
type TaskRecord struct {
	ID            string
	Title         string
	InputPrompt   string
	Status        eventmodel.TaskStatus
	ResultSummary string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StoredEvent is a durable event_log row as returned by replay queries.
type StoredEvent struct {
	ID        int64
	TaskID    string
	Kind      eventmodel.Kind
	StageName string
	Payload   string // serialized JSON text, as persisted
	CreatedAt time.Time
}

// AgentRunStatus mirrors spec.md §3's AgentRun record status enum.
type AgentRunStatus string

const (
	AgentRunStarted   AgentRunStatus = "STARTED"
	AgentRunRunning   AgentRunStatus = "RUNNING"
	AgentRunCompleted AgentRunStatus = "COMPLETED"
	AgentRunFailed    AgentRunStatus = "FAILED"
	AgentRunCancelled AgentRunStatus = "CANCELLED"
)

// AgentRunRecord is the durable row for one stage invocation.
type AgentRunRecord struct {
	ID            int64
	TaskID        string
	StageName     string
	Status        AgentRunStatus
	StartedAt     time.Time
	FinishedAt    time.Time // zero until finalized
	OutputSummary string
}

// DurableStore is the shape the core engine requires. The PostgreSQL type
// in postgres.go is the reference implementation; Memory in memory.go is an
// in-process double used by unit tests that don't need a real database.
type DurableStore interface {
	CreateTask(ctx context.Context, taskID, title, inputPrompt string) (TaskRecord, error)
	FetchTask(ctx context.Context, taskID string) (TaskRecord, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status eventmodel.TaskStatus, resultSummary, errorMessage string) error

	// InsertEvent persists a row at the caller-assigned eventID. The event
	// ID is never invented by the store: the Worker assigns it under its
	// per-task emission lock so that a persistence failure here can never
	// desynchronize the in-memory event_id sequence from the durable log's
	// primary key (see DESIGN.md).
	InsertEvent(ctx context.Context, taskID string, eventID int64, kind eventmodel.Kind, stageName string, payloadJSON string) error
	FetchEvents(ctx context.Context, taskID string, sinceID int64, limit int) ([]StoredEvent, error)

	StartAgentRun(ctx context.Context, taskID, stageName string) (int64, error)
	FinishAgentRun(ctx context.Context, runID int64, status AgentRunStatus, outputSummary string) error
	FetchAgentRuns(ctx context.Context, taskID string) ([]AgentRunRecord, error)
}
