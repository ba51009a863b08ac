package store

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
)

// Memory is an in-process DurableStore double, guarded by a single mutex in
// the style of the teacher's session.Manager (pkg/session/manager.go). It
// exists so unit tests of the layers above the store don't need a real
// PostgreSQL instance; integration tests exercise Postgres directly.
type Memory struct {
	mu        sync.Mutex
	tasks     map[string]TaskRecord
	events    map[string][]StoredEvent
	runs      map[string][]AgentRunRecord
	nextRunID int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:  make(map[string]TaskRecord),
		events: make(map[string][]StoredEvent),
		runs:   make(map[string][]AgentRunRecord),
	}
}

func (m *Memory) CreateTask(ctx context.Context, taskID, title, inputPrompt string) (TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[taskID]; exists {
		return TaskRecord{}, ErrTaskAlreadyExists
	}

	now := time.Now()
	rec := TaskRecord{
		ID:          taskID,
		Title:       title,
		InputPrompt: inputPrompt,
		Status:      eventmodel.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.tasks[taskID] = rec
	return rec, nil
}

func (m *Memory) FetchTask(ctx context.Context, taskID string) (TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[taskID]
	if !ok {
		return TaskRecord{}, ErrTaskNotFound
	}
	return rec, nil
}

func (m *Memory) UpdateTaskStatus(ctx context.Context, taskID string, status eventmodel.TaskStatus, resultSummary, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	rec.Status = status
	rec.ResultSummary = resultSummary
	rec.ErrorMessage = errorMessage
	rec.UpdatedAt = time.Now()
	m.tasks[taskID] = rec
	return nil
}

func (m *Memory) InsertEvent(ctx context.Context, taskID string, eventID int64, kind eventmodel.Kind, stageName string, payloadJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[taskID] = append(m.events[taskID], StoredEvent{
		ID:        eventID,
		TaskID:    taskID,
		Kind:      kind,
		StageName: stageName,
		Payload:   payloadJSON,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *Memory) FetchEvents(ctx context.Context, taskID string, sinceID int64, limit int) ([]StoredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []StoredEvent
	for _, e := range m.events[taskID] {
		if e.ID <= sinceID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) StartAgentRun(ctx context.Context, taskID, stageName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRunID++
	id := m.nextRunID
	m.runs[taskID] = append(m.runs[taskID], AgentRunRecord{
		ID:        id,
		TaskID:    taskID,
		StageName: stageName,
		Status:    AgentRunStarted,
		StartedAt: time.Now(),
	})
	return id, nil
}

func (m *Memory) FinishAgentRun(ctx context.Context, runID int64, status AgentRunStatus, outputSummary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for taskID, runs := range m.runs {
		for i, r := range runs {
			if r.ID == runID {
				r.Status = status
				r.OutputSummary = outputSummary
				r.FinishedAt = time.Now()
				m.runs[taskID][i] = r
				return nil
			}
		}
	}
	return ErrAgentRunNotFound
}

func (m *Memory) FetchAgentRuns(ctx context.Context, taskID string) ([]AgentRunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AgentRunRecord, len(m.runs[taskID]))
	copy(out, m.runs[taskID])
	return out, nil
}

var _ DurableStore = (*Memory)(nil)
