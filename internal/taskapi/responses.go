package taskapi

import (
	"time"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
	"github.com/codeready-toolchain/taskengine/internal/store"
)

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	InputPrompt string `json:"input_prompt" binding:"required"`
}

// TaskResponse is the wire shape of a task record, returned by both
// POST /tasks and GET /tasks/:id.
type TaskResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title,omitempty"`
	InputPrompt   string    `json:"input_prompt"`
	Status        string    `json:"status"`
	ResultSummary string    `json:"result_summary,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func taskResponseFrom(rec store.TaskRecord) TaskResponse {
	return TaskResponse{
		ID:            rec.ID,
		Title:         rec.Title,
		InputPrompt:   rec.InputPrompt,
		Status:        string(rec.Status),
		ResultSummary: rec.ResultSummary,
		ErrorMessage:  rec.ErrorMessage,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

// TaskWithEventsResponse is returned by GET /tasks/:id: the task record plus
// the pull path's event replay (since_event_id reconciliation).
type TaskWithEventsResponse struct {
	Task   TaskResponse      `json:"task"`
	Events []eventmodel.Event `json:"events"`
}

// ErrorResponse is the body of any non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
