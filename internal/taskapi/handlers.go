package taskapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
)

// createTaskHandler handles POST /tasks: creates a task record in PENDING.
// It does not start the Worker — spec.md §4.5 has the stream session do
// that on first connect, so a task created but never streamed simply sits
// idle in the Durable Store.
func (s *Server) createTaskHandler(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	taskID := uuid.NewString()
	rec, err := s.store.CreateTask(c.Request.Context(), taskID, req.Title, req.InputPrompt)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, taskResponseFrom(rec))
}

// getTaskHandler handles GET /tasks/:id: the pull path. Returns the task
// record plus its event backlog since an optional ?since_event_id=, served
// from the Registry's in-memory tail when the task ran in this process,
// falling back to the Durable Store's fetch_events otherwise (spec.md §4.1
// events_since).
func (s *Server) getTaskHandler(c *gin.Context) {
	taskID := c.Param("id")

	rec, err := s.store.FetchTask(c.Request.Context(), taskID)
	if err != nil {
		respondError(c, err)
		return
	}

	sinceID := 0
	if v := c.Query("since_event_id"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid since_event_id"})
			return
		}
		sinceID = parsed
	}

	events := s.reg.EventsSince(taskID, sinceID)
	if events == nil {
		stored, err := s.store.FetchEvents(c.Request.Context(), taskID, int64(sinceID), 0)
		if err != nil {
			respondError(c, err)
			return
		}
		events = make([]eventmodel.Event, 0, len(stored))
		for _, se := range stored {
			var payload map[string]any
			if err := json.Unmarshal([]byte(se.Payload), &payload); err != nil {
				respondError(c, fmt.Errorf("taskapi: decode event %d payload: %w", se.ID, err))
				return
			}
			events = append(events, eventmodel.Event{
				EventID:   int(se.ID),
				TaskID:    se.TaskID,
				Timestamp: se.CreatedAt,
				StageName: se.StageName,
				Kind:      se.Kind,
				Payload:   payload,
			})
		}
	}

	c.JSON(http.StatusOK, TaskWithEventsResponse{
		Task:   taskResponseFrom(rec),
		Events: events,
	})
}
